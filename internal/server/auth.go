package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/realtime"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for storing user claims.
	UserContextKey contextKey = "user"
)

// UserClaims represents the JWT claims from Keycloak.
type UserClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	// StationID binds station dispatchers to their fire house.
	StationID   string `json:"station_id"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Role maps the realm roles onto the single dispatch role used for event
// targeting and list scoping.
func (c *UserClaims) Role() string {
	for _, r := range c.RealmAccess.Roles {
		if r == realtime.RoleStationDispatcher {
			return realtime.RoleStationDispatcher
		}
	}
	return "operator"
}

// Identity converts the claims into the realtime-layer principal.
func (c *UserClaims) Identity() (realtime.Identity, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return realtime.Identity{}, fmt.Errorf("invalid subject claim: %w", err)
	}
	identity := realtime.Identity{UserID: userID, Role: c.Role()}
	if c.StationID != "" {
		stationID, err := uuid.Parse(c.StationID)
		if err != nil {
			return realtime.Identity{}, fmt.Errorf("invalid station_id claim: %w", err)
		}
		identity.StationID = &stationID
	}
	return identity, nil
}

// AuthMiddleware handles JWT validation using Keycloak's JWKS. It also
// serves as the websocket handshake token verifier.
type AuthMiddleware struct {
	jwks         keyfunc.Keyfunc
	cancelFn     context.CancelFunc
	validIssuers []string
	log          zerolog.Logger
}

// NewAuthMiddleware creates a new authentication middleware with JWKS from Keycloak.
func NewAuthMiddleware(ctx context.Context, cfg config.KeycloakConfig, log zerolog.Logger) (*AuthMiddleware, error) {
	jwksURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.URL, cfg.Realm)

	// Create a cancellable context for JWKS refresh goroutine
	jwksCtx, cancelFn := context.WithCancel(ctx)

	// Create JWKS with automatic refresh
	jwks, err := keyfunc.NewDefaultCtx(jwksCtx, []string{jwksURL})
	if err != nil {
		cancelFn()
		return nil, fmt.Errorf("failed to create JWKS from %s: %w", jwksURL, err)
	}

	// Accept tokens from both internal and public Keycloak URLs
	internalIssuer := fmt.Sprintf("%s/realms/%s", cfg.URL, cfg.Realm)
	publicIssuer := fmt.Sprintf("%s/realms/%s", cfg.PublicURL, cfg.Realm)
	validIssuers := []string{internalIssuer, publicIssuer}

	log.Info().
		Str("jwks_url", jwksURL).
		Strs("valid_issuers", validIssuers).
		Msg("JWT authentication middleware initialized")

	return &AuthMiddleware{
		jwks:         jwks,
		cancelFn:     cancelFn,
		validIssuers: validIssuers,
		log:          log,
	}, nil
}

// Close releases resources used by the auth middleware.
func (a *AuthMiddleware) Close() {
	if a.cancelFn != nil {
		a.cancelFn()
	}
}

// Middleware returns an HTTP middleware that validates JWT tokens.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Add user claims to context
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// VerifyToken authenticates a raw bearer token for the websocket handshake.
func (a *AuthMiddleware) VerifyToken(ctx context.Context, token string) (realtime.Identity, error) {
	claims, err := a.parseAndValidate(token)
	if err != nil {
		return realtime.Identity{}, err
	}
	return claims.Identity()
}

func (a *AuthMiddleware) claimsFromRequest(r *http.Request) (*UserClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid Authorization header format")
	}

	return a.parseAndValidate(parts[1])
}

// parseAndValidate validates signature, expiry and issuer.
func (a *AuthMiddleware) parseAndValidate(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, a.jwks.Keyfunc,
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok {
		return nil, fmt.Errorf("failed to extract claims")
	}

	issuerValid := false
	for _, validIssuer := range a.validIssuers {
		if claims.Issuer == validIssuer {
			issuerValid = true
			break
		}
	}
	if !issuerValid {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}

	return claims, nil
}

// GetUserFromContext retrieves the user claims from the request context.
func GetUserFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*UserClaims)
	return claims, ok
}
