package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/database"
	"firewatch/internal/dispatch"
	"firewatch/internal/realtime"
	"firewatch/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Server wires configuration, dependencies and HTTP routing together. It is
// the composition root: the connection registry and gateway live here as
// explicit instances, never as package globals.
type Server struct {
	cfg       config.Config
	log       zerolog.Logger
	pool      *pgxpool.Pool
	rdb       *redis.Client
	db        *store.Store
	engine    *dispatch.Engine
	registry  *realtime.Registry
	gateway   *realtime.Gateway
	validate  *validator.Validate
	authMw    *AuthMiddleware
	startedAt time.Time
}

// New instantiates the HTTP server, runs DB migrations and prepares shared dependencies.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	pool, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		// The catalog cache is an optimisation; run without it.
		log.Warn().Err(err).Msg("redis unavailable, catalog cache disabled")
		rdb = nil
	}

	authMw, err := NewAuthMiddleware(ctx, cfg.Keycloak, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init auth middleware: %w", err)
	}

	db := store.New(pool)
	cache := store.NewCatalogCache(rdb, cfg.Redis.CatalogTTL, log)
	catalog := dispatch.NewCatalog(db, cache, log)
	classifier := dispatch.NewClassifier(db, db, log)

	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(registry, authMw, cfg.Realtime, log)
	engine := dispatch.NewEngine(db, catalog, classifier, gateway, log)

	srv := &Server{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		rdb:       rdb,
		db:        db,
		engine:    engine,
		registry:  registry,
		gateway:   gateway,
		validate:  newValidator(),
		authMw:    authMw,
		startedAt: time.Now().UTC(),
	}

	return srv, nil
}

// Close releases database and cache resources.
func (s *Server) Close() {
	if s.authMw != nil {
		s.authMw.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.HTTP.Address,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	s.log.Info().Str("addr", s.cfg.HTTP.Address).Msg("http server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("latitude", func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(float64)
		if !ok {
			return false
		}
		return val >= -90 && val <= 90
	})
	_ = v.RegisterValidation("longitude", func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(float64)
		if !ok {
			return false
		}
		return val >= -180 && val <= 180
	})
	return v
}
