package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TokenVerifier authenticates the bearer token presented at handshake.
// The HTTP auth middleware provides the production implementation.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// Gateway upgrades websocket connections, maintains their liveness and
// fans events out to the right rooms. Sends are fire-and-forget: a dead or
// slow socket only loses its own events.
type Gateway struct {
	registry *Registry
	verifier TokenVerifier
	cfg      config.RealtimeConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewGateway(registry *Registry, verifier TokenVerifier, cfg config.RealtimeConfig, log zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS is the websocket endpoint. The bearer token is verified before
// the upgrade; unauthenticated connections are refused with 401 and never
// join a room.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = parts[1]
			}
		}
	}
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity, err := g.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket handshake authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(conn, identity, g.cfg.SendBuffer)
	g.registry.Add(client)
	wsConnectionsGauge.Inc()
	g.log.Info().Str("user_id", identity.UserID.String()).Str("role", identity.Role).Msg("websocket connected")

	go g.writePump(client)
	go g.readPump(client)
}

func (g *Gateway) readPump(client *Client) {
	defer func() {
		g.registry.Remove(client)
		client.close()
		wsConnectionsGauge.Dec()
		g.log.Info().Str("user_id", client.identity.UserID.String()).Msg("websocket disconnected")
	}()

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if !g.handleMessage(client, message) {
			return
		}
	}
}

// writePump owns all writes to the socket, including the keepalive pings
// that detect dead peers. Ping frames carry no business data and are
// invisible to subscribers.
func (g *Gateway) writePump(client *Client) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// handleMessage processes one client frame; returning false drops the
// connection.
func (g *Gateway) handleMessage(client *Client, message []byte) bool {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		g.log.Debug().Err(err).Msg("malformed websocket frame")
		return true
	}

	switch msg.Type {
	case "authenticate":
		var p AuthenticatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return true
		}
		// Re-authentication is accepted only for the identity bound at
		// handshake; a mismatch is a protocol violation.
		if p.UserID != client.identity.UserID.String() {
			g.log.Warn().
				Str("bound_user", client.identity.UserID.String()).
				Str("asserted_user", p.UserID).
				Msg("websocket identity mismatch, closing connection")
			return false
		}
	case "join_station":
		if id, ok := g.stationID(msg.Payload); ok {
			g.registry.Join(client, StationRoom(id))
		}
	case "leave_station":
		if id, ok := g.stationID(msg.Payload); ok {
			g.registry.Leave(client, StationRoom(id))
		}
	default:
		g.log.Debug().Str("type", msg.Type).Msg("unknown websocket message type")
	}
	return true
}

func (g *Gateway) stationID(payload json.RawMessage) (uuid.UUID, bool) {
	var p StationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.StationID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// =============================================================================
// Event emission (dispatch.Notifier implementation)
// =============================================================================

// FireCreated broadcasts a new incident to every connection.
func (g *Gateway) FireCreated(inc store.Incident, tier store.SeverityTier) {
	g.broadcast(EventFireCreated, FireCreatedPayload{Incident: incidentPayload(inc, tier)})
}

// FireUpdated broadcasts a list-refresh signal for any incident mutation.
func (g *Gateway) FireUpdated(inc store.Incident, tier store.SeverityTier) {
	g.broadcast(EventFireUpdated, FireUpdatedPayload{
		IncidentID:  inc.ID.String(),
		Status:      string(inc.Status),
		TierOrdinal: tier.Ordinal,
		StationID:   inc.StationID.String(),
	})
}

// FireDeleted reuses the fireUpdated event with the synthetic DELETED
// status so clients can evict the row without a dedicated delete event.
func (g *Gateway) FireDeleted(inc store.Incident, tier store.SeverityTier) {
	g.broadcast(EventFireUpdated, FireUpdatedPayload{
		IncidentID:  inc.ID.String(),
		Status:      store.StatusDeleted,
		TierOrdinal: tier.Ordinal,
		StationID:   inc.StationID.String(),
	})
}

// FireAssigned notifies everyone of the routing decision; only station
// dispatchers attached to the assigned station receive the sound-flagged
// variant, so a station is audibly alerted only when a fire is actually
// routed to it.
func (g *Gateway) FireAssigned(inc store.Incident, tier store.SeverityTier) {
	incident := incidentPayload(inc, tier)
	silent, err := json.Marshal(Envelope{Event: EventFireAssigned, Payload: FireAssignedPayload{
		Incident:  incident,
		StationID: inc.StationID.String(),
	}})
	if err != nil {
		g.log.Error().Err(err).Msg("marshal fireAssigned event")
		return
	}
	sound, err := json.Marshal(Envelope{Event: EventFireAssigned, Payload: FireAssignedPayload{
		Incident:  incident,
		StationID: inc.StationID.String(),
		Sound:     true,
	}})
	if err != nil {
		g.log.Error().Err(err).Msg("marshal fireAssigned event")
		return
	}

	targets := make(map[*Client]struct{})
	for _, c := range g.registry.InRoom(StationRoom(inc.StationID)) {
		if c.identity.Role == RoleStationDispatcher {
			targets[c] = struct{}{}
		}
	}

	for _, c := range g.registry.All() {
		if _, alerted := targets[c]; alerted {
			g.deliver(c, sound)
		} else {
			g.deliver(c, silent)
		}
	}
	eventsEmittedTotal.WithLabelValues(string(EventFireAssigned)).Inc()
}

// ReportCreated broadcasts a filed report to every connection.
func (g *Gateway) ReportCreated(rep store.Report) {
	g.broadcast(EventReportCreated, ReportCreatedPayload{
		ID:         rep.ID.String(),
		IncidentID: rep.IncidentID.String(),
		AuthorID:   rep.AuthorID.String(),
		Body:       rep.Body,
		CreatedAt:  rep.CreatedAt,
	})
}

func (g *Gateway) broadcast(event EventName, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		g.log.Error().Err(err).Str("event", string(event)).Msg("marshal event")
		return
	}
	for _, c := range g.registry.All() {
		g.deliver(c, data)
	}
	eventsEmittedTotal.WithLabelValues(string(event)).Inc()
}

// deliver pushes without blocking; a full buffer drops the frame for that
// client only.
func (g *Gateway) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		droppedSendsTotal.Inc()
		g.log.Debug().Str("user_id", c.identity.UserID.String()).Msg("dropping event for slow websocket client")
	}
}
