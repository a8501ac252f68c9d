// Package realtime owns the websocket fan-out layer: connection
// authentication, room membership, liveness probing and event delivery.
// Delivery is best-effort and at-most-once; a disconnected client misses
// events until it reconnects and re-fetches state over HTTP.
package realtime

import (
	"encoding/json"
	"time"

	"firewatch/internal/store"
)

// EventName tags a server-to-client event.
type EventName string

const (
	EventFireCreated   EventName = "fireCreated"
	EventFireUpdated   EventName = "fireUpdated"
	EventFireAssigned  EventName = "fireAssigned"
	EventReportCreated EventName = "reportCreated"
)

// Envelope is the wire frame for every server-to-client event. Payload is
// always one of the typed variants below; producers and consumers share
// this closed set.
type Envelope struct {
	Event   EventName `json:"event"`
	Payload any       `json:"payload"`
}

// IncidentPayload is the incident projection embedded in events.
type IncidentPayload struct {
	ID          string     `json:"id"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Address     string     `json:"address,omitempty"`
	Description string     `json:"description,omitempty"`
	TierID      string     `json:"tier_id"`
	TierName    string     `json:"tier_name"`
	TierOrdinal int32      `json:"tier_ordinal"`
	Status      string     `json:"status"`
	StationID   string     `json:"station_id"`
	ReporterID  string     `json:"reporter_id"`
	AssigneeID  string     `json:"assignee_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// FireCreatedPayload announces a newly persisted incident to every
// connected dispatcher.
type FireCreatedPayload struct {
	Incident IncidentPayload `json:"incident"`
}

// FireUpdatedPayload is the slim refresh signal for any incident mutation,
// including deletion (status DELETED).
type FireUpdatedPayload struct {
	IncidentID  string `json:"incident_id"`
	Status      string `json:"status"`
	TierOrdinal int32  `json:"tier_ordinal"`
	StationID   string `json:"station_id"`
}

// FireAssignedPayload carries the routing decision. Sound is set only on
// the variant delivered to the assigned station's dispatchers.
type FireAssignedPayload struct {
	Incident  IncidentPayload `json:"incident"`
	StationID string          `json:"station_id"`
	Sound     bool            `json:"sound"`
}

// ReportCreatedPayload announces a report filed against an incident.
type ReportCreatedPayload struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClientMessage is the frame clients send upstream.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AuthenticatePayload re-asserts the identity bound at handshake. A
// mismatch is a protocol violation and closes the connection.
type AuthenticatePayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// StationPayload names the station room to join or leave.
type StationPayload struct {
	StationID string `json:"station_id"`
}

func incidentPayload(inc store.Incident, tier store.SeverityTier) IncidentPayload {
	p := IncidentPayload{
		ID:          inc.ID.String(),
		Latitude:    inc.Latitude,
		Longitude:   inc.Longitude,
		TierID:      tier.ID.String(),
		TierName:    tier.Name,
		TierOrdinal: tier.Ordinal,
		Status:      string(inc.Status),
		StationID:   inc.StationID.String(),
		ReporterID:  inc.ReporterID.String(),
		AssigneeID:  inc.AssigneeID.String(),
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
		ResolvedAt:  inc.ResolvedAt,
	}
	if inc.Address != nil {
		p.Address = *inc.Address
	}
	if inc.Description != nil {
		p.Description = *inc.Description
	}
	return p
}
