// Package store holds the persisted record types and their pgx-backed
// repositories. All queries run against the shared pgxpool; the pool's
// transaction and row semantics are the only serialization point for
// concurrent mutations.
package store

import (
	"time"

	"github.com/google/uuid"
)

// VehicleType enumerates the responder vehicle categories.
type VehicleType string

const (
	VehicleTypeEngine  VehicleType = "engine"
	VehicleTypeLadder  VehicleType = "ladder"
	VehicleTypeRescue  VehicleType = "rescue"
	VehicleTypeTanker  VehicleType = "tanker"
	VehicleTypeCommand VehicleType = "command"
)

// VehicleStatus tracks a vehicle's availability.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "available"
	VehicleStatusOnDuty      VehicleStatus = "on_duty"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// IncidentStatus tracks an incident through its lifecycle.
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "pending"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusCancelled  IncidentStatus = "cancelled"
)

// StatusDeleted is a synthetic marker carried only by fireUpdated events
// after a delete, so clients can drop the row from local caches without a
// dedicated delete event type. It is never persisted.
const StatusDeleted = "DELETED"

// Station is a physical fire house owning a set of vehicles.
type Station struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	Phone     *string
	CreatedAt time.Time
}

// Vehicle belongs to exactly one station at a time. It is on_duty iff it is
// currently attached to at least one open incident.
type Vehicle struct {
	ID        uuid.UUID
	Model     string
	Type      VehicleType
	Status    VehicleStatus
	StationID uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeverityTier is an ordinal classification driving how many vehicles of
// which types must respond. Ordinals are unique.
type SeverityTier struct {
	ID          uuid.UUID
	Ordinal     int32
	Name        string
	Description string
}

// TierRequirement is one row of a tier's ordered requirement list.
type TierRequirement struct {
	TierID      uuid.UUID
	VehicleType VehicleType
	Count       int32
	Position    int32
}

// AddressRule maps a known address to a severity tier, optionally anchored
// to coordinates for proximity classification.
type AddressRule struct {
	ID          uuid.UUID
	Address     string
	Latitude    *float64
	Longitude   *float64
	TierID      uuid.UUID
	Description string
	CreatedAt   time.Time
}

// Incident is a reported fire event. It always references exactly one
// station and one severity tier; ResolvedAt is set iff the status is
// resolved.
type Incident struct {
	ID          uuid.UUID
	Latitude    float64
	Longitude   float64
	Address     *string
	Description *string
	TierID      uuid.UUID
	Status      IncidentStatus
	StationID   uuid.UUID
	ReporterID  uuid.UUID
	AssigneeID  uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// Open reports whether the incident still counts against tier references
// and vehicle duty.
func (i Incident) Open() bool {
	return i.Status == IncidentStatusPending || i.Status == IncidentStatusInProgress
}

// ActivityEntry is one row of the generic audit log. Marker embeds an
// entity reference (e.g. "incident:<id>") so history lookups can run as a
// free-text search.
type ActivityEntry struct {
	ID        int64
	Kind      string
	Actor     *string
	Message   string
	Marker    string
	OldValue  *string
	NewValue  *string
	CreatedAt time.Time
}

// Report is filed against an incident by an operator.
type Report struct {
	ID         uuid.UUID
	IncidentID uuid.UUID
	AuthorID   uuid.UUID
	Body       string
	CreatedAt  time.Time
}
