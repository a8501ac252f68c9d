package server

import (
	"time"

	"firewatch/internal/store"

	"github.com/google/uuid"
)

// ===== Request DTOs =====

// CreateIncidentRequest is the payload for reporting a new fire.
type CreateIncidentRequest struct {
	Latitude    float64    `json:"latitude" validate:"latitude"`
	Longitude   float64    `json:"longitude" validate:"longitude"`
	Address     *string    `json:"address,omitempty" validate:"omitempty,max=512"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=4096"`
	LevelID     *uuid.UUID `json:"level_id,omitempty"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress"`
	StationID   *uuid.UUID `json:"station_id,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
}

// UpdateIncidentRequest is a partial update; absent fields stay untouched.
type UpdateIncidentRequest struct {
	Latitude    *float64   `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64   `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Address     *string    `json:"address,omitempty" validate:"omitempty,max=512"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=4096"`
	LevelID     *uuid.UUID `json:"level_id,omitempty"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress resolved cancelled"`
	StationID   *uuid.UUID `json:"station_id,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
}

// SetStatusRequest moves an incident through its lifecycle.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress resolved cancelled"`
}

// ChangeLevelRequest re-classifies an incident onto another severity level.
type ChangeLevelRequest struct {
	LevelID uuid.UUID `json:"level_id" validate:"required"`
	Reason  string    `json:"reason,omitempty" validate:"max=1024"`
}

// CreateReportRequest files an after-action report against an incident.
type CreateReportRequest struct {
	Body string `json:"body" validate:"required,max=16384"`
}

// ===== Response DTOs =====

// IncidentResponse is the wire form of an incident.
type IncidentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Address     *string    `json:"address,omitempty"`
	Description *string    `json:"description,omitempty"`
	LevelID     uuid.UUID  `json:"level_id"`
	Status      string     `json:"status"`
	StationID   uuid.UUID  `json:"station_id"`
	ReporterID  uuid.UUID  `json:"reporter_id"`
	AssigneeID  uuid.UUID  `json:"assignee_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// CreateIncidentResponse bundles the created incident with the vehicles
// allocated for it.
type CreateIncidentResponse struct {
	Incident IncidentResponse  `json:"incident"`
	Vehicles []VehicleResponse `json:"vehicles"`
}

// VehicleResponse is the wire form of a vehicle.
type VehicleResponse struct {
	ID        uuid.UUID `json:"id"`
	Model     string    `json:"model"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	StationID uuid.UUID `json:"station_id"`
}

// StationResponse is the wire form of a fire station.
type StationResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Phone     *string   `json:"phone,omitempty"`
}

// LevelResponse is a severity level together with its ordered vehicle
// requirement list.
type LevelResponse struct {
	ID           uuid.UUID             `json:"id"`
	Ordinal      int32                 `json:"ordinal"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	Requirements []RequirementResponse `json:"requirements"`
}

// RequirementResponse is one row of a level's requirement list.
type RequirementResponse struct {
	VehicleType string `json:"vehicle_type"`
	Count       int32  `json:"count"`
}

// ReportResponse is the wire form of a filed report.
type ReportResponse struct {
	ID         uuid.UUID `json:"id"`
	IncidentID uuid.UUID `json:"incident_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityResponse is one audit-log entry for an incident's history.
type ActivityResponse struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Actor     *string   `json:"actor,omitempty"`
	Message   string    `json:"message"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncResponse is the reconnect snapshot: everything a client needs to
// rebuild local state after a websocket gap.
type SyncResponse struct {
	Incidents []IncidentResponse `json:"incidents"`
	Stations  []StationResponse  `json:"stations"`
	Levels    []LevelResponse    `json:"levels"`
	Vehicles  []VehicleResponse  `json:"vehicles"`
	Activity  []ActivityResponse `json:"activity"`
	ServerTS  time.Time          `json:"server_ts"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ===== Mappers =====

func toIncidentResponse(inc store.Incident) IncidentResponse {
	return IncidentResponse{
		ID:          inc.ID,
		Latitude:    inc.Latitude,
		Longitude:   inc.Longitude,
		Address:     inc.Address,
		Description: inc.Description,
		LevelID:     inc.TierID,
		Status:      string(inc.Status),
		StationID:   inc.StationID,
		ReporterID:  inc.ReporterID,
		AssigneeID:  inc.AssigneeID,
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
		ResolvedAt:  inc.ResolvedAt,
	}
}

func toIncidentResponses(incs []store.Incident) []IncidentResponse {
	out := make([]IncidentResponse, 0, len(incs))
	for _, inc := range incs {
		out = append(out, toIncidentResponse(inc))
	}
	return out
}

func toVehicleResponses(vehicles []store.Vehicle) []VehicleResponse {
	out := make([]VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, VehicleResponse{
			ID:        v.ID,
			Model:     v.Model,
			Type:      string(v.Type),
			Status:    string(v.Status),
			StationID: v.StationID,
		})
	}
	return out
}

func toStationResponses(stations []store.Station) []StationResponse {
	out := make([]StationResponse, 0, len(stations))
	for _, st := range stations {
		out = append(out, StationResponse{
			ID:        st.ID,
			Name:      st.Name,
			Address:   st.Address,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Phone:     st.Phone,
		})
	}
	return out
}

func toLevelResponse(tier store.SeverityTier, reqs []store.TierRequirement) LevelResponse {
	resp := LevelResponse{
		ID:           tier.ID,
		Ordinal:      tier.Ordinal,
		Name:         tier.Name,
		Description:  tier.Description,
		Requirements: make([]RequirementResponse, 0, len(reqs)),
	}
	for _, r := range reqs {
		resp.Requirements = append(resp.Requirements, RequirementResponse{
			VehicleType: string(r.VehicleType),
			Count:       r.Count,
		})
	}
	return resp
}

func toReportResponse(rep store.Report) ReportResponse {
	return ReportResponse{
		ID:         rep.ID,
		IncidentID: rep.IncidentID,
		AuthorID:   rep.AuthorID,
		Body:       rep.Body,
		CreatedAt:  rep.CreatedAt,
	}
}

func toActivityResponses(entries []store.ActivityEntry) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Actor:     e.Actor,
			Message:   e.Message,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
