package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const incidentColumns = `id, latitude, longitude, address, description, tier_id, status,
	station_id, reporter_id, assignee_id, created_at, updated_at, resolved_at`

// CreateIncident persists a new incident and fills in generated fields.
func (s *Store) CreateIncident(ctx context.Context, inc *Incident) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO incidents (latitude, longitude, address, description, tier_id, status,
			station_id, reporter_id, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		inc.Latitude, inc.Longitude, inc.Address, inc.Description, inc.TierID, inc.Status,
		inc.StationID, inc.ReporterID, inc.AssigneeID).
		Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident fetches a single incident by id.
func (s *Store) GetIncident(ctx context.Context, id uuid.UUID) (Incident, error) {
	var inc Incident
	err := s.pool.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE id = $1`, id).
		Scan(&inc.ID, &inc.Latitude, &inc.Longitude, &inc.Address, &inc.Description,
			&inc.TierID, &inc.Status, &inc.StationID, &inc.ReporterID, &inc.AssigneeID,
			&inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt)
	if err != nil {
		return Incident{}, err
	}
	return inc, nil
}

// UpdateIncident writes back every mutable field of the incident.
func (s *Store) UpdateIncident(ctx context.Context, inc *Incident) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE incidents
		SET latitude = $2, longitude = $3, address = $4, description = $5,
			tier_id = $6, status = $7, station_id = $8, assignee_id = $9,
			resolved_at = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		inc.ID, inc.Latitude, inc.Longitude, inc.Address, inc.Description,
		inc.TierID, inc.Status, inc.StationID, inc.AssigneeID, inc.ResolvedAt).
		Scan(&inc.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

// DeleteIncident removes the incident row. Attached vehicle links cascade.
func (s *Store) DeleteIncident(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ListIncidents returns incidents newest-first with limit/offset paging.
func (s *Store) ListIncidents(ctx context.Context, limit, offset int32) ([]Incident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	return scanIncidents(rows)
}

// ListIncidentsByStation is the station-scoped variant used for
// station-bound dispatchers.
func (s *Store) ListIncidentsByStation(ctx context.Context, stationID uuid.UUID, limit, offset int32) ([]Incident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE station_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, stationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list incidents by station: %w", err)
	}
	defer rows.Close()
	return scanIncidents(rows)
}

type incidentRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIncidents(rows incidentRows) ([]Incident, error) {
	var out []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(&inc.ID, &inc.Latitude, &inc.Longitude, &inc.Address, &inc.Description,
			&inc.TierID, &inc.Status, &inc.StationID, &inc.ReporterID, &inc.AssigneeID,
			&inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
