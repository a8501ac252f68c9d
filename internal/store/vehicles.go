package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const vehicleColumns = `id, model, type, status, station_id, created_at, updated_at`

// ListAvailableVehicles returns the available vehicles housed at a station,
// in creation order. Allocation is first-come from this order.
func (s *Store) ListAvailableVehicles(ctx context.Context, stationID uuid.UUID) ([]Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE station_id = $1 AND status = $2
		ORDER BY created_at`, stationID, VehicleStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available vehicles: %w", err)
	}
	defer rows.Close()
	return scanVehicles(rows)
}

// ListIncidentVehicles returns the vehicles currently attached to an incident.
func (s *Store) ListIncidentVehicles(ctx context.Context, incidentID uuid.UUID) ([]Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT v.id, v.model, v.type, v.status, v.station_id, v.created_at, v.updated_at
		FROM vehicles v
		JOIN incident_vehicles iv ON iv.vehicle_id = v.id
		WHERE iv.incident_id = $1
		ORDER BY iv.attached_at`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident vehicles: %w", err)
	}
	defer rows.Close()
	return scanVehicles(rows)
}

// AssignVehicle attaches a vehicle to an incident and marks it on duty.
func (s *Store) AssignVehicle(ctx context.Context, vehicleID, incidentID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assign vehicle: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO incident_vehicles (incident_id, vehicle_id) VALUES ($1, $2)`,
		incidentID, vehicleID); err != nil {
		return fmt.Errorf("attach vehicle: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE vehicles SET status = $2, updated_at = now() WHERE id = $1`,
		vehicleID, VehicleStatusOnDuty); err != nil {
		return fmt.Errorf("mark vehicle on duty: %w", err)
	}
	return tx.Commit(ctx)
}

// ReleaseVehicle detaches a vehicle from an incident and returns it to
// available unless it is under maintenance.
func (s *Store) ReleaseVehicle(ctx context.Context, vehicleID, incidentID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("release vehicle: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM incident_vehicles WHERE incident_id = $1 AND vehicle_id = $2`,
		incidentID, vehicleID); err != nil {
		return fmt.Errorf("detach vehicle: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE vehicles SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> $3`,
		vehicleID, VehicleStatusAvailable, VehicleStatusMaintenance); err != nil {
		return fmt.Errorf("mark vehicle available: %w", err)
	}
	return tx.Commit(ctx)
}

// ListVehicles returns every vehicle, used by the sync snapshot.
func (s *Store) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()
	return scanVehicles(rows)
}

type vehicleRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanVehicles(rows vehicleRows) ([]Vehicle, error) {
	var out []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Model, &v.Type, &v.Status, &v.StationID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
