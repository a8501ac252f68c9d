package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ListStations returns every station. Ordered by creation so distance ties
// resolve the same way across calls.
func (s *Store) ListStations(ctx context.Context) ([]Station, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, address, latitude, longitude, phone, created_at
		FROM stations
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Latitude, &st.Longitude, &st.Phone, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetStation fetches a single station by id.
func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (Station, error) {
	var st Station
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, address, latitude, longitude, phone, created_at
		FROM stations
		WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.Address, &st.Latitude, &st.Longitude, &st.Phone, &st.CreatedAt)
	if err != nil {
		return Station{}, err
	}
	return st, nil
}
