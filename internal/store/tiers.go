package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetTier fetches a severity tier by id.
func (s *Store) GetTier(ctx context.Context, id uuid.UUID) (SeverityTier, error) {
	var t SeverityTier
	err := s.pool.QueryRow(ctx, `
		SELECT id, ordinal, name, description
		FROM severity_tiers
		WHERE id = $1`, id).
		Scan(&t.ID, &t.Ordinal, &t.Name, &t.Description)
	if err != nil {
		return SeverityTier{}, err
	}
	return t, nil
}

// ListTiers returns every severity tier ordered by ordinal, lowest first.
func (s *Store) ListTiers(ctx context.Context) ([]SeverityTier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ordinal, name, description
		FROM severity_tiers
		ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var out []SeverityTier
	for rows.Next() {
		var t SeverityTier
		if err := rows.Scan(&t.ID, &t.Ordinal, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TierRequirements returns the tier's requirement list in defined order.
// Uniqueness per (tier, vehicle type) is enforced by the schema on write.
func (s *Store) TierRequirements(ctx context.Context, tierID uuid.UUID) ([]TierRequirement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier_id, vehicle_type, count, position
		FROM tier_requirements
		WHERE tier_id = $1
		ORDER BY position`, tierID)
	if err != nil {
		return nil, fmt.Errorf("list tier requirements: %w", err)
	}
	defer rows.Close()

	var out []TierRequirement
	for rows.Next() {
		var r TierRequirement
		if err := rows.Scan(&r.TierID, &r.VehicleType, &r.Count, &r.Position); err != nil {
			return nil, fmt.Errorf("scan tier requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOpenIncidentsByTier counts pending/in-progress incidents referencing
// the tier. Used to guard tier deletion.
func (s *Store) CountOpenIncidentsByTier(ctx context.Context, tierID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM incidents
		WHERE tier_id = $1 AND status IN ($2, $3)`,
		tierID, IncidentStatusPending, IncidentStatusInProgress).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open incidents by tier: %w", err)
	}
	return n, nil
}

// DeleteTier removes a tier and its requirement rows.
func (s *Store) DeleteTier(ctx context.Context, tierID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM severity_tiers WHERE id = $1`, tierID)
	if err != nil {
		return fmt.Errorf("delete tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}
