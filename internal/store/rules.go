package store

import (
	"context"
	"fmt"
)

const ruleColumns = `id, address, latitude, longitude, tier_id, description, created_at`

// FindRuleByExactAddress looks up an address rule by case-insensitive exact
// text match.
func (s *Store) FindRuleByExactAddress(ctx context.Context, address string) (AddressRule, error) {
	var r AddressRule
	err := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM address_rules
		WHERE lower(address) = lower($1)
		ORDER BY created_at
		LIMIT 1`, address).
		Scan(&r.ID, &r.Address, &r.Latitude, &r.Longitude, &r.TierID, &r.Description, &r.CreatedAt)
	if err != nil {
		return AddressRule{}, err
	}
	return r, nil
}

// FindRuleByContainment matches when either string contains the other,
// case-insensitively. Multiple matches resolve to the first row in creation
// order; no stronger tie-break is defined.
func (s *Store) FindRuleByContainment(ctx context.Context, address string) (AddressRule, error) {
	var r AddressRule
	err := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM address_rules
		WHERE lower($1) LIKE '%' || lower(address) || '%'
		   OR lower(address) LIKE '%' || lower($1) || '%'
		ORDER BY created_at
		LIMIT 1`, address).
		Scan(&r.ID, &r.Address, &r.Latitude, &r.Longitude, &r.TierID, &r.Description, &r.CreatedAt)
	if err != nil {
		return AddressRule{}, err
	}
	return r, nil
}

// ListRulesWithCoordinates returns every address rule that carries
// coordinates, for proximity classification.
func (s *Store) ListRulesWithCoordinates(ctx context.Context) ([]AddressRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM address_rules
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list rules with coordinates: %w", err)
	}
	defer rows.Close()

	var out []AddressRule
	for rows.Next() {
		var r AddressRule
		if err := rows.Scan(&r.ID, &r.Address, &r.Latitude, &r.Longitude, &r.TierID, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan address rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
