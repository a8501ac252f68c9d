package store

import (
	"context"
	"fmt"
)

// RecordActivity appends one audit entry. Callers treat failures as
// non-fatal; the primary operation must never abort on a logging error.
func (s *Store) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_log (kind, actor, message, marker, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Kind, entry.Actor, entry.Message, entry.Marker, entry.OldValue, entry.NewValue)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// SearchActivity returns entries whose marker contains the given fragment,
// newest first. Incident history uses the "incident:<id>" marker.
func (s *Store) SearchActivity(ctx context.Context, marker string, limit int32) ([]ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, actor, message, marker, old_value, new_value, created_at
		FROM activity_log
		WHERE marker ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2`, marker, limit)
	if err != nil {
		return nil, fmt.Errorf("search activity: %w", err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

// ListRecentActivity returns the newest audit entries for the sync snapshot.
func (s *Store) ListRecentActivity(ctx context.Context, limit int32) ([]ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, actor, message, marker, old_value, new_value, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	defer rows.Close()
	return scanActivity(rows)
}

type activityRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanActivity(rows activityRows) ([]ActivityEntry, error) {
	var out []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Actor, &e.Message, &e.Marker, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
