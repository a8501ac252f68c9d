package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateReport files a report against an incident.
func (s *Store) CreateReport(ctx context.Context, rep *Report) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reports (incident_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		rep.IncidentID, rep.AuthorID, rep.Body).
		Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// ListReportsByIncident returns an incident's reports, oldest first.
func (s *Store) ListReportsByIncident(ctx context.Context, incidentID uuid.UUID) ([]Report, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, incident_id, author_id, body, created_at
		FROM reports
		WHERE incident_id = $1
		ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.IncidentID, &rep.AuthorID, &rep.Body, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
