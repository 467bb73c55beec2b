package db

import (
	"context"
	"fmt"
)

// Stats holds record counts across the whole database.
type Stats struct {
	CenterCount  int `json:"center_count"`
	PatientCount int `json:"patient_count"`
	SessionCount int `json:"session_count"`
	AlertCount   int `json:"alert_count"`
}

// GetStats returns overall record counts.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT center_id FROM patients
				UNION SELECT center_id FROM sessions
				UNION SELECT center_id FROM alerts)),
			(SELECT COUNT(*) FROM patients),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM alerts)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.CenterCount,
		&s.PatientCount,
		&s.SessionCount,
		&s.AlertCount,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
