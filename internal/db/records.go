package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/axeelhrz/clinicview/internal/metrics"
)

// DefaultListLimit is the default number of records returned
// by the list queries.
const DefaultListLimit = 200

// MaxListLimit is the maximum number of records returned by
// the list queries.
const MaxListLimit = 1000

// ClampLimit normalizes a requested limit into [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// FetchSessions returns a center's sessions dated within the
// inclusive [from, to] window, oldest first.
func (db *DB) FetchSessions(
	ctx context.Context, center, from, to string,
) ([]metrics.Session, error) {
	const query = `SELECT id, patient_id, professional_id,
		date, type, status, emotional_tone, risk_level
		FROM sessions
		WHERE center_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`

	rows, err := db.reader.QueryContext(ctx, query, center, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []metrics.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// FetchPatients returns every patient of a center. Patients are
// not windowed by date: ones created before a reporting period
// still anchor that period's denominators.
func (db *DB) FetchPatients(
	ctx context.Context, center string,
) ([]metrics.Patient, error) {
	const query = `SELECT id, status, emotional_state,
		motive, created_at
		FROM patients WHERE center_id = ?
		ORDER BY created_at, id`

	rows, err := db.reader.QueryContext(ctx, query, center)
	if err != nil {
		return nil, fmt.Errorf("querying patients: %w", err)
	}
	defer rows.Close()

	var patients []metrics.Patient
	for rows.Next() {
		var p metrics.Patient
		if err := rows.Scan(
			&p.ID, &p.Status, &p.EmotionalState,
			&p.Motive, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// FetchAlerts returns a center's alerts created within the
// inclusive [from, to] window, oldest first. The window bounds
// compare on the calendar-day prefix of created_at.
func (db *DB) FetchAlerts(
	ctx context.Context, center, from, to string,
) ([]metrics.Alert, error) {
	const query = `SELECT id, patient_id, type, urgency,
		status, created_at
		FROM alerts
		WHERE center_id = ?
		  AND substr(created_at, 1, 10) >= ?
		  AND substr(created_at, 1, 10) <= ?
		ORDER BY created_at, id`

	rows, err := db.reader.QueryContext(ctx, query, center, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []metrics.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(rs rowScanner) (metrics.Session, error) {
	var s metrics.Session
	var tone, risk *string
	err := rs.Scan(
		&s.ID, &s.PatientID, &s.ProfessionalID,
		&s.Date, &s.Type, &s.Status, &tone, &risk,
	)
	if err != nil {
		return metrics.Session{}, err
	}
	// A NULL tone and risk means the session was never
	// AI-analyzed; only then is AIAnalysis absent.
	if tone != nil || risk != nil {
		a := &metrics.AIAnalysis{}
		if tone != nil {
			a.EmotionalTone = metrics.EmotionalTone(*tone)
		}
		if risk != nil {
			a.RiskLevel = metrics.RiskLevel(*risk)
		}
		s.AIAnalysis = a
	}
	return s, nil
}

func scanAlert(rs rowScanner) (metrics.Alert, error) {
	var a metrics.Alert
	err := rs.Scan(
		&a.ID, &a.PatientID, &a.Type, &a.Urgency,
		&a.Status, &a.CreatedAt,
	)
	return a, err
}

// ListSessions returns up to limit of a center's most recent
// sessions for the record browser.
func (db *DB) ListSessions(
	ctx context.Context, center string, limit int,
) ([]metrics.Session, error) {
	const query = `SELECT id, patient_id, professional_id,
		date, type, status, emotional_tone, risk_level
		FROM sessions WHERE center_id = ?
		ORDER BY date DESC, id LIMIT ?`

	rows, err := db.reader.QueryContext(
		ctx, query, center, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []metrics.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListPatients returns up to limit of a center's patients,
// newest first.
func (db *DB) ListPatients(
	ctx context.Context, center string, limit int,
) ([]metrics.Patient, error) {
	const query = `SELECT id, status, emotional_state,
		motive, created_at
		FROM patients WHERE center_id = ?
		ORDER BY created_at DESC, id LIMIT ?`

	rows, err := db.reader.QueryContext(
		ctx, query, center, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	patients := []metrics.Patient{}
	for rows.Next() {
		var p metrics.Patient
		if err := rows.Scan(
			&p.ID, &p.Status, &p.EmotionalState,
			&p.Motive, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// ListAlerts returns up to limit of a center's alerts, newest
// first.
func (db *DB) ListAlerts(
	ctx context.Context, center string, limit int,
) ([]metrics.Alert, error) {
	const query = `SELECT id, patient_id, type, urgency,
		status, created_at
		FROM alerts WHERE center_id = ?
		ORDER BY created_at DESC, id LIMIT ?`

	rows, err := db.reader.QueryContext(
		ctx, query, center, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	alerts := []metrics.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListCenters returns every center ID present in any record
// table, sorted.
func (db *DB) ListCenters(ctx context.Context) ([]string, error) {
	const query = `SELECT center_id FROM (
			SELECT center_id FROM patients
			UNION SELECT center_id FROM sessions
			UNION SELECT center_id FROM alerts
		) ORDER BY center_id`

	rows, err := db.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing centers: %w", err)
	}
	defer rows.Close()

	centers := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning center: %w", err)
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

// ReplaceSessions replaces a center's entire session
// collection inside tx. Export files are authoritative
// snapshots, so a changed file replaces rather than merges.
func ReplaceSessions(
	tx *sql.Tx, center string, sessions []metrics.Session,
) error {
	if _, err := tx.Exec(
		"DELETE FROM sessions WHERE center_id = ?", center,
	); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO sessions
		(id, center_id, patient_id, professional_id,
		 date, type, status, emotional_tone, risk_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing session insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sessions {
		var tone, risk *string
		if s.AIAnalysis != nil {
			t := string(s.AIAnalysis.EmotionalTone)
			r := string(s.AIAnalysis.RiskLevel)
			tone, risk = &t, &r
		}
		if _, err := stmt.Exec(
			s.ID, center, s.PatientID, s.ProfessionalID,
			s.Date, s.Type, s.Status, tone, risk,
		); err != nil {
			return fmt.Errorf("inserting session %s: %w", s.ID, err)
		}
	}
	return nil
}

// ReplacePatients replaces a center's entire patient
// collection inside tx.
func ReplacePatients(
	tx *sql.Tx, center string, patients []metrics.Patient,
) error {
	if _, err := tx.Exec(
		"DELETE FROM patients WHERE center_id = ?", center,
	); err != nil {
		return fmt.Errorf("clearing patients: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO patients
		(id, center_id, status, emotional_state, motive, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing patient insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range patients {
		if _, err := stmt.Exec(
			p.ID, center, p.Status, p.EmotionalState,
			p.Motive, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting patient %s: %w", p.ID, err)
		}
	}
	return nil
}

// ReplaceAlerts replaces a center's entire alert collection
// inside tx.
func ReplaceAlerts(
	tx *sql.Tx, center string, alerts []metrics.Alert,
) error {
	if _, err := tx.Exec(
		"DELETE FROM alerts WHERE center_id = ?", center,
	); err != nil {
		return fmt.Errorf("clearing alerts: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO alerts
		(id, center_id, patient_id, type, urgency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.Exec(
			a.ID, center, a.PatientID, a.Type,
			a.Urgency, a.Status, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting alert %s: %w", a.ID, err)
		}
	}
	return nil
}

// SessionCountsBefore reports how many of a center's sessions
// fall strictly before the given day, grouped by month
// ("YYYY-MM"). The prune command uses it to preview a delete.
func (db *DB) SessionCountsBefore(
	center, day string,
) (map[string]int, int, error) {
	rows, err := db.reader.Query(
		`SELECT substr(date, 1, 7), COUNT(*) FROM sessions
		 WHERE center_id = ? AND date < ?
		 GROUP BY substr(date, 1, 7)`,
		center, day,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}
	defer rows.Close()

	byMonth := map[string]int{}
	total := 0
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, 0, fmt.Errorf("scanning count: %w", err)
		}
		byMonth[month] = n
		total += n
	}
	return byMonth, total, rows.Err()
}

// DeleteSessionsBefore removes a center's sessions dated
// strictly before the given day. Used by the prune command.
func (db *DB) DeleteSessionsBefore(
	center, day string,
) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.writer.Exec(
		"DELETE FROM sessions WHERE center_id = ? AND date < ?",
		center, day,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}
