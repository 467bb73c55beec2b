package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/axeelhrz/clinicview/internal/metrics"
)

// isValidDate checks that s is a well-formed YYYY-MM-DD string.
func isValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// defaultDateRange returns (from, to) defaulting to the last
// 30 days if not provided.
func (s *Server) defaultDateRange(
	from, to string,
) (string, string) {
	now := s.now().UTC()
	if to == "" {
		to = now.Format("2006-01-02")
	}
	if from == "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			t = now
		}
		from = t.AddDate(0, 0, -30).Format("2006-01-02")
	}
	return from, to
}

// dashboardQuery is the parsed query surface shared by the
// dashboard endpoints: which center, which record subset, and
// how to calculate.
type dashboardQuery struct {
	Center string
	Filter metrics.Filter
	Opts   metrics.Options
}

// cacheKey renders the query into a deterministic string for
// snapshot memoization.
func (q dashboardQuery) cacheKey() string {
	f := q.Filter
	return fmt.Sprintf(
		"%s|%s|%s|%s|%s|%s|%s|%s|%t|%t|%d",
		q.Center, f.Range.Start, f.Range.End,
		f.ProfessionalID, f.PatientID, f.SessionType,
		f.Tone, f.AlertType, f.IncludeInactive,
		q.Opts.ExcludeCancelled, q.Opts.MinFollowUpSessions,
	)
}

// parseDashboardQuery extracts the dashboard filter params from
// a request. Writes a 400 response and returns false on invalid
// input.
func (s *Server) parseDashboardQuery(
	w http.ResponseWriter, r *http.Request,
) (dashboardQuery, bool) {
	q := r.URL.Query()

	center := q.Get("center")
	if center == "" {
		center = s.cfg.DefaultCenter
	}
	if center == "" {
		writeError(w, http.StatusBadRequest,
			"center is required")
		return dashboardQuery{}, false
	}

	from, to := s.defaultDateRange(q.Get("from"), q.Get("to"))
	if !isValidDate(from) || !isValidDate(to) {
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
		return dashboardQuery{}, false
	}
	if from > to {
		writeError(w, http.StatusBadRequest,
			"from must not be after to")
		return dashboardQuery{}, false
	}

	opts := metrics.DefaultOptions()
	if v := q.Get("include_cancelled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				"include_cancelled must be a boolean")
			return dashboardQuery{}, false
		}
		opts.ExcludeCancelled = !b
	}
	if v := q.Get("min_follow_up"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest,
				"min_follow_up must be a positive integer")
			return dashboardQuery{}, false
		}
		opts.MinFollowUpSessions = n
	}

	includeInactive := false
	if v := q.Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				"include_inactive must be a boolean")
			return dashboardQuery{}, false
		}
		includeInactive = b
	}

	return dashboardQuery{
		Center: center,
		Filter: metrics.Filter{
			Range: metrics.DateRange{
				Start: from,
				End:   to,
			},
			ProfessionalID: q.Get("professional"),
			PatientID:      q.Get("patient"),
			SessionType: metrics.SessionType(
				q.Get("session_type"),
			),
			Tone: metrics.EmotionalTone(
				q.Get("emotional_tone"),
			),
			AlertType:       q.Get("alert_type"),
			IncludeInactive: includeInactive,
		},
		Opts: opts,
	}, true
}

// parseLimit reads the limit query param, falling back to the
// default when absent or malformed.
func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
