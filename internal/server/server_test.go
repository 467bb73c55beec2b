package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/axeelhrz/clinicview/internal/config"
	"github.com/axeelhrz/clinicview/internal/db"
	"github.com/axeelhrz/clinicview/internal/server"
	"github.com/axeelhrz/clinicview/internal/sync"
	"github.com/axeelhrz/clinicview/internal/testrecords"
)

// The clock is pinned so default date windows are stable.
var testNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

// testEnv sets up a server with a temporary database and
// records directory.
type testEnv struct {
	srv        *server.Server
	handler    http.Handler
	db         *db.DB
	engine     *sync.Engine
	recordsDir string
}

// setupOption customizes the config used by setup.
type setupOption func(*config.Config)

func withDefaultCenter(center string) setupOption {
	return func(c *config.Config) { c.DefaultCenter = center }
}

func setup(t *testing.T, opts ...setupOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	recordsDir := filepath.Join(dir, "records")
	if err := os.MkdirAll(recordsDir, 0o755); err != nil {
		t.Fatalf("creating records dir: %v", err)
	}

	cfg := config.Config{
		Host:         "127.0.0.1",
		Port:         0,
		RecordsDir:   recordsDir,
		DataDir:      dir,
		DBPath:       dbPath,
		WriteTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine := sync.NewEngine(database, recordsDir)
	srv := server.New(
		cfg, database, engine,
		server.WithClock(func() time.Time { return testNow }),
		server.WithVersion(server.VersionInfo{Version: "test"}),
	)

	return &testEnv{
		srv:        srv,
		handler:    srv.Handler(),
		db:         database,
		engine:     engine,
		recordsDir: recordsDir,
	}
}

// writeExport writes one export file for a center and returns
// its path.
func (te *testEnv) writeExport(
	t *testing.T, center, name, content string,
) string {
	t.Helper()
	dir := filepath.Join(te.recordsDir, center)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(
		path, []byte(content), 0o644,
	); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedRecords imports a small January 2024 data set for
// center1: two completed sessions with AI analysis, one
// cancelled session, two active patients, one active alert.
func (te *testEnv) seedRecords(t *testing.T) {
	t.Helper()
	te.writeExport(t, "center1", "sessions.jsonl",
		testrecords.JoinJSONL(
			testrecords.SessionJSON(
				"s1", "p1", "dr1", "2024-01-01",
				"individual", "completed", "calm", "low",
			),
			testrecords.SessionJSON(
				"s2", "p1", "dr1", "2024-01-03",
				"online", "completed", "anxious", "high",
			),
			testrecords.SessionJSON(
				"s3", "p2", "dr2", "2024-01-02",
				"individual", "cancelled", "", "",
			),
		))
	te.writeExport(t, "center1", "patients.json",
		testrecords.ArrayJSON(
			testrecords.PatientJSON(
				"p1", "active", "calm", "anxiety",
				"2024-01-01T09:00:00Z",
			),
			testrecords.PatientJSON(
				"p2", "active", "anxious", "",
				"2024-01-02T09:00:00Z",
			),
		))
	te.writeExport(t, "center1", "alerts.json",
		testrecords.ArrayJSON(
			testrecords.AlertJSON(
				"a1", "p1", "risk", "high", "activa",
				"2024-01-02T10:00:00Z",
			),
		))
	stats := te.engine.SyncAll(nil)
	if stats.Failed > 0 {
		t.Fatalf("seed import failed: %+v", stats)
	}
}

// get performs a GET request against the server handler.
func (te *testEnv) get(
	t *testing.T, path string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	te.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

type metricsBody struct {
	HasData bool            `json:"has_data"`
	Metrics json.RawMessage `json:"metrics"`
}

func TestDashboardMetrics(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	rec := te.get(t, "/api/v1/dashboard/metrics"+
		"?center=center1&from=2024-01-01&to=2024-01-31")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body metricsBody
	decodeJSON(t, rec, &body)
	if !body.HasData {
		t.Fatal("expected has_data true")
	}

	var snap struct {
		TotalActivePatients   int            `json:"total_active_patients"`
		TotalSessions         int            `json:"total_sessions"`
		AvgSessionsPerPatient float64        `json:"avg_sessions_per_patient"`
		ActiveAlerts          int            `json:"active_alerts"`
		EmotionalDistribution map[string]int `json:"emotional_distribution"`
		SessionsOverTime      []struct {
			Date  string `json:"date"`
			Value int    `json:"value"`
		} `json:"sessions_over_time"`
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
	}
	if err := json.Unmarshal(body.Metrics, &snap); err != nil {
		t.Fatal(err)
	}

	// The cancelled session is excluded by default.
	if snap.TotalSessions != 2 {
		t.Errorf("total_sessions = %d, want 2", snap.TotalSessions)
	}
	if snap.TotalActivePatients != 2 {
		t.Errorf("total_active_patients = %d, want 2",
			snap.TotalActivePatients)
	}
	if snap.AvgSessionsPerPatient != 1.0 {
		t.Errorf("avg_sessions_per_patient = %v, want 1.0",
			snap.AvgSessionsPerPatient)
	}
	if snap.ActiveAlerts != 1 {
		t.Errorf("active_alerts = %d, want 1", snap.ActiveAlerts)
	}
	// Patient states and session tones merge into one
	// distribution.
	if snap.EmotionalDistribution["calm"] != 2 ||
		snap.EmotionalDistribution["anxious"] != 2 {
		t.Errorf("emotional_distribution = %v",
			snap.EmotionalDistribution)
	}
	if len(snap.SessionsOverTime) != 31 {
		t.Errorf("sessions_over_time has %d days, want 31",
			len(snap.SessionsOverTime))
	}
	if snap.PeriodStart != "2024-01-01" ||
		snap.PeriodEnd != "2024-01-31" {
		t.Errorf("period = %s..%s",
			snap.PeriodStart, snap.PeriodEnd)
	}
}

func TestDashboardMetrics_IncludeCancelled(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	rec := te.get(t, "/api/v1/dashboard/metrics"+
		"?center=center1&from=2024-01-01&to=2024-01-31"+
		"&include_cancelled=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body metricsBody
	decodeJSON(t, rec, &body)
	var snap struct {
		TotalSessions int `json:"total_sessions"`
	}
	if err := json.Unmarshal(body.Metrics, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalSessions != 3 {
		t.Errorf("total_sessions = %d, want 3", snap.TotalSessions)
	}
}

func TestDashboardMetrics_NoData(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	rec := te.get(t, "/api/v1/dashboard/metrics"+
		"?center=center1&from=2024-01-01&to=2024-01-31"+
		"&patient=nobody")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body metricsBody
	decodeJSON(t, rec, &body)
	if body.HasData {
		t.Error("expected has_data false")
	}
	if len(body.Metrics) != 0 {
		t.Errorf("metrics should be absent, got %s", body.Metrics)
	}
}

func TestDashboardMetrics_BadInput(t *testing.T) {
	te := setup(t)

	cases := []struct {
		name string
		path string
	}{
		{"missing center", "/api/v1/dashboard/metrics"},
		{"inverted range", "/api/v1/dashboard/metrics" +
			"?center=c1&from=2024-02-01&to=2024-01-01"},
		{"bad date", "/api/v1/dashboard/metrics" +
			"?center=c1&from=01-01-2024&to=2024-01-31"},
		{"bad min_follow_up", "/api/v1/dashboard/metrics" +
			"?center=c1&min_follow_up=zero"},
		{"bad include_inactive", "/api/v1/dashboard/metrics" +
			"?center=c1&include_inactive=si"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := te.get(t, tc.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestDashboardMetrics_DefaultRangeAndCenter(t *testing.T) {
	te := setup(t, withDefaultCenter("center1"))
	te.seedRecords(t)

	// No params at all: configured center, last 30 days from
	// the pinned clock (2024-01-02 .. 2024-02-01), which still
	// covers the seeded sessions.
	rec := te.get(t, "/api/v1/dashboard/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body metricsBody
	decodeJSON(t, rec, &body)
	if !body.HasData {
		t.Fatal("expected has_data true")
	}
	var snap struct {
		TotalSessions int    `json:"total_sessions"`
		PeriodStart   string `json:"period_start"`
		PeriodEnd     string `json:"period_end"`
	}
	if err := json.Unmarshal(body.Metrics, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.PeriodStart != "2024-01-02" ||
		snap.PeriodEnd != "2024-02-01" {
		t.Errorf("period = %s..%s, want 2024-01-02..2024-02-01",
			snap.PeriodStart, snap.PeriodEnd)
	}
	if snap.TotalSessions != 1 {
		t.Errorf("total_sessions = %d, want 1 (s2 only)",
			snap.TotalSessions)
	}
}

func TestDashboardComparative(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	rec := te.get(t, "/api/v1/dashboard/comparative"+
		"?center=center1&from=2024-01-01&to=2024-01-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		HasData    bool `json:"has_data"`
		Comparison struct {
			PreviousPeriod struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"previous_period"`
			TotalSessions struct {
				Current       float64 `json:"current"`
				Previous      float64 `json:"previous"`
				ChangePercent float64 `json:"change_percent"`
			} `json:"total_sessions"`
		} `json:"comparison"`
	}
	decodeJSON(t, rec, &body)
	if !body.HasData {
		t.Fatal("expected has_data true")
	}
	prev := body.Comparison.PreviousPeriod
	if prev.Start != "2023-12-29" || prev.End != "2023-12-31" {
		t.Errorf("previous_period = %s..%s", prev.Start, prev.End)
	}
	ts := body.Comparison.TotalSessions
	if ts.Current != 2 || ts.Previous != 0 ||
		ts.ChangePercent != 100 {
		t.Errorf("total_sessions delta = %+v", ts)
	}
}

func TestDashboardExport(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	rec := te.get(t, "/api/v1/dashboard/export"+
		"?center=center1&from=2024-01-01&to=2024-01-31")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cd := rec.Header().Get("Content-Disposition")
	want := `attachment; filename="clinicview-center1-2024-01-01-2024-01-31.json"`
	if cd != want {
		t.Errorf("Content-Disposition = %q, want %q", cd, want)
	}

	var body metricsBody
	decodeJSON(t, rec, &body)
	if !body.HasData {
		t.Error("expected has_data true")
	}
}

func TestListEndpoints(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	t.Run("sessions", func(t *testing.T) {
		rec := te.get(t, "/api/v1/sessions?center=center1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Sessions []struct {
				ID string `json:"id"`
			} `json:"sessions"`
		}
		decodeJSON(t, rec, &body)
		if len(body.Sessions) != 3 {
			t.Errorf("got %d sessions, want 3", len(body.Sessions))
		}
	})

	t.Run("patients with limit", func(t *testing.T) {
		rec := te.get(t, "/api/v1/patients?center=center1&limit=1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Patients []json.RawMessage `json:"patients"`
		}
		decodeJSON(t, rec, &body)
		if len(body.Patients) != 1 {
			t.Errorf("got %d patients, want 1", len(body.Patients))
		}
	})

	t.Run("alerts", func(t *testing.T) {
		rec := te.get(t, "/api/v1/alerts?center=center1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("missing center", func(t *testing.T) {
		rec := te.get(t, "/api/v1/sessions")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("centers", func(t *testing.T) {
		rec := te.get(t, "/api/v1/centers")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Centers []string `json:"centers"`
		}
		decodeJSON(t, rec, &body)
		if len(body.Centers) != 1 || body.Centers[0] != "center1" {
			t.Errorf("centers = %v", body.Centers)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := te.get(t, "/api/v1/stats")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var stats struct {
			CenterCount  int `json:"center_count"`
			SessionCount int `json:"session_count"`
		}
		decodeJSON(t, rec, &stats)
		if stats.CenterCount != 1 || stats.SessionCount != 3 {
			t.Errorf("stats = %+v", stats)
		}
	})
}

func TestVersion(t *testing.T) {
	te := setup(t)
	rec := te.get(t, "/api/v1/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var v struct {
		Version string `json:"version"`
	}
	decodeJSON(t, rec, &v)
	if v.Version != "test" {
		t.Errorf("version = %q", v.Version)
	}
}

func TestTriggerSyncAndStatus(t *testing.T) {
	te := setup(t)
	te.writeExport(t, "center1", "sessions.jsonl",
		testrecords.SessionJSON(
			"s1", "p1", "dr1", "2024-01-01",
			"individual", "completed", "", "",
		)+"\n")

	req := httptest.NewRequest(
		http.MethodPost, "/api/v1/sync", nil,
	)
	rec := httptest.NewRecorder()
	te.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "event: done") {
		t.Errorf("missing done event in %q", rec.Body.String())
	}

	rec = te.get(t, "/api/v1/sync/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status struct {
		LastSync   string `json:"last_sync"`
		Generation uint64 `json:"generation"`
		Stats      struct {
			Imported int `json:"imported"`
		} `json:"stats"`
	}
	decodeJSON(t, rec, &status)
	if status.LastSync == "" {
		t.Error("last_sync not set")
	}
	if status.Generation != 1 || status.Stats.Imported != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestDashboardMetrics_RecomputesAfterSync(t *testing.T) {
	te := setup(t)
	te.seedRecords(t)

	path := "/api/v1/dashboard/metrics" +
		"?center=center1&from=2024-01-01&to=2024-01-31"

	rec := te.get(t, path)
	var body metricsBody
	decodeJSON(t, rec, &body)
	var snap struct {
		TotalSessions int `json:"total_sessions"`
	}
	if err := json.Unmarshal(body.Metrics, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalSessions != 2 {
		t.Fatalf("total_sessions = %d, want 2", snap.TotalSessions)
	}

	// Rewriting the export and syncing bumps the generation, so
	// the same query reflects the new data.
	p := te.writeExport(t, "center1", "sessions.jsonl",
		testrecords.SessionJSON(
			"s9", "p1", "dr1", "2024-01-05",
			"individual", "completed", "", "",
		)+"\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(p, future, future); err != nil {
		t.Fatal(err)
	}
	te.engine.SyncAll(nil)

	rec = te.get(t, path)
	decodeJSON(t, rec, &body)
	if err := json.Unmarshal(body.Metrics, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalSessions != 1 {
		t.Errorf("total_sessions after resync = %d, want 1",
			snap.TotalSessions)
	}
}

func TestCORSPreflight(t *testing.T) {
	te := setup(t)
	req := httptest.NewRequest(
		http.MethodOptions, "/api/v1/version", nil,
	)
	rec := httptest.NewRecorder()
	te.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}
