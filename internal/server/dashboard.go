package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	gosync "sync"

	"github.com/axeelhrz/clinicview/internal/metrics"
)

// recordSet is the three collections a dashboard computation
// consumes.
type recordSet struct {
	sessions []metrics.Session
	patients []metrics.Patient
	alerts   []metrics.Alert
}

// fetchRecords loads a center's sessions, patients, and alerts
// for the given day window with one goroutine per collection.
// The first error wins.
func (s *Server) fetchRecords(
	ctx context.Context, center, from, to string,
) (recordSet, error) {
	var (
		rs   recordSet
		wg   gosync.WaitGroup
		mu   gosync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		var err error
		rs.sessions, err = s.db.FetchSessions(
			ctx, center, from, to,
		)
		if err != nil {
			fail(fmt.Errorf("fetching sessions: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		rs.patients, err = s.db.FetchPatients(ctx, center)
		if err != nil {
			fail(fmt.Errorf("fetching patients: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		rs.alerts, err = s.db.FetchAlerts(ctx, center, from, to)
		if err != nil {
			fail(fmt.Errorf("fetching alerts: %w", err))
		}
	}()
	wg.Wait()

	if len(errs) > 0 {
		return recordSet{}, errs[0]
	}
	return rs, nil
}

// metricsResponse is the dashboard metrics payload. HasData is
// false when the filtered period holds no records at all, in
// which case Metrics is absent rather than a zeroed snapshot.
type metricsResponse struct {
	HasData bool              `json:"has_data"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

type comparativeResponse struct {
	HasData    bool                `json:"has_data"`
	Comparison *metrics.Comparison `json:"comparison,omitempty"`
}

// computeSnapshot produces the snapshot for a query, consulting
// the generation-keyed cache first. Identical queries against
// unchanged data are free.
func (s *Server) computeSnapshot(
	ctx context.Context, q dashboardQuery,
) (*metrics.Snapshot, bool, error) {
	gen := s.engine.Generation()
	if snap, ok, hit := s.cache.get(gen, q.cacheKey()); hit {
		return snap, ok, nil
	}

	rs, err := s.fetchRecords(
		ctx, q.Center, q.Filter.Range.Start, q.Filter.Range.End,
	)
	if err != nil {
		return nil, false, err
	}

	snap, ok := s.calc.Compute(
		rs.sessions, rs.patients, rs.alerts, q.Filter, q.Opts,
	)
	s.cache.put(gen, q.cacheKey(), snap, ok)
	return snap, ok, nil
}

func (s *Server) handleDashboardMetrics(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseDashboardQuery(w, r)
	if !ok {
		return
	}

	snap, hasData, err := s.computeSnapshot(r.Context(), q)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("dashboard metrics: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	writeJSON(w, http.StatusOK, metricsResponse{
		HasData: hasData,
		Metrics: snap,
	})
}

func (s *Server) handleDashboardComparative(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseDashboardQuery(w, r)
	if !ok {
		return
	}

	// One fetch spans both periods; Compare windows
	// each period itself.
	prev := q.Filter.Range.Previous()
	rs, err := s.fetchRecords(
		r.Context(), q.Center, prev.Start, q.Filter.Range.End,
	)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("dashboard comparative: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	cmp, hasData := s.calc.Compare(
		rs.sessions, rs.patients, rs.alerts, q.Filter, q.Opts,
	)
	writeJSON(w, http.StatusOK, comparativeResponse{
		HasData:    hasData,
		Comparison: cmp,
	})
}

// handleDashboardExport serves the metrics snapshot as a JSON
// file download. No timeout handler so large responses are not
// buffered.
func (s *Server) handleDashboardExport(
	w http.ResponseWriter, r *http.Request,
) {
	q, ok := s.parseDashboardQuery(w, r)
	if !ok {
		return
	}

	snap, hasData, err := s.computeSnapshot(r.Context(), q)
	if err != nil {
		log.Printf("dashboard export: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	filename := fmt.Sprintf(
		"clinicview-%s-%s-%s.json",
		q.Center, q.Filter.Range.Start, q.Filter.Range.End,
	)
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, filename),
	)
	writeJSON(w, http.StatusOK, metricsResponse{
		HasData: hasData,
		Metrics: snap,
	})
}

// snapshotCache memoizes computed snapshots per data
// generation. Any import that writes records bumps the
// generation and implicitly drops every cached entry, so stale
// results cannot outlive the data they were computed from.
// Within one generation the cache holds at most
// maxCachedSnapshots entries; inserting past the cap resets it,
// which keeps memory flat without tracking recency.
type snapshotCache struct {
	mu      gosync.Mutex
	gen     uint64
	entries map[string]cachedSnapshot
}

// maxCachedSnapshots bounds distinct query keys cached per
// generation. Dashboards reuse a handful of filter
// combinations, so the cap is rarely reached outside abuse.
const maxCachedSnapshots = 256

type cachedSnapshot struct {
	snap *metrics.Snapshot
	ok   bool
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{
		entries: make(map[string]cachedSnapshot),
	}
}

func (c *snapshotCache) get(
	gen uint64, key string,
) (*metrics.Snapshot, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return nil, false, false
	}
	e, hit := c.entries[key]
	if !hit {
		return nil, false, false
	}
	return e.snap, e.ok, true
}

func (c *snapshotCache) put(
	gen uint64, key string, snap *metrics.Snapshot, ok bool,
) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.gen = gen
		clear(c.entries)
	}
	if _, exists := c.entries[key]; !exists &&
		len(c.entries) >= maxCachedSnapshots {
		clear(c.entries)
	}
	c.entries[key] = cachedSnapshot{snap: snap, ok: ok}
}
