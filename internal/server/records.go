package server

import (
	"log"
	"net/http"
	"time"

	"github.com/axeelhrz/clinicview/internal/db"
	syncpkg "github.com/axeelhrz/clinicview/internal/sync"
)

// requireCenter resolves the center query param, falling back
// to the configured default. Writes a 400 and returns false
// when neither is set.
func (s *Server) requireCenter(
	w http.ResponseWriter, r *http.Request,
) (string, bool) {
	center := r.URL.Query().Get("center")
	if center == "" {
		center = s.cfg.DefaultCenter
	}
	if center == "" {
		writeError(w, http.StatusBadRequest,
			"center is required")
		return "", false
	}
	return center, true
}

func (s *Server) handleListSessions(
	w http.ResponseWriter, r *http.Request,
) {
	center, ok := s.requireCenter(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, db.DefaultListLimit)

	sessions, err := s.db.ListSessions(r.Context(), center, limit)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("list sessions: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

func (s *Server) handleListPatients(
	w http.ResponseWriter, r *http.Request,
) {
	center, ok := s.requireCenter(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, db.DefaultListLimit)

	patients, err := s.db.ListPatients(r.Context(), center, limit)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("list patients: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patients": patients,
	})
}

func (s *Server) handleListAlerts(
	w http.ResponseWriter, r *http.Request,
) {
	center, ok := s.requireCenter(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, db.DefaultListLimit)

	alerts, err := s.db.ListAlerts(r.Context(), center, limit)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("list alerts: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
	})
}

func (s *Server) handleListCenters(
	w http.ResponseWriter, r *http.Request,
) {
	centers, err := s.db.ListCenters(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"centers": centers,
	})
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTriggerSync(
	w http.ResponseWriter, r *http.Request,
) {
	stream, err := NewSSEStream(w)
	if err != nil {
		// Non-streaming fallback
		stats := s.engine.SyncAll(nil)
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats := s.engine.SyncAll(func(p syncpkg.Progress) {
		stream.SendJSON("progress", p)
	})
	stream.SendJSON("done", stats)
}

func (s *Server) handleTriggerResync(
	w http.ResponseWriter, r *http.Request,
) {
	stream, err := NewSSEStream(w)
	if err != nil {
		stats := s.engine.ResyncAll(nil)
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats := s.engine.ResyncAll(func(p syncpkg.Progress) {
		stream.SendJSON("progress", p)
	})
	stream.SendJSON("done", stats)
}

func (s *Server) handleSyncStatus(
	w http.ResponseWriter, r *http.Request,
) {
	lastSync := s.engine.LastSync()
	stats := s.engine.LastSyncStats()

	var lastSyncStr string
	if !lastSync.IsZero() {
		lastSyncStr = lastSync.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"last_sync":  lastSyncStr,
		"generation": s.engine.Generation(),
		"stats":      stats,
	})
}
