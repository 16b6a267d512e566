package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const defaultRecentActionsLimit = 50

// handleRecentActions serves the bounded recent-actions ring, gated on
// recent_actions.enabled per spec.md §4.8. New registers this route only
// when enabled, so reaching it at all implies the feature is on.
func (s *Server) handleRecentActions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentActionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.orch.Ring.Recent(limit))
}

// handleCacheStats reports fingerprint cache occupancy and hit/miss
// counters for operational visibility into the shared query cache.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.orch.Cache.Stats())
}
