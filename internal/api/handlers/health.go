// Package handlers contains HTTP request handlers
package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	startTime time.Time
	cache     StatusProvider
}

func NewHealthHandler(cache StatusProvider) *HealthHandler {
	return &HealthHandler{startTime: time.Now(), cache: cache}
}

// Health reports DEGRADED when the last refresh failed, but still answers 200
// while a snapshot is held
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.cache.Status()

	status := "OK"
	if st.LastError != "" {
		status = "DEGRADED"
	}

	snapshot := map[string]any{
		"loaded":   st.HasSnapshot,
		"stations": st.Stations,
	}
	if st.HasSnapshot {
		snapshot["fetched_at"] = st.FetchedAt.UTC().Format(time.RFC3339)
		snapshot["age"] = st.Age.Round(time.Second).String()
	}
	if st.LastError != "" {
		snapshot["last_error"] = st.LastError
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"uptime":    time.Since(h.startTime).String(),
		"snapshot":  snapshot,
	})
}
