package handlers

import (
	"encoding/json"
	"net/http"

	"peptide-orchestrator/core/scheduler"
)

// StatusHandler reports service liveness and scheduler load
type StatusHandler struct {
	scheduler *scheduler.Scheduler
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(sched *scheduler.Scheduler) *StatusHandler {
	return &StatusHandler{scheduler: sched}
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.scheduler.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"active_jobs": stats.ActiveJobs,
	})
}

// Status handles GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats := h.scheduler.Stats()

	state := "running"
	if stats.Halted {
		state = "halted"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        state,
		"active_jobs":   stats.ActiveJobs,
		"queued_jobs":   stats.QueuedJobs,
		"claimed_cores": stats.ClaimedCores,
		"usable_cores":  stats.UsableCores,
	})
}
