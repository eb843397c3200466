package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"peptide-orchestrator/core/models"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/scheduler"

	"github.com/gorilla/mux"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	store     repository.Store
	scheduler *scheduler.Scheduler
}

// NewJobHandler creates a new job handler
func NewJobHandler(store repository.Store, sched *scheduler.Scheduler) *JobHandler {
	return &JobHandler{store: store, scheduler: sched}
}

// SubmitJobRequest represents the request to submit a job
type SubmitJobRequest struct {
	Owner                string `json:"owner"`
	PeptideSequence      string `json:"peptide_sequence"`
	ReceptorFileName     string `json:"receptor_file_name"`
	ReceptorPDB          string `json:"receptor_pdb"`
	PoseCount            int    `json:"pose_count"`
	CPUCores             int    `json:"cpu_cores"`
	CleanupIntermediates *bool  `json:"cleanup_intermediates"`
}

// SubmitJobResponse represents the response after submitting a job
type SubmitJobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	jobID, err := h.scheduler.Submit(scheduler.SubmitRequest{
		Owner:            req.Owner,
		PeptideSequence:  req.PeptideSequence,
		ReceptorFileName: req.ReceptorFileName,
		ReceptorPDB:      []byte(req.ReceptorPDB),
		Params: models.JobParams{
			PoseCount: req.PoseCount,
			CPUCores:  req.CPUCores,
		},
		CleanupOverride: req.CleanupIntermediates,
	})
	if err != nil {
		if errors.Is(err, models.ErrDirectoryConflict) {
			http.Error(w, "Job workspace conflict: "+err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Failed to submit job: "+err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJob(jobID)
	if err != nil {
		http.Error(w, "Failed to load job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := SubmitJobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	job, err := h.store.GetJob(jobID)
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":         job.ID,
		"owner":      job.Owner,
		"status":     job.Status,
		"pose_count": job.Params.PoseCount,
		"timestamps": map[string]interface{}{
			"created_at":   job.CreatedAt,
			"started_at":   job.StartedAt,
			"completed_at": job.CompletedAt,
		},
	}
	if job.Status == models.JobStatusCompleted {
		response["result_ref"] = job.ResultRef
	}
	if job.Status == models.JobStatusFailed {
		response["error"] = job.Error
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListJobs handles GET /v1/jobs?owner=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	jobs, err := h.store.ListJobsByOwner(owner)
	if err != nil {
		http.Error(w, "Failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		items[i] = map[string]interface{}{
			"id":         job.ID,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	if err := h.scheduler.Cancel(jobID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, models.ErrInvalidState):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to cancel job: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     jobID,
		"status": "cancellation_requested",
	})
}

// DeleteJob handles DELETE /v1/jobs/{id}
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	if err := h.store.DeleteJob(jobID); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, models.ErrInvalidState):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to delete job: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	if _, err := h.store.GetJob(jobID); err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	events, err := h.store.GetJobEvents(jobID, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":        event.At,
			"to_status": event.ToStatus,
			"reason":    event.Reason,
		}
		if event.FromStatus != nil {
			item["from_status"] = *event.FromStatus
		}
		items[i] = item
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
}
