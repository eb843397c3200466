package routes

import (
	"peptide-orchestrator/api/rest/handlers"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/scheduler"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, store repository.Store, sched *scheduler.Scheduler) {
	jobHandler := handlers.NewJobHandler(store, sched)
	statusHandler := handlers.NewStatusHandler(sched)

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}", jobHandler.DeleteJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")

	// Service endpoints
	r.HandleFunc("/health", statusHandler.Health).Methods("GET")
	r.HandleFunc("/status", statusHandler.Status).Methods("GET")
}
