package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"peptide-orchestrator/api/rest/routes"
	"peptide-orchestrator/config"
	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/monitoring"
	"peptide-orchestrator/core/pipeline"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/resource"
	"peptide-orchestrator/core/scheduler"
	"peptide-orchestrator/storage"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Database connected successfully")

	jobRepo := repository.NewJobRepository(db)

	// Initialize artifact store
	artifactStore, err := artifacts.NewStore(cfg.DataRoot)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}

	// Detect the CPU budget once per process lifetime
	probe := &resource.Probe{}
	budget := probe.Budget(cfg.MaxConcurrentJobs)
	log.Printf("CPU budget: %d detected, %d usable, %d per job",
		budget.TotalCores, budget.UsableCores, budget.PerJobCores)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object storage mirror (optional)
	uploader, err := storage.NewUploader(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	var mirror scheduler.Uploader
	if uploader != nil {
		mirror = uploader
		log.Printf("Mirroring job outputs to %s/%s", cfg.Storage.Endpoint, cfg.Storage.Bucket)
	}

	// Initialize pipeline over the external tool stages
	pipe := pipeline.New(pipeline.NewToolStages(cfg.Tools))

	// Initialize scheduler
	sched := scheduler.NewScheduler(jobRepo, artifactStore, pipe, mirror, budget, scheduler.Options{
		PollInterval:         cfg.PollInterval,
		MaxConcurrentJobs:    cfg.MaxConcurrentJobs,
		CleanupIntermediates: cfg.CleanupIntermediates,
	})
	go sched.Start(ctx)
	defer sched.Stop()

	// Initialize queue monitor
	monitor := monitoring.NewQueueMonitor(jobRepo, sched, cfg.PendingAlertAfter)
	go monitor.Start(ctx)

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, jobRepo, sched)

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
