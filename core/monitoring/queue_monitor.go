package monitoring

import (
	"context"
	"log"
	"time"

	"peptide-orchestrator/core/models"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/scheduler"
)

// QueueMonitor periodically reports scheduler load and flags jobs that have
// been pending longer than the alert threshold, which usually means the core
// budget is exhausted.
type QueueMonitor struct {
	store     repository.Store
	scheduler *scheduler.Scheduler
	alertAge  time.Duration
	interval  time.Duration
}

// NewQueueMonitor creates a new queue monitor
func NewQueueMonitor(store repository.Store, sched *scheduler.Scheduler, alertAge time.Duration) *QueueMonitor {
	if alertAge <= 0 {
		alertAge = 10 * time.Minute
	}
	return &QueueMonitor{
		store:     store,
		scheduler: sched,
		alertAge:  alertAge,
		interval:  time.Minute,
	}
}

// Start runs the monitor loop until the context is cancelled
func (m *QueueMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *QueueMonitor) check() {
	stats := m.scheduler.Stats()
	log.Printf("Scheduler load: %d active, %d queued, %d/%d cores claimed",
		stats.ActiveJobs, stats.QueuedJobs, stats.ClaimedCores, stats.UsableCores)

	pending, err := m.store.ListJobsByStatus(models.JobStatusPending)
	if err != nil {
		log.Printf("Queue monitor: failed to list pending jobs: %v", err)
		return
	}

	for _, job := range pending {
		age := time.Since(job.CreatedAt)
		if age < m.alertAge {
			continue
		}
		log.Printf("Job %s pending for %s: %v", job.ID, age.Round(time.Second), models.ErrResourceExhausted)
	}
}
