package repository

import "peptide-orchestrator/core/models"

// Store is the durable record of job identity, status, timestamps and result
// location. Updates are atomic per job so concurrent scheduler and status
// callers never observe a torn write. Implemented by JobRepository
// (Postgres) and MemoryStore (tests, one-shot CLI runs).
type Store interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	ListJobsByOwner(owner string) ([]*models.Job, error)
	ListJobsByStatus(status models.JobStatus) ([]*models.Job, error)

	// MarkRunning records admission into a worker slot.
	MarkRunning(id, workingDir string) error
	// MarkCompleted records the terminal success state; completed_at is set
	// exactly once.
	MarkCompleted(id, resultRef string) error
	// MarkFailed records the terminal failure state with its diagnostic.
	MarkFailed(id, diagnostic string) error

	// DeleteJob removes a job record; models.ErrInvalidState unless the job
	// is terminal.
	DeleteJob(id string) error

	// ReconcileInterrupted flips jobs left running by a previous process
	// lifetime to failed, returning how many were reconciled.
	ReconcileInterrupted() (int, error)

	GetJobEvents(id string, limit int) ([]models.JobEvent, error)
}
