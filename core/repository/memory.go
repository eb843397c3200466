package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"peptide-orchestrator/core/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests. Same transition rules as
// the Postgres implementation.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.Job
	events map[string][]models.JobEvent
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*models.Job),
		events: make(map[string][]models.JobEvent),
	}
}

func (m *MemoryStore) CreateJob(job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("%w: duplicate job id %s", models.ErrInvalidState, job.ID)
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	clone := *job
	m.jobs[job.ID] = &clone
	m.appendEvent(job.ID, nil, job.Status, "job_created")
	return nil
}

func (m *MemoryStore) GetJob(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	clone := *job
	return &clone, nil
}

func (m *MemoryStore) ListJobsByOwner(owner string) ([]*models.Job, error) {
	return m.list(func(j *models.Job) bool { return j.Owner == owner }, true)
}

func (m *MemoryStore) ListJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	return m.list(func(j *models.Job) bool { return j.Status == status }, false)
}

func (m *MemoryStore) list(match func(*models.Job) bool, newestFirst bool) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []*models.Job
	for _, job := range m.jobs {
		if match(job) {
			clone := *job
			jobs = append(jobs, &clone)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if newestFirst {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *MemoryStore) MarkRunning(id, workingDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: job %s is not pending", models.ErrInvalidState, id)
	}
	now := time.Now()
	from := job.Status
	job.Status = models.JobStatusRunning
	job.WorkingDir = workingDir
	job.StartedAt = &now
	job.UpdatedAt = now
	m.appendEvent(id, &from, job.Status, "dispatched")
	return nil
}

func (m *MemoryStore) MarkCompleted(id, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("%w: job %s is not running", models.ErrInvalidState, id)
	}
	now := time.Now()
	from := job.Status
	job.Status = models.JobStatusCompleted
	job.ResultRef = resultRef
	job.CompletedAt = &now
	job.UpdatedAt = now
	m.appendEvent(id, &from, job.Status, "pipeline_completed")
	return nil
}

func (m *MemoryStore) MarkFailed(id, diagnostic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s already %s", models.ErrInvalidState, id, job.Status)
	}
	now := time.Now()
	from := job.Status
	job.Status = models.JobStatusFailed
	job.Error = diagnostic
	job.CompletedAt = &now
	job.UpdatedAt = now
	m.appendEvent(id, &from, job.Status, diagnostic)
	return nil
}

func (m *MemoryStore) DeleteJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: cannot delete %s job %s", models.ErrInvalidState, job.Status, id)
	}
	delete(m.jobs, id)
	delete(m.events, id)
	return nil
}

func (m *MemoryStore) ReconcileInterrupted() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, job := range m.jobs {
		if job.Status != models.JobStatusRunning {
			continue
		}
		now := time.Now()
		from := job.Status
		job.Status = models.JobStatusFailed
		job.Error = "interrupted: orchestrator restarted mid-job"
		job.CompletedAt = &now
		job.UpdatedAt = now
		m.appendEvent(id, &from, job.Status, "reconciled_after_restart")
		count++
	}
	return count, nil
}

func (m *MemoryStore) GetJobEvents(id string, limit int) ([]models.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[id]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]models.JobEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *MemoryStore) appendEvent(jobID string, from *models.JobStatus, to models.JobStatus, reason string) {
	m.nextID++
	m.events[jobID] = append(m.events[jobID], models.JobEvent{
		ID:         m.nextID,
		JobID:      jobID,
		At:         time.Now(),
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	})
}
