package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/models"
	"peptide-orchestrator/core/pipeline"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/resource"
)

// PipelineRunner runs the full stage sequence for one admitted job.
// Implemented by *pipeline.Pipeline; tests substitute fakes.
type PipelineRunner interface {
	Run(ctx context.Context, c *pipeline.JobContext) error
}

// Uploader mirrors a completed job's output tree to external object storage,
// returning the result reference. Optional collaborator.
type Uploader interface {
	MirrorOutputs(ctx context.Context, jobID, outputDir string) (string, error)
}

// Options configures a Scheduler.
type Options struct {
	PollInterval         time.Duration
	MaxConcurrentJobs    int
	CleanupIntermediates bool // default applied when a submission does not say
}

// SubmitRequest is one job submission.
type SubmitRequest struct {
	Owner            string
	PeptideSequence  string
	ReceptorFileName string
	ReceptorPDB      []byte
	Params           models.JobParams

	// CleanupOverride overrides the configured cleanup policy when set.
	CleanupOverride *bool
}

// Scheduler accepts job submissions, bounds concurrently-running jobs
// against the host's core budget, and dispatches admitted jobs to worker
// slots running the pipeline.
type Scheduler struct {
	store     repository.Store
	artifacts *artifacts.Store
	pipeline  PipelineRunner
	uploader  Uploader
	budget    resource.Budget
	opts      Options
	queue     *JobQueue
	stopChan  chan struct{}

	mu           sync.Mutex
	claimedCores int
	active       map[string]*activeJob
	halted       bool
}

type activeJob struct {
	cancel    context.CancelFunc
	cancelled bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	store repository.Store,
	artifactStore *artifacts.Store,
	pipe PipelineRunner,
	uploader Uploader,
	budget resource.Budget,
	opts Options,
) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	return &Scheduler{
		store:     store,
		artifacts: artifactStore,
		pipeline:  pipe,
		uploader:  uploader,
		budget:    budget,
		opts:      opts,
		queue:     NewJobQueue(),
		stopChan:  make(chan struct{}),
		active:    make(map[string]*activeJob),
	}
}

// Submit validates the request, creates the job record and its working
// directory with the submitted input files, and enqueues it. Returns the
// job ID immediately; the job runs when budget allows.
func (s *Scheduler) Submit(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.PeptideSequence) == "" {
		return "", fmt.Errorf("peptide sequence is required")
	}
	if len(req.ReceptorPDB) == 0 {
		return "", fmt.Errorf("receptor structure is required")
	}
	if req.ReceptorFileName == "" {
		req.ReceptorFileName = "receptor.pdb"
	}

	params := req.Params.Normalize()
	params.CleanupIntermediates = s.opts.CleanupIntermediates
	if req.CleanupOverride != nil {
		params.CleanupIntermediates = *req.CleanupOverride
	}

	job := &models.Job{
		ID:              uuid.New().String(),
		Owner:           req.Owner,
		Status:          models.JobStatusPending,
		ReceptorFile:    req.ReceptorFileName,
		PeptideSequence: strings.ToUpper(strings.TrimSpace(req.PeptideSequence)),
		Params:          params,
	}

	workingDir, err := s.artifacts.Prepare(job.ID)
	if err != nil {
		return "", err
	}
	job.WorkingDir = workingDir

	if err := s.store.CreateJob(job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	fasta := fmt.Sprintf(">peptide\n%s\n", job.PeptideSequence)
	if err := s.artifacts.WriteInput(job.ID, "peptide.fasta", []byte(fasta)); err != nil {
		s.failSubmission(job.ID, err)
		return "", err
	}
	if err := s.artifacts.WriteInput(job.ID, job.ReceptorFile, req.ReceptorPDB); err != nil {
		s.failSubmission(job.ID, err)
		return "", err
	}

	s.queue.Enqueue(job)
	log.Printf("Job %s submitted by %s (poses=%d)", job.ID, job.Owner, job.Params.PoseCount)
	return job.ID, nil
}

func (s *Scheduler) failSubmission(jobID string, cause error) {
	if err := s.store.MarkFailed(jobID, cause.Error()); err != nil {
		log.Printf("Failed to record submission failure for job %s: %v", jobID, err)
	}
}

// Start runs the dispatch loop until the context is cancelled or Stop is
// called. Reconciles interrupted jobs and reloads pending ones first.
func (s *Scheduler) Start(ctx context.Context) {
	if n, err := s.store.ReconcileInterrupted(); err != nil {
		log.Printf("Failed to reconcile interrupted jobs: %v", err)
	} else if n > 0 {
		log.Printf("Reconciled %d interrupted job(s) to failed", n)
	}
	s.loadPendingJobs()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.processQueue(ctx)
		}
	}
}

// Stop stops the dispatch loop. Running jobs finish on their own.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// loadPendingJobs re-enqueues pending jobs persisted by a previous process
// lifetime.
func (s *Scheduler) loadPendingJobs() {
	jobs, err := s.store.ListJobsByStatus(models.JobStatusPending)
	if err != nil {
		log.Printf("Failed to load pending jobs: %v", err)
		return
	}
	for _, job := range jobs {
		s.queue.Enqueue(job)
	}
	if len(jobs) > 0 {
		log.Printf("Loaded %d pending job(s) from store", len(jobs))
	}
}

// processQueue admits queued jobs while core budget and worker slots remain.
func (s *Scheduler) processQueue(ctx context.Context) {
	for {
		if s.isHalted() {
			return
		}

		job := s.queue.PopJob()
		if job == nil {
			return
		}

		// Re-fetch to get latest state; cancellation may have landed while
		// the job sat in the queue.
		fresh, err := s.store.GetJob(job.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			s.halt(err)
			return
		}
		if fresh.Status != models.JobStatusPending {
			continue
		}

		cores, ok := s.tryClaim(fresh)
		if !ok {
			// No budget; put it back and wait for a slot to free up.
			s.queue.Enqueue(fresh)
			return
		}

		if err := s.store.MarkRunning(fresh.ID, fresh.WorkingDir); err != nil {
			s.release(fresh.ID, cores)
			if errors.Is(err, models.ErrInvalidState) {
				continue
			}
			s.halt(err)
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.active[fresh.ID].cancel = cancel
		s.mu.Unlock()

		log.Printf("Job %s admitted with %d core(s)", fresh.ID, cores)
		go s.runJob(runCtx, fresh, cores)
	}
}

// tryClaim reserves a worker slot and core allocation for the job. The sum
// of claimed cores never exceeds the usable budget, even transiently.
func (s *Scheduler) tryClaim(job *models.Job) (int, bool) {
	cores := s.budget.PerJobCores
	if job.Params.CPUCores > 0 {
		cores = job.Params.CPUCores
		if cores > s.budget.UsableCores {
			cores = s.budget.UsableCores
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.active[job.ID]; running {
		return 0, false // never dispatch the same job twice
	}
	if len(s.active) >= s.opts.MaxConcurrentJobs {
		return 0, false
	}
	if s.claimedCores+cores > s.budget.UsableCores {
		return 0, false
	}
	s.claimedCores += cores
	s.active[job.ID] = &activeJob{}
	return cores, true
}

func (s *Scheduler) release(jobID string, cores int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
	s.claimedCores -= cores
}

// runJob drives one job's pipeline in a worker slot and finalizes its
// record, artifacts and core allocation on any terminal outcome.
func (s *Scheduler) runJob(ctx context.Context, job *models.Job, cores int) {
	defer s.release(job.ID, cores)

	c := &pipeline.JobContext{
		JobID:           job.ID,
		WorkingDir:      job.WorkingDir,
		ReceptorFile:    job.ReceptorFile,
		PeptideSequence: job.PeptideSequence,
		PoseCount:       job.Params.PoseCount,
		Cores:           cores,
	}

	err := s.pipeline.Run(ctx, c)

	if err != nil {
		diagnostic := err.Error()
		if s.wasCancelled(job.ID) || ctx.Err() != nil {
			diagnostic = "cancelled: " + diagnostic
		}
		if markErr := s.store.MarkFailed(job.ID, diagnostic); markErr != nil {
			log.Printf("Failed to record failure for job %s: %v", job.ID, markErr)
		}
		log.Printf("Job %s failed: %s", job.ID, diagnostic)
	} else {
		resultRef := artifacts.OutputPath(job.WorkingDir, "")
		if s.uploader != nil {
			if ref, upErr := s.uploader.MirrorOutputs(ctx, job.ID, resultRef); upErr != nil {
				// Mirroring is best-effort; the local outputs stand.
				log.Printf("Failed to mirror outputs for job %s: %v", job.ID, upErr)
			} else {
				resultRef = ref
			}
		}
		if markErr := s.store.MarkCompleted(job.ID, resultRef); markErr != nil {
			log.Printf("Failed to record completion for job %s: %v", job.ID, markErr)
		}
		log.Printf("Job %s completed", job.ID)
	}

	s.artifacts.Finalize(job.ID, !job.Params.CleanupIntermediates)
}

// Cancel requests cancellation of a job. Pending jobs fail immediately;
// running jobs have their in-flight external process terminated,
// best-effort, and finalize as failed with a cancelled diagnostic.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	aj, running := s.active[jobID]
	if running {
		aj.cancelled = true
		if aj.cancel != nil {
			aj.cancel()
		}
	}
	s.mu.Unlock()

	if running {
		log.Printf("Job %s cancellation requested", jobID)
		return nil
	}

	job, err := s.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: cannot cancel %s job", models.ErrInvalidState, job.Status)
	}
	return s.store.MarkFailed(jobID, "cancelled: cancelled by user before dispatch")
}

func (s *Scheduler) wasCancelled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	aj, ok := s.active[jobID]
	return ok && aj.cancelled
}

func (s *Scheduler) halt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted {
		log.Printf("Dispatch halted, store unavailable: %v", err)
		s.halted = true
	}
}

func (s *Scheduler) isHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Stats describes the scheduler's current load.
type Stats struct {
	ActiveJobs   int
	QueuedJobs   int
	ClaimedCores int
	UsableCores  int
	Halted       bool
}

// Stats returns a snapshot of the scheduler's load for status queries and
// monitoring.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ActiveJobs:   len(s.active),
		QueuedJobs:   s.queue.Size(),
		ClaimedCores: s.claimedCores,
		UsableCores:  s.budget.UsableCores,
		Halted:       s.halted,
	}
}
