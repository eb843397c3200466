package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/models"
	"peptide-orchestrator/core/pipeline"
	"peptide-orchestrator/core/repository"
	"peptide-orchestrator/core/resource"
)

// fakePipeline stands in for the real stage sequence. It can block until
// released to keep jobs in the running state and can fail on demand.
type fakePipeline struct {
	mu      sync.Mutex
	runs    []string
	err     error
	release chan struct{}
}

func (f *fakePipeline) Run(ctx context.Context, c *pipeline.JobContext) error {
	f.mu.Lock()
	f.runs = append(f.runs, c.JobID)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakePipeline) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newTestScheduler(t *testing.T, fake *fakePipeline, budget resource.Budget, opts Options) (*Scheduler, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	artifactStore, err := artifacts.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewScheduler(store, artifactStore, fake, nil, budget, opts), store
}

func submit(t *testing.T, s *Scheduler, params models.JobParams) string {
	t.Helper()
	id, err := s.Submit(SubmitRequest{
		Owner:           "alice",
		PeptideSequence: "GAVLI",
		ReceptorPDB:     []byte("ATOM\n"),
		Params:          params,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return id
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func jobStatus(t *testing.T, store *repository.MemoryStore, id string) models.JobStatus {
	t.Helper()
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job.Status
}

var testBudget = resource.Budget{TotalCores: 10, UsableCores: 8, PerJobCores: 4}

func TestSubmitCreatesJobAndStagesInputs(t *testing.T) {
	s, store := newTestScheduler(t, &fakePipeline{}, testBudget, Options{})

	id := submit(t, s, models.JobParams{})
	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Fatalf("new job status = %s, want pending", job.Status)
	}
	if job.Params.PoseCount != models.DefaultPoseCount {
		t.Fatalf("pose count = %d, want default %d", job.Params.PoseCount, models.DefaultPoseCount)
	}

	fasta, err := os.ReadFile(artifacts.InputPath(job.WorkingDir, "peptide.fasta"))
	if err != nil {
		t.Fatalf("read staged fasta: %v", err)
	}
	if string(fasta) != ">peptide\nGAVLI\n" {
		t.Fatalf("unexpected fasta content %q", fasta)
	}
	if _, err := os.Stat(artifacts.InputPath(job.WorkingDir, "receptor.pdb")); err != nil {
		t.Fatalf("receptor not staged: %v", err)
	}
}

func TestSubmitDistinctWorkingDirs(t *testing.T) {
	s, store := newTestScheduler(t, &fakePipeline{}, testBudget, Options{})

	a := submit(t, s, models.JobParams{})
	b := submit(t, s, models.JobParams{})
	if a == b {
		t.Fatalf("job IDs must be distinct")
	}

	ja, _ := store.GetJob(a)
	jb, _ := store.GetJob(b)
	if ja.WorkingDir == jb.WorkingDir {
		t.Fatalf("jobs must not share a working directory: %s", ja.WorkingDir)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, _ := newTestScheduler(t, &fakePipeline{}, testBudget, Options{})

	if _, err := s.Submit(SubmitRequest{ReceptorPDB: []byte("ATOM")}); err == nil {
		t.Fatalf("expected error for empty sequence")
	}
	if _, err := s.Submit(SubmitRequest{PeptideSequence: "GAVLI"}); err == nil {
		t.Fatalf("expected error for missing receptor")
	}
}

func TestDispatchRunsJobToCompletion(t *testing.T) {
	fake := &fakePipeline{}
	s, store := newTestScheduler(t, fake, testBudget, Options{MaxConcurrentJobs: 2, CleanupIntermediates: true})

	id := submit(t, s, models.JobParams{})
	s.processQueue(context.Background())

	waitFor(t, func() bool { return jobStatus(t, store, id) == models.JobStatusCompleted }, "job completion")

	job, _ := store.GetJob(id)
	if job.ResultRef == "" {
		t.Fatalf("completed job must carry a result reference")
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("completed job missing timestamps: %+v", job)
	}

	waitFor(t, func() bool { return s.Stats().ClaimedCores == 0 }, "core release")

	// Cleanup policy removed the intermediates but kept inputs and outputs.
	if _, err := os.Stat(filepath.Join(job.WorkingDir, artifacts.MiddleDir)); !os.IsNotExist(err) {
		t.Fatalf("middlefiles/ should be removed after completion")
	}
	if _, err := os.Stat(filepath.Join(job.WorkingDir, artifacts.InputDir)); err != nil {
		t.Fatalf("input/ must survive cleanup: %v", err)
	}
}

func TestDispatchRespectsCoreBudget(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	s, store := newTestScheduler(t, fake, testBudget, Options{MaxConcurrentJobs: 3})

	ids := []string{
		submit(t, s, models.JobParams{}),
		submit(t, s, models.JobParams{}),
		submit(t, s, models.JobParams{}),
	}

	// 8 usable cores at 4 per job admits exactly two jobs.
	s.processQueue(context.Background())
	waitFor(t, func() bool { return s.Stats().ActiveJobs == 2 }, "two active jobs")

	stats := s.Stats()
	if stats.ClaimedCores != 8 {
		t.Fatalf("claimed cores = %d, want 8", stats.ClaimedCores)
	}
	if stats.QueuedJobs != 1 {
		t.Fatalf("queued jobs = %d, want 1", stats.QueuedJobs)
	}

	close(fake.release)
	waitFor(t, func() bool { return s.Stats().ActiveJobs == 0 }, "running jobs to drain")

	s.processQueue(context.Background())
	waitFor(t, func() bool {
		for _, id := range ids {
			if jobStatus(t, store, id) != models.JobStatusCompleted {
				return false
			}
		}
		return true
	}, "all jobs to complete")
}

func TestCPUCoresOverrideClampedToBudget(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	s, _ := newTestScheduler(t, fake, testBudget, Options{MaxConcurrentJobs: 2})

	submit(t, s, models.JobParams{CPUCores: 100})
	submit(t, s, models.JobParams{})

	s.processQueue(context.Background())
	waitFor(t, func() bool { return s.Stats().ActiveJobs == 1 }, "one active job")

	stats := s.Stats()
	if stats.ClaimedCores != testBudget.UsableCores {
		t.Fatalf("oversized request must clamp to %d cores, claimed %d", testBudget.UsableCores, stats.ClaimedCores)
	}
	if stats.QueuedJobs != 1 {
		t.Fatalf("second job must wait while the budget is exhausted")
	}

	close(fake.release)
	waitFor(t, func() bool { return s.Stats().ActiveJobs == 0 }, "drain")
}

func TestNoDoubleDispatch(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	s, store := newTestScheduler(t, fake, testBudget, Options{MaxConcurrentJobs: 3})

	id := submit(t, s, models.JobParams{})
	s.processQueue(context.Background())
	waitFor(t, func() bool { return fake.runCount() == 1 }, "first dispatch")

	// A stale queue entry for a job that is already running must be skipped.
	stale, _ := store.GetJob(id)
	s.queue.Enqueue(stale)
	s.processQueue(context.Background())

	if n := fake.runCount(); n != 1 {
		t.Fatalf("job dispatched %d times, want exactly once", n)
	}

	close(fake.release)
	waitFor(t, func() bool { return jobStatus(t, store, id) == models.JobStatusCompleted }, "completion")
}

func TestPipelineFailureMarksJobFailed(t *testing.T) {
	fake := &fakePipeline{err: errors.New("stage 3 (dock): external tool failure: exit status 3")}
	s, store := newTestScheduler(t, fake, testBudget, Options{})

	id := submit(t, s, models.JobParams{})
	s.processQueue(context.Background())

	waitFor(t, func() bool { return jobStatus(t, store, id) == models.JobStatusFailed }, "failure")

	job, _ := store.GetJob(id)
	if !strings.Contains(job.Error, "stage 3 (dock)") {
		t.Fatalf("diagnostic = %q, want the stage failure", job.Error)
	}
	if strings.HasPrefix(job.Error, "cancelled:") {
		t.Fatalf("tool failure must not be reported as cancellation")
	}
}

func TestCancelPendingJob(t *testing.T) {
	fake := &fakePipeline{}
	s, store := newTestScheduler(t, fake, testBudget, Options{})

	id := submit(t, s, models.JobParams{})
	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	job, _ := store.GetJob(id)
	if job.Status != models.JobStatusFailed {
		t.Fatalf("cancelled pending job status = %s, want failed", job.Status)
	}
	if !strings.HasPrefix(job.Error, "cancelled:") {
		t.Fatalf("diagnostic = %q, want cancelled prefix", job.Error)
	}

	// The stale queue entry must not dispatch after cancellation.
	s.processQueue(context.Background())
	if fake.runCount() != 0 {
		t.Fatalf("cancelled job must never run")
	}
}

func TestCancelRunningJob(t *testing.T) {
	fake := &fakePipeline{release: make(chan struct{})}
	s, store := newTestScheduler(t, fake, testBudget, Options{})

	id := submit(t, s, models.JobParams{})
	s.processQueue(context.Background())
	waitFor(t, func() bool { return fake.runCount() == 1 }, "dispatch")

	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	waitFor(t, func() bool { return jobStatus(t, store, id) == models.JobStatusFailed }, "cancellation")

	job, _ := store.GetJob(id)
	if !strings.HasPrefix(job.Error, "cancelled:") {
		t.Fatalf("diagnostic = %q, want cancelled prefix", job.Error)
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	fake := &fakePipeline{}
	s, store := newTestScheduler(t, fake, testBudget, Options{})

	id := submit(t, s, models.JobParams{})
	s.processQueue(context.Background())
	waitFor(t, func() bool { return jobStatus(t, store, id) == models.JobStatusCompleted }, "completion")

	if err := s.Cancel(id); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a completed job, got %v", err)
	}
}

func TestStartReconcilesAndResumesPending(t *testing.T) {
	fake := &fakePipeline{}
	s, store := newTestScheduler(t, fake, testBudget, Options{PollInterval: 10 * time.Millisecond})

	// State left behind by a previous process lifetime.
	interrupted := &models.Job{
		Owner: "alice", Status: models.JobStatusPending,
		ReceptorFile: "receptor.pdb", PeptideSequence: "GAVLI",
		Params: models.JobParams{}.Normalize(),
	}
	store.CreateJob(interrupted)
	store.MarkRunning(interrupted.ID, "/stale")

	pending := &models.Job{
		Owner: "bob", Status: models.JobStatusPending,
		ReceptorFile: "receptor.pdb", PeptideSequence: "GAVLI",
		Params: models.JobParams{}.Normalize(),
	}
	store.CreateJob(pending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	waitFor(t, func() bool { return jobStatus(t, store, interrupted.ID) == models.JobStatusFailed }, "reconciliation")
	waitFor(t, func() bool { return jobStatus(t, store, pending.ID) == models.JobStatusCompleted }, "resumed pending job")

	job, _ := store.GetJob(interrupted.ID)
	if !strings.Contains(job.Error, "interrupted") {
		t.Fatalf("reconciled diagnostic = %q", job.Error)
	}
}

func TestJobQueueOrdersByAge(t *testing.T) {
	q := NewJobQueue()
	now := time.Now()
	newest := &models.Job{ID: "newest", CreatedAt: now}
	oldest := &models.Job{ID: "oldest", CreatedAt: now.Add(-time.Hour)}
	middle := &models.Job{ID: "middle", CreatedAt: now.Add(-time.Minute)}

	q.Enqueue(newest)
	q.Enqueue(oldest)
	q.Enqueue(middle)

	for _, want := range []string{"oldest", "middle", "newest"} {
		job := q.PopJob()
		if job == nil || job.ID != want {
			t.Fatalf("expected %s next, got %+v", want, job)
		}
	}
	if q.PopJob() != nil {
		t.Fatalf("empty queue must pop nil")
	}
}
