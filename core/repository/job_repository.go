package repository

import (
	"database/sql"
	"fmt"
	"time"

	"peptide-orchestrator/core/models"

	"github.com/google/uuid"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob creates a new job in the database, assigning its ID
func (r *JobRepository) CreateJob(job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	} else if _, err := uuid.Parse(job.ID); err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, owner, status, receptor_file, peptide_sequence, working_dir,
			pose_count, cpu_cores, cleanup_intermediates,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	_, err := r.db.Exec(query,
		job.ID,
		job.Owner,
		job.Status,
		job.ReceptorFile,
		job.PeptideSequence,
		job.WorkingDir,
		job.Params.PoseCount,
		job.Params.CPUCores,
		job.Params.CleanupIntermediates,
		now,
		now,
	)
	if err != nil {
		return err
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	return r.createJobEvent(job.ID, nil, job.Status, "job_created")
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(id string) (*models.Job, error) {
	query := `
		SELECT id, owner, status, receptor_file, peptide_sequence, working_dir,
			pose_count, cpu_cores, cleanup_intermediates, error, result_ref,
			created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return job, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var errText, resultRef sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Owner,
		&job.Status,
		&job.ReceptorFile,
		&job.PeptideSequence,
		&job.WorkingDir,
		&job.Params.PoseCount,
		&job.Params.CPUCores,
		&job.Params.CleanupIntermediates,
		&errText,
		&resultRef,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errText.Valid {
		job.Error = errText.String
	}
	if resultRef.Valid {
		job.ResultRef = resultRef.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// ListJobsByOwner lists all jobs for one owner, newest first
func (r *JobRepository) ListJobsByOwner(owner string) ([]*models.Job, error) {
	return r.listJobs(`
		SELECT id, owner, status, receptor_file, peptide_sequence, working_dir,
			pose_count, cpu_cores, cleanup_intermediates, error, result_ref,
			created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE owner = $1
		ORDER BY created_at DESC
	`, owner)
}

// ListJobsByStatus lists all jobs in one status, oldest first
func (r *JobRepository) ListJobsByStatus(status models.JobStatus) ([]*models.Job, error) {
	return r.listJobs(`
		SELECT id, owner, status, receptor_file, peptide_sequence, working_dir,
			pose_count, cpu_cores, cleanup_intermediates, error, result_ref,
			created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
}

func (r *JobRepository) listJobs(query string, arg interface{}) ([]*models.Job, error) {
	rows, err := r.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions a pending job to running, recording its working
// directory and start time
func (r *JobRepository) MarkRunning(id, workingDir string) error {
	return r.transition(id, models.JobStatusPending, models.JobStatusRunning, "dispatched",
		`UPDATE jobs SET status = $1, working_dir = $2, started_at = NOW(), updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		models.JobStatusRunning, workingDir, id, models.JobStatusPending)
}

// MarkCompleted transitions a running job to completed with its result
// location. completed_at is only written on the first terminal transition.
func (r *JobRepository) MarkCompleted(id, resultRef string) error {
	return r.transition(id, models.JobStatusRunning, models.JobStatusCompleted, "pipeline_completed",
		`UPDATE jobs SET status = $1, result_ref = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $3 AND status = $4 AND completed_at IS NULL`,
		models.JobStatusCompleted, resultRef, id, models.JobStatusRunning)
}

// MarkFailed transitions a job to failed with its diagnostic. Pending jobs
// may fail too (cancellation before dispatch).
func (r *JobRepository) MarkFailed(id, diagnostic string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from models.JobStatus
	if err := tx.QueryRow(`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&from); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", models.ErrNotFound, id)
		}
		return err
	}
	if from.Terminal() {
		return fmt.Errorf("%w: job %s already %s", models.ErrInvalidState, id, from)
	}

	_, err = tx.Exec(
		`UPDATE jobs SET status = $1, error = $2, completed_at = NOW(), updated_at = NOW() WHERE id = $3`,
		models.JobStatusFailed, diagnostic, id)
	if err != nil {
		return err
	}
	if err := createJobEventTx(tx, id, &from, models.JobStatusFailed, diagnostic); err != nil {
		return err
	}
	return tx.Commit()
}

// transition applies a compare-and-set status update together with its event
// row in one transaction.
func (r *JobRepository) transition(id string, from, to models.JobStatus, reason, query string, args ...interface{}) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s is not %s", models.ErrInvalidState, id, from)
	}
	if err := createJobEventTx(tx, id, &from, to, reason); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteJob removes a terminal job record. Deleting a non-terminal job would
// orphan its worker slot and working directory.
func (r *JobRepository) DeleteJob(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status models.JobStatus
	if err := tx.QueryRow(`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", models.ErrNotFound, id)
		}
		return err
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: cannot delete %s job %s", models.ErrInvalidState, status, id)
	}

	if _, err := tx.Exec(`DELETE FROM job_events WHERE job_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ReconcileInterrupted fails jobs left running by a previous process
// lifetime. Called once on startup, before the dispatch loop begins.
func (r *JobRepository) ReconcileInterrupted() (int, error) {
	rows, err := r.db.Query(
		`UPDATE jobs SET status = $1, error = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE status = $3
		 RETURNING id`,
		models.JobStatusFailed, "interrupted: orchestrator restarted mid-job", models.JobStatusRunning)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	from := models.JobStatusRunning
	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return count, err
		}
		count++
		if err := r.createJobEvent(id, &from, models.JobStatusFailed, "reconciled_after_restart"); err != nil {
			return count, err
		}
	}
	return count, rows.Err()
}

// GetJobEvents returns a job's status transition history, oldest first
func (r *JobRepository) GetJobEvents(id string, limit int) ([]models.JobEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, job_id, at, from_status, to_status, reason
		 FROM job_events WHERE job_id = $1 ORDER BY at ASC LIMIT $2`,
		id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var ev models.JobEvent
		var from sql.NullString
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.At, &from, &ev.ToStatus, &ev.Reason); err != nil {
			return nil, err
		}
		if from.Valid {
			s := models.JobStatus(from.String)
			ev.FromStatus = &s
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *JobRepository) createJobEvent(jobID string, from *models.JobStatus, to models.JobStatus, reason string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := createJobEventTx(tx, jobID, from, to, reason); err != nil {
		return err
	}
	return tx.Commit()
}

func createJobEventTx(tx *sql.Tx, jobID string, from *models.JobStatus, to models.JobStatus, reason string) error {
	var fromStr *string
	if from != nil {
		s := string(*from)
		fromStr = &s
	}
	_, err := tx.Exec(
		`INSERT INTO job_events (job_id, at, from_status, to_status, reason)
		 VALUES ($1, NOW(), $2, $3, $4)`,
		jobID, fromStr, to, reason)
	return err
}
