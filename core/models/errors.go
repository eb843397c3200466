package models

import "errors"

// Error taxonomy for job orchestration. Callers match with errors.Is.
var (
	// ErrMissingInput indicates a stage's declared input file is absent.
	ErrMissingInput = errors.New("missing input file")

	// ErrExternalTool indicates a collaborator exited non-zero or omitted a
	// declared output.
	ErrExternalTool = errors.New("external tool failure")

	// ErrStageTimeout indicates a stage exceeded its allotted time.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrDirectoryConflict indicates a job's working directory already exists
	// and is non-empty.
	ErrDirectoryConflict = errors.New("working directory conflict")

	// ErrInvalidState indicates an operation attempted on a job in an
	// incompatible status, e.g. deleting a running job.
	ErrInvalidState = errors.New("invalid job state")

	// ErrNotFound indicates an unknown job ID.
	ErrNotFound = errors.New("job not found")

	// ErrResourceExhausted indicates no core budget is ever available for a
	// queued job. Surfaced through monitoring, never as a job failure.
	ErrResourceExhausted = errors.New("resource budget exhausted")
)
