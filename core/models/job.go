package models

import "time"

// Job represents one peptide optimization request submitted to the platform
type Job struct {
	ID              string
	Owner           string
	Status          JobStatus
	ReceptorFile    string // receptor structure filename inside input/
	PeptideSequence string
	WorkingDir      string
	Params          JobParams
	Error           string // set only when Status == failed
	ResultRef       string // set only when Status == completed
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// JobParams holds the optional tuning parameters for a job
type JobParams struct {
	PoseCount            int  // docking poses to produce
	CPUCores             int  // 0 means use the budget-derived per-job share
	CleanupIntermediates bool // remove middlefiles/ after a terminal state
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultPoseCount is the number of docked poses produced when the
// submission does not override it.
const DefaultPoseCount = 10

// Normalize fills unset parameters with their defaults.
func (p JobParams) Normalize() JobParams {
	if p.PoseCount <= 0 {
		p.PoseCount = DefaultPoseCount
	}
	if p.CPUCores < 0 {
		p.CPUCores = 0
	}
	return p
}
