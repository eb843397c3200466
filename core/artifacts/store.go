package artifacts

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"peptide-orchestrator/core/models"
)

// Subdirectories of every job's working directory.
const (
	InputDir  = "input"
	MiddleDir = "middlefiles"
	OutputDir = "output"
)

// Store manages the per-job directory trees under a single data root.
// Each job owns exactly one working directory; directories are never shared.
type Store struct {
	root string
}

// NewStore creates a store rooted at root, creating it if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	return &Store{root: root}, nil
}

// Dir returns the working directory path for a job. Pure path construction,
// no I/O.
func (s *Store) Dir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// Prepare creates the job's working directory with its input/, middlefiles/
// and output/ subdirectories. A pre-existing non-empty directory means a job
// ID collision and fails with models.ErrDirectoryConflict.
func (s *Store) Prepare(jobID string) (string, error) {
	dir := s.Dir(jobID)

	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return "", fmt.Errorf("%w: %s", models.ErrDirectoryConflict, dir)
	}

	for _, sub := range []string{InputDir, MiddleDir, OutputDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("prepare %s: %w", dir, err)
		}
	}
	return dir, nil
}

// InputPath joins a filename into the job's input tree. No I/O, no
// existence check — stages validate their own declared inputs.
func InputPath(workingDir, name string) string {
	return filepath.Join(workingDir, InputDir, name)
}

// MiddlePath joins a filename into the job's intermediate tree.
func MiddlePath(workingDir, name string) string {
	return filepath.Join(workingDir, MiddleDir, name)
}

// OutputPath joins a filename into the job's output tree.
func OutputPath(workingDir, name string) string {
	return filepath.Join(workingDir, OutputDir, name)
}

// PoseDir returns the per-pose complex directory inside middlefiles/.
func PoseDir(workingDir string, pose int) string {
	return MiddlePath(workingDir, fmt.Sprintf("complex%d", pose))
}

// Finalize applies the cleanup policy after a job reaches a terminal state.
// With keepIntermediates false it removes middlefiles/ and everything under
// it; input/ and output/ are never touched. Cleanup is best-effort: deletion
// failures are logged, never propagated, so cleanup can never flip a
// completed job to failed.
func (s *Store) Finalize(jobID string, keepIntermediates bool) {
	if keepIntermediates {
		return
	}
	middle := filepath.Join(s.Dir(jobID), MiddleDir)
	if err := os.RemoveAll(middle); err != nil {
		log.Printf("Failed to clean up intermediates for job %s: %v", jobID, err)
	}
}

// WriteInput writes a submission-supplied file into the job's input tree.
func (s *Store) WriteInput(jobID, name string, data []byte) error {
	path := InputPath(s.Dir(jobID), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write input %s: %w", name, err)
	}
	return nil
}
