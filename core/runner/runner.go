package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"peptide-orchestrator/core/models"
)

// Stage is one unit of pipeline work: invoke an external collaborator (or an
// in-process step) and judge success from its file-system contract.
type Stage struct {
	Index   int
	Name    string
	Dir     string        // command working directory
	Inputs  []string      // files that must already exist
	Outputs []string      // files that must exist non-empty on success
	Timeout time.Duration

	// Commands builds the argv list(s) to invoke, given the job's core
	// allocation. Stages that cannot use extra cores ignore the argument.
	Commands func(cores int) [][]string

	// Func is the in-process alternative to Commands (structure merge,
	// report aggregation). Exactly one of the two is set.
	Func func(ctx context.Context) error
}

// Result is the outcome of running one stage.
type Result struct {
	StageIndex int
	StageName  string
	StartedAt  time.Time
	EndedAt    time.Time
	OK         bool
	Output     string // captured tool output, kept on success for parsing
	Diagnostic string // failure reason plus tail of captured tool output
	Err        error
}

// Runner executes stages against their declared file contracts.
type Runner struct{}

// Run checks the stage's declared inputs, invokes its commands (or in-process
// func) within the stage timeout, and verifies every declared output exists
// and is non-empty. The first violation yields OK=false with a diagnostic.
// A stage that exceeds its timeout is terminated, not retried.
func (r *Runner) Run(ctx context.Context, stage Stage, cores int) Result {
	res := Result{StageIndex: stage.Index, StageName: stage.Name, StartedAt: time.Now()}

	for _, in := range stage.Inputs {
		if !fileExists(in) {
			res.EndedAt = time.Now()
			res.Err = fmt.Errorf("stage %d (%s): %w: %s", stage.Index, stage.Name, models.ErrMissingInput, in)
			res.Diagnostic = res.Err.Error()
			return res
		}
	}

	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	var output string
	var err error
	if stage.Func != nil {
		err = stage.Func(ctx)
	} else {
		output, err = r.runCommands(ctx, stage, cores)
	}

	res.EndedAt = time.Now()
	res.Output = output

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("stage %d (%s): %w after %s", stage.Index, stage.Name, models.ErrStageTimeout, stage.Timeout)
		} else {
			err = fmt.Errorf("stage %d (%s): %w: %v", stage.Index, stage.Name, models.ErrExternalTool, err)
		}
		res.Err = err
		res.Diagnostic = combineDiagnostic(err.Error(), output)
		return res
	}

	for _, out := range stage.Outputs {
		if !fileNonEmpty(out) {
			res.Err = fmt.Errorf("stage %d (%s): %w: missing or empty output %s", stage.Index, stage.Name, models.ErrExternalTool, out)
			res.Diagnostic = combineDiagnostic(res.Err.Error(), output)
			return res
		}
	}

	res.OK = true
	return res
}

// runCommands invokes the stage's argv lists in order, stopping at the first
// failure. Each process runs in its own group so a timeout kills spawned
// children too.
func (r *Runner) runCommands(ctx context.Context, stage Stage, cores int) (string, error) {
	var combined strings.Builder
	for _, argv := range stage.Commands(cores) {
		if len(argv) == 0 {
			continue
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = stage.Dir
		configureCommandProcess(cmd)
		cmd.Cancel = func() error {
			terminateCommandProcess(cmd)
			return nil
		}

		out, err := cmd.CombinedOutput()
		combined.Write(out)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return combined.String(), ctx.Err()
			}
			return combined.String(), fmt.Errorf("%s: %v", strings.Join(argv, " "), err)
		}
	}
	return combined.String(), nil
}

func combineDiagnostic(msg, output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return msg
	}
	// Keep the tail of long tool output; the failure reason is usually last.
	const maxOutput = 2000
	if len(output) > maxOutput {
		output = "..." + output[len(output)-maxOutput:]
	}
	return msg + "\ntool output:\n" + output
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
