package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"peptide-orchestrator/core/runner"
)

// JobContext carries everything a pipeline run needs to know about its job.
type JobContext struct {
	JobID           string
	WorkingDir      string
	ReceptorFile    string // filename inside input/
	PeptideSequence string
	PoseCount       int
	Cores           int
}

// PoseResult is the index-tagged outcome of stages 4-7 for one docked pose.
// Poses have independent failure domains: a failed pose is excluded from the
// final report instead of failing the whole job.
type PoseResult struct {
	Pose       int
	OK         bool
	Diagnostic string

	Affinity        float64 // binding affinity score (stage 5)
	OrigGlobalScore float64 // redesign score of the docked input sequence
	OptSequence     string  // best redesigned sequence (stage 7)
	OptGlobalScore  float64
}

// StageBuilder builds the runnable stages for a job. The production
// implementation wraps the external collaborator tools; tests substitute
// stages that fake the file contract.
type StageBuilder interface {
	Predict(c *JobContext) runner.Stage            // 1: sequence -> structure
	Protonate(c *JobContext) runner.Stage          // 2: hydrogen addition
	Dock(c *JobContext) runner.Stage               // 3: docking search, N poses
	SortPose(c *JobContext, pose int) runner.Stage // 4: atom-order normalization
	ScorePose(c *JobContext, pose int) runner.Stage
	MergePose(c *JobContext, pose int) runner.Stage
	RedesignPose(c *JobContext, pose int) runner.Stage
}

// Pipeline is the ordered state machine over the eight named stages.
type Pipeline struct {
	Runner *runner.Runner
	Stages StageBuilder
}

func New(stages StageBuilder) *Pipeline {
	return &Pipeline{Runner: &runner.Runner{}, Stages: stages}
}

// Run executes stages 1..8 strictly in order. Stages 1-3 are fail-fast: the
// first failure stops the pipeline and its diagnostic becomes the job error.
// Stages 4-7 iterate over poses with per-pose failure recording; stage 8
// aggregates only the poses that survived. The job fails at stage 8 only if
// no pose survived.
func (p *Pipeline) Run(ctx context.Context, c *JobContext) error {
	for _, stage := range []runner.Stage{
		p.Stages.Predict(c),
		p.Stages.Protonate(c),
		p.Stages.Dock(c),
	} {
		res := p.Runner.Run(ctx, stage, c.Cores)
		p.logStage(c.JobID, res)
		if !res.OK {
			return fmt.Errorf("%s", res.Diagnostic)
		}
	}

	poses := p.runPoses(ctx, c)

	report := p.reportStage(c, poses)
	res := p.Runner.Run(ctx, report, c.Cores)
	p.logStage(c.JobID, res)
	if !res.OK {
		return fmt.Errorf("%s", res.Diagnostic)
	}
	return nil
}

// runPoses applies stages 4-7 to each pose in turn. The per-pose loop never
// aborts the job: a pose that fails any of its stages is marked failed and
// skipped for the remaining per-pose stages.
func (p *Pipeline) runPoses(ctx context.Context, c *JobContext) []PoseResult {
	results := make([]PoseResult, c.PoseCount)

	for i := range results {
		pose := i + 1
		results[i] = p.runPose(ctx, c, pose)
		if !results[i].OK {
			log.Printf("Job %s: pose %d excluded: %s", c.JobID, pose, results[i].Diagnostic)
		}
	}
	return results
}

func (p *Pipeline) runPose(ctx context.Context, c *JobContext, pose int) PoseResult {
	pr := PoseResult{Pose: pose}

	for _, stage := range []runner.Stage{
		p.Stages.SortPose(c, pose),
		p.Stages.ScorePose(c, pose),
		p.Stages.MergePose(c, pose),
		p.Stages.RedesignPose(c, pose),
	} {
		res := p.Runner.Run(ctx, stage, c.Cores)
		p.logStage(c.JobID, res)
		if !res.OK {
			pr.Diagnostic = res.Diagnostic
			return pr
		}
		if res.StageIndex == StageScore {
			affinity, err := ParseAffinity(res.Output)
			if err != nil {
				pr.Diagnostic = fmt.Sprintf("stage %d (%s): %v", res.StageIndex, res.StageName, err)
				return pr
			}
			pr.Affinity = affinity
		}
	}

	orig, seq, opt, err := p.parseRedesign(c, pose)
	if err != nil {
		pr.Diagnostic = fmt.Sprintf("stage %d (%s): %v", StageRedesign, "redesign", err)
		return pr
	}
	pr.OrigGlobalScore = orig
	pr.OptSequence = seq
	pr.OptGlobalScore = opt
	pr.OK = true
	return pr
}

func (p *Pipeline) logStage(jobID string, res runner.Result) {
	elapsed := res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond)
	if res.OK {
		log.Printf("Job %s: stage %d (%s) completed in %s", jobID, res.StageIndex, res.StageName, elapsed)
		return
	}
	log.Printf("Job %s: stage %d (%s) failed after %s: %s", jobID, res.StageIndex, res.StageName, elapsed, res.Diagnostic)
}

// Stage indices, fixed by the pipeline ordering contract.
const (
	StagePredict   = 1
	StageProtonate = 2
	StageDock      = 3
	StageSort      = 4
	StageScore     = 5
	StageMerge     = 6
	StageRedesign  = 7
	StageReport    = 8
)
