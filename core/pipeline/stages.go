package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"peptide-orchestrator/config"
	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/runner"
)

// ToolStages builds stages around the external collaborator binaries. Every
// command runs with middlefiles/ as its working directory so intermediates
// never leak outside the job tree.
type ToolStages struct {
	Tools config.ToolConfig
}

func NewToolStages(tools config.ToolConfig) *ToolStages {
	return &ToolStages{Tools: tools}
}

func middle(c *JobContext, name string) string {
	return artifacts.MiddlePath(c.WorkingDir, name)
}

func (t *ToolStages) middleDir(c *JobContext) string {
	return filepath.Join(c.WorkingDir, artifacts.MiddleDir)
}

// Predict runs the sequence-to-structure predictor over the submitted
// peptide sequence.
func (t *ToolStages) Predict(c *JobContext) runner.Stage {
	fasta := artifacts.InputPath(c.WorkingDir, "peptide.fasta")
	return runner.Stage{
		Index:   StagePredict,
		Name:    "predict",
		Dir:     t.middleDir(c),
		Inputs:  []string{fasta},
		Outputs: []string{middle(c, "peptide.pdb")},
		Timeout: t.Tools.PredictTimeout,
		Commands: func(int) [][]string {
			return [][]string{
				{t.Tools.OmegaFold, "--model", "2", fasta, "."},
			}
		},
	}
}

// Protonate strips heteroatoms and stray hydrogens from the receptor and the
// predicted peptide, then re-adds hydrogens to both.
func (t *ToolStages) Protonate(c *JobContext) runner.Stage {
	receptor := artifacts.InputPath(c.WorkingDir, c.ReceptorFile)
	return runner.Stage{
		Index:   StageProtonate,
		Name:    "protonate",
		Dir:     t.middleDir(c),
		Inputs:  []string{receptor, middle(c, "peptide.pdb")},
		Outputs: []string{middle(c, "receptorH.pdb"), middle(c, "peptideH.pdb")},
		Timeout: t.Tools.DefaultTimeout,
		Commands: func(int) [][]string {
			return [][]string{
				{t.Tools.Pymol, "-cq", receptor, "-d",
					"remove hetatm; remove elem H; h_add all; save receptorH.pdb"},
				{t.Tools.Pymol, "-cq", "peptide.pdb", "-d",
					"remove elem H; h_add all; save peptideH.pdb"},
			}
		},
	}
}

// Dock prepares receptor and ligand, builds the search grid, and runs the
// docking search producing the ranked poses. This is the one stage that
// accepts the job's core allocation.
func (t *ToolStages) Dock(c *JobContext) runner.Stage {
	outputs := make([]string, c.PoseCount)
	for i := range outputs {
		outputs[i] = middle(c, fmt.Sprintf("peptide_ranked_%d.pdb", i+1))
	}
	return runner.Stage{
		Index:   StageDock,
		Name:    "dock",
		Dir:     t.middleDir(c),
		Inputs:  []string{middle(c, "receptorH.pdb"), middle(c, "peptideH.pdb")},
		Outputs: outputs,
		Timeout: t.Tools.DockTimeout,
		Commands: func(cores int) [][]string {
			return [][]string{
				{t.Tools.PrepareReceptor, "-r", "receptorH.pdb", "-o", "receptorH.pdbqt"},
				{t.Tools.PrepareLigand, "-l", "peptideH.pdb", "-o", "peptideH.pdbqt"},
				{t.Tools.AGFR, "-r", "receptorH.pdbqt", "-l", "peptideH.pdbqt", "-asv", "1.1", "-o", "complex"},
				{t.Tools.ADCP, "-t", "complex.trg", "-s", c.PeptideSequence,
					"-N", fmt.Sprint(c.PoseCount), "-c", fmt.Sprint(cores), "-o", "./peptide"},
			}
		},
	}
}

// SortPose normalizes atom ordering for one docked pose and re-adds
// hydrogens.
func (t *ToolStages) SortPose(c *JobContext, pose int) runner.Stage {
	in := fmt.Sprintf("peptide_ranked_%d.pdb", pose)
	out := fmt.Sprintf("peptide_ranked_%d_sorted_H.pdb", pose)
	return runner.Stage{
		Index:   StageSort,
		Name:    "sort",
		Dir:     t.middleDir(c),
		Inputs:  []string{middle(c, in)},
		Outputs: []string{middle(c, out)},
		Timeout: t.Tools.DefaultTimeout,
		Commands: func(int) [][]string {
			return [][]string{
				{t.Tools.Pymol, "-cq", in, "-d",
					fmt.Sprintf("remove elem H; h_add all; save %s", out)},
			}
		},
	}
}

// ScorePose converts the sorted pose to pdbqt and scores its binding
// affinity against the prepared receptor. The affinity value is parsed from
// the captured tool output.
func (t *ToolStages) ScorePose(c *JobContext, pose int) runner.Stage {
	ligand := fmt.Sprintf("peptide_ranked_%d_sorted_H.pdb", pose)
	pdbqt := ligand + "qt"
	return runner.Stage{
		Index:   StageScore,
		Name:    "score",
		Dir:     t.middleDir(c),
		Inputs:  []string{middle(c, ligand), middle(c, "receptorH.pdbqt")},
		Outputs: []string{middle(c, pdbqt)},
		Timeout: t.Tools.ScoreTimeout,
		Commands: func(int) [][]string {
			return [][]string{
				{t.Tools.PrepareLigand, "-l", ligand, "-o", pdbqt},
				{t.Tools.Vina, "--ligand", pdbqt, "--receptor", "receptorH.pdbqt",
					"--score_only", "--exhaustiveness", "1", "--num_modes", "1"},
			}
		},
	}
}

// MergePose combines the docked peptide and the receptor into one complex
// structure, peptide as chain A, receptor chains relabeled from B. Runs
// in-process; the merge is plain PDB record manipulation, not science.
func (t *ToolStages) MergePose(c *JobContext, pose int) runner.Stage {
	peptide := middle(c, fmt.Sprintf("peptide_ranked_%d_sorted_H.pdb", pose))
	receptor := middle(c, "receptorH.pdb")
	out := filepath.Join(artifacts.PoseDir(c.WorkingDir, pose), "complex.pdb")
	return runner.Stage{
		Index:   StageMerge,
		Name:    "merge",
		Dir:     t.middleDir(c),
		Inputs:  []string{peptide, receptor},
		Outputs: []string{out},
		Timeout: t.Tools.DefaultTimeout,
		Func: func(ctx context.Context) error {
			return MergeComplex(peptide, receptor, out)
		},
	}
}

// RedesignPose runs the sequence-redesign tool over one merged complex,
// designing the peptide chain while keeping the receptor fixed.
func (t *ToolStages) RedesignPose(c *JobContext, pose int) runner.Stage {
	poseDir := artifacts.PoseDir(c.WorkingDir, pose)
	parsed := filepath.Join(poseDir, "parsed_pdbs.jsonl")
	assigned := filepath.Join(poseDir, "assigned_pdbs.jsonl")
	helper := filepath.Join(t.Tools.ProteinMPNN, "helper_scripts")
	return runner.Stage{
		Index:   StageRedesign,
		Name:    "redesign",
		Dir:     t.middleDir(c),
		Inputs:  []string{filepath.Join(poseDir, "complex.pdb")},
		Outputs: []string{filepath.Join(poseDir, "seqs", "complex.fa")},
		Timeout: t.Tools.RedesignTimeout,
		Commands: func(int) [][]string {
			return [][]string{
				{t.Tools.Python, filepath.Join(helper, "parse_multiple_chains.py"),
					"--input_path=" + poseDir, "--output_path=" + parsed},
				{t.Tools.Python, filepath.Join(helper, "assign_fixed_chains.py"),
					"--input_path=" + parsed, "--output_path=" + assigned, "--chain_list", "A"},
				{t.Tools.Python, filepath.Join(t.Tools.ProteinMPNN, "protein_mpnn_run.py"),
					"--jsonl_path", parsed, "--out_folder", poseDir, "--chain_id_jsonl", assigned,
					"--num_seq_per_target", "10", "--sampling_temp", "0.1", "--seed", "37", "--batch_size", "1"},
			}
		},
	}
}
