package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/runner"
)

// ReportFile is the tabular result written into the job's output tree.
const ReportFile = "result.csv"

// reportStage builds stage 8: aggregate the surviving poses into the report
// and copy their complex structures into output/. Runs in-process.
func (p *Pipeline) reportStage(c *JobContext, poses []PoseResult) runner.Stage {
	return runner.Stage{
		Index:   StageReport,
		Name:    "report",
		Dir:     c.WorkingDir,
		Outputs: []string{artifacts.OutputPath(c.WorkingDir, ReportFile)},
		Func: func(ctx context.Context) error {
			return writeReport(c, poses)
		},
	}
}

// writeReport aggregates successfully-processed poses only. Failed poses are
// excluded, never reported; the stage itself fails only when nothing
// survived to report.
func writeReport(c *JobContext, poses []PoseResult) error {
	ok := 0
	for _, pr := range poses {
		if pr.OK {
			ok++
		}
	}
	if ok == 0 {
		return fmt.Errorf("all %d poses failed; first: %s", len(poses), firstDiagnostic(poses))
	}

	out, err := os.Create(artifacts.OutputPath(c.WorkingDir, ReportFile))
	if err != nil {
		return err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	header := []string{
		"Index", "Affinity score", "Original global score",
		"Optimal sequence", "Global score", "Molecular weight",
		"Isoelectric point", "Aromaticity", "Hydrophobicity",
		"Hydrophilicity", "Helix fraction", "Turn fraction", "Sheet fraction",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	// First row describes the submitted peptide itself.
	if err := w.Write(propertyRow("Input peptide property", "-", "-", c.PeptideSequence, "-")); err != nil {
		return err
	}

	for _, pr := range poses {
		if !pr.OK {
			continue
		}
		row := propertyRow(
			fmt.Sprintf("Docking result rank %d", pr.Pose),
			formatFloat(pr.Affinity),
			formatFloat(pr.OrigGlobalScore),
			pr.OptSequence,
			formatFloat(pr.OptGlobalScore),
		)
		if err := w.Write(row); err != nil {
			return err
		}

		src := filepath.Join(artifacts.PoseDir(c.WorkingDir, pr.Pose), "complex.pdb")
		dst := artifacts.OutputPath(c.WorkingDir, fmt.Sprintf("complex%d.pdb", pr.Pose))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copy complex for pose %d: %w", pr.Pose, err)
		}
	}

	w.Flush()
	return w.Error()
}

func propertyRow(index, affinity, origScore, seq, optScore string) []string {
	props := AnalyzeSequence(seq)
	return []string{
		index, affinity, origScore, seq, optScore,
		formatFloat(props.MolecularWeight),
		formatFloat(props.IsoelectricPoint),
		formatFloat(props.Aromaticity),
		formatFloat(props.Gravy),
		formatFloat(props.Hydrophilicity),
		formatFloat(props.HelixFraction),
		formatFloat(props.TurnFraction),
		formatFloat(props.SheetFraction),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func firstDiagnostic(poses []PoseResult) string {
	for _, pr := range poses {
		if !pr.OK && pr.Diagnostic != "" {
			return pr.Diagnostic
		}
	}
	return "no diagnostic recorded"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
