// Command optimize runs the full peptide optimization pipeline once against
// a local input directory, without the API server or database. Useful for
// development and for driving the pipeline from shell scripts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"peptide-orchestrator/config"
	"peptide-orchestrator/core/artifacts"
	"peptide-orchestrator/core/pipeline"
	"peptide-orchestrator/core/resource"
)

func main() {
	inputDir := flag.String("input-dir", "./data/input", "directory containing peptide.fasta and the receptor PDB")
	outputDir := flag.String("output-dir", "./data/output", "directory to copy results into")
	cores := flag.Int("cores", 0, "CPU cores for the docking search (0 = auto-detect)")
	poses := flag.Int("poses", 0, "docking poses to produce (0 = default)")
	noCleanup := flag.Bool("no-cleanup", false, "keep intermediate files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sequence, err := readSequence(filepath.Join(*inputDir, "peptide.fasta"))
	if err != nil {
		log.Fatalf("Failed to read peptide sequence: %v", err)
	}
	receptor, err := findReceptor(*inputDir)
	if err != nil {
		log.Fatalf("Failed to locate receptor: %v", err)
	}

	if *cores <= 0 {
		probe := &resource.Probe{}
		*cores = probe.Budget(1).UsableCores
	}
	poseCount := *poses
	if poseCount <= 0 {
		poseCount = 10
	}

	workRoot, err := os.MkdirTemp("", "peptide-opt-")
	if err != nil {
		log.Fatalf("Failed to create workspace: %v", err)
	}

	store, err := artifacts.NewStore(workRoot)
	if err != nil {
		log.Fatalf("Failed to initialize workspace: %v", err)
	}

	const jobID = "local"
	workingDir, err := store.Prepare(jobID)
	if err != nil {
		log.Fatalf("Failed to prepare workspace: %v", err)
	}

	fasta := fmt.Sprintf(">peptide\n%s\n", sequence)
	if err := store.WriteInput(jobID, "peptide.fasta", []byte(fasta)); err != nil {
		log.Fatalf("Failed to stage inputs: %v", err)
	}
	receptorData, err := os.ReadFile(receptor)
	if err != nil {
		log.Fatalf("Failed to read receptor: %v", err)
	}
	receptorName := filepath.Base(receptor)
	if err := store.WriteInput(jobID, receptorName, receptorData); err != nil {
		log.Fatalf("Failed to stage inputs: %v", err)
	}

	pipe := pipeline.New(pipeline.NewToolStages(cfg.Tools))
	c := &pipeline.JobContext{
		JobID:           jobID,
		WorkingDir:      workingDir,
		ReceptorFile:    receptorName,
		PeptideSequence: sequence,
		PoseCount:       poseCount,
		Cores:           *cores,
	}

	log.Printf("Running optimization: receptor=%s poses=%d cores=%d", receptorName, poseCount, *cores)
	if err := pipe.Run(context.Background(), c); err != nil {
		log.Fatalf("Optimization failed: %v", err)
	}

	if err := copyOutputs(filepath.Join(workingDir, artifacts.OutputDir), *outputDir); err != nil {
		log.Fatalf("Failed to copy results: %v", err)
	}
	store.Finalize(jobID, *noCleanup)

	log.Printf("Optimization complete; results in %s", *outputDir)
}

func readSequence(fastaPath string) (string, error) {
	data, err := os.ReadFile(fastaPath)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		return strings.ToUpper(line), nil
	}
	return "", fmt.Errorf("no sequence line in %s", fastaPath)
}

// findReceptor picks the receptor structure file from the input directory.
func findReceptor(inputDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(inputDir, "*.pdb"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if filepath.Base(m) != "peptide.pdb" {
			return m, nil
		}
	}
	return "", fmt.Errorf("no receptor .pdb file in %s", inputDir)
}

func copyOutputs(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dstDir, entry.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
