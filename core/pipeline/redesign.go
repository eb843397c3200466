package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"peptide-orchestrator/core/artifacts"
)

// parseRedesign reads the redesign output for one pose and picks the best
// candidate sequence.
func (p *Pipeline) parseRedesign(c *JobContext, pose int) (origScore float64, optSeq string, optScore float64, err error) {
	fasta := filepath.Join(artifacts.PoseDir(c.WorkingDir, pose), "seqs", "complex.fa")
	return ParseRedesignFasta(fasta)
}

// ParseRedesignFasta parses a redesign-tool FASTA where the first record is
// the input complex annotated with its global score and the remaining
// records are sampled candidates:
//
//	>complex, score=..., global_score=1.234, ...
//	ORIGINALSEQ
//	>T=0.1, sample=1, score=..., global_score=1.456, ...
//	CANDIDATESEQ
//
// It returns the input sequence's global score and the candidate with the
// highest global score.
func ParseRedesignFasta(path string) (origScore float64, optSeq string, optScore float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", 0, err
	}
	defer f.Close()

	var (
		haveOrig    bool
		pending     float64 // global score of the header preceding a sequence
		havePending bool
		best        string
		bestScore   float64
		haveBest    bool
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			score, ok := globalScore(line)
			if !ok {
				havePending = false
				continue
			}
			if !haveOrig {
				origScore = score
				haveOrig = true
				havePending = false
				continue
			}
			pending = score
			havePending = true
			continue
		}
		if havePending {
			if !haveBest || pending > bestScore {
				best = line
				bestScore = pending
				haveBest = true
			}
			havePending = false
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, "", 0, err
	}
	if !haveOrig {
		return 0, "", 0, fmt.Errorf("no annotated input record in %s", path)
	}
	if !haveBest {
		return 0, "", 0, fmt.Errorf("no candidate sequences in %s", path)
	}
	return origScore, best, bestScore, nil
}

// globalScore extracts the global_score annotation from a FASTA header.
func globalScore(header string) (float64, bool) {
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		if !strings.HasPrefix(field, "global_score=") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimPrefix(field, "global_score="), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
