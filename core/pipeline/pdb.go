package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MergeComplex writes a single complex structure combining the docked
// peptide and the receptor. The peptide becomes chain A; receptor chains are
// relabeled B, C, ... in order of appearance. Atom serials are renumbered so
// the combined file stays consistent. Only coordinate records survive the
// merge; headers and connectivity are tool-specific noise downstream tools
// re-derive.
func MergeComplex(peptidePath, receptorPath, outPath string) error {
	peptide, err := readCoordRecords(peptidePath)
	if err != nil {
		return err
	}
	receptor, err := readCoordRecords(receptorPath)
	if err != nil {
		return err
	}
	if len(peptide) == 0 {
		return fmt.Errorf("no atom records in %s", peptidePath)
	}
	if len(receptor) == 0 {
		return fmt.Errorf("no atom records in %s", receptorPath)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	var out strings.Builder
	serial := 0

	for _, line := range peptide {
		serial++
		out.WriteString(rechain(line, 'A', serial))
		out.WriteByte('\n')
	}
	out.WriteString("TER\n")

	// Relabel receptor chains starting at B, preserving chain boundaries.
	chainMap := map[byte]byte{}
	next := byte('B')
	prevChain := byte(0)
	for _, line := range receptor {
		orig := chainID(line)
		mapped, ok := chainMap[orig]
		if !ok {
			if next > 'Z' {
				return fmt.Errorf("too many receptor chains in %s", receptorPath)
			}
			mapped = next
			chainMap[orig] = mapped
			next++
		}
		if prevChain != 0 && mapped != prevChain {
			out.WriteString("TER\n")
		}
		prevChain = mapped

		serial++
		out.WriteString(rechain(line, mapped, serial))
		out.WriteByte('\n')
	}
	out.WriteString("TER\nEND\n")

	return os.WriteFile(outPath, []byte(out.String()), 0o644)
}

// readCoordRecords returns the ATOM/HETATM lines of a PDB file.
func readCoordRecords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM") {
			records = append(records, line)
		}
	}
	return records, scanner.Err()
}

// chainID reads the chain identifier column (22, zero-based 21).
func chainID(line string) byte {
	if len(line) > 21 {
		return line[21]
	}
	return ' '
}

// rechain rewrites the serial (columns 7-11) and chain (column 22) fields of
// a coordinate record, padding short lines to the fixed-column format.
func rechain(line string, chain byte, serial int) string {
	const minLen = 22
	if len(line) < minLen {
		line += strings.Repeat(" ", minLen-len(line))
	}
	b := []byte(line)
	copy(b[6:11], fmt.Sprintf("%5d", serial))
	b[21] = chain
	return string(b)
}
