package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAffinity extracts the binding affinity (kcal/mol) from the scorer's
// captured output. The scorer reports a line of the form
// "Affinity: -7.123 (kcal/mol)".
func ParseAffinity(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Affinity:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		score, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("malformed affinity line %q: %w", line, err)
		}
		return score, nil
	}
	return 0, fmt.Errorf("no affinity line in scorer output")
}
