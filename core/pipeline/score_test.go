package pipeline

import "testing"

func TestParseAffinity(t *testing.T) {
	output := `Reading input ... done.
Setting up the scoring function ... done.
Affinity: -7.123 (kcal/mol)
Intermolecular contributions to the terms:`

	got, err := ParseAffinity(output)
	if err != nil {
		t.Fatalf("ParseAffinity: %v", err)
	}
	if got != -7.123 {
		t.Fatalf("affinity = %f, want -7.123", got)
	}
}

func TestParseAffinityMissing(t *testing.T) {
	if _, err := ParseAffinity("Reading input ... done.\n"); err == nil {
		t.Fatalf("expected error for output without affinity line")
	}
}

func TestParseAffinityMalformed(t *testing.T) {
	if _, err := ParseAffinity("Affinity: not-a-number (kcal/mol)\n"); err == nil {
		t.Fatalf("expected error for malformed affinity value")
	}
}
