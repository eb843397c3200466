package pipeline

import (
	"math"
	"testing"
)

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestAnalyzeSequenceMolecularWeight(t *testing.T) {
	// Two glycines joined by one peptide bond: 2*75.0666 - 18.0153.
	props := AnalyzeSequence("GG")
	if !approx(props.MolecularWeight, 132.1179, 0.001) {
		t.Fatalf("MW(GG) = %f, want 132.1179", props.MolecularWeight)
	}
}

func TestAnalyzeSequenceGravy(t *testing.T) {
	props := AnalyzeSequence("A")
	if !approx(props.Gravy, 1.8, 1e-9) {
		t.Fatalf("gravy(A) = %f, want 1.8", props.Gravy)
	}

	props = AnalyzeSequence("AR")
	if !approx(props.Gravy, (1.8-4.5)/2, 1e-9) {
		t.Fatalf("gravy(AR) = %f, want %f", props.Gravy, (1.8-4.5)/2)
	}
}

func TestAnalyzeSequenceHydrophilicity(t *testing.T) {
	props := AnalyzeSequence("KD")
	if !approx(props.Hydrophilicity, 3.0, 1e-9) {
		t.Fatalf("hydrophilicity(KD) = %f, want 3.0", props.Hydrophilicity)
	}
}

func TestAnalyzeSequenceAromaticity(t *testing.T) {
	props := AnalyzeSequence("FWYA")
	if !approx(props.Aromaticity, 0.75, 1e-9) {
		t.Fatalf("aromaticity(FWYA) = %f, want 0.75", props.Aromaticity)
	}
}

func TestAnalyzeSequenceSecondaryStructureFractions(t *testing.T) {
	// V: helix; N: turn; E: sheet; R: none of the three.
	props := AnalyzeSequence("VNER")
	if !approx(props.HelixFraction, 0.25, 1e-9) {
		t.Fatalf("helix = %f, want 0.25", props.HelixFraction)
	}
	if !approx(props.TurnFraction, 0.25, 1e-9) {
		t.Fatalf("turn = %f, want 0.25", props.TurnFraction)
	}
	if !approx(props.SheetFraction, 0.25, 1e-9) {
		t.Fatalf("sheet = %f, want 0.25", props.SheetFraction)
	}
}

func TestIsoelectricPointNeutralResidue(t *testing.T) {
	// Alanine: only the termini titrate, so the pI sits midway between
	// their pKa values.
	props := AnalyzeSequence("A")
	if !approx(props.IsoelectricPoint, (7.5+3.55)/2, 0.01) {
		t.Fatalf("pI(A) = %f, want %f", props.IsoelectricPoint, (7.5+3.55)/2)
	}
}

func TestIsoelectricPointChargeOrdering(t *testing.T) {
	basic := AnalyzeSequence("KKKK").IsoelectricPoint
	acidic := AnalyzeSequence("DDDD").IsoelectricPoint
	if basic <= acidic {
		t.Fatalf("basic peptide pI (%f) must exceed acidic peptide pI (%f)", basic, acidic)
	}
	if basic < 9 {
		t.Fatalf("polylysine pI = %f, expected strongly basic", basic)
	}
	if acidic > 5 {
		t.Fatalf("polyaspartate pI = %f, expected strongly acidic", acidic)
	}
}

func TestAnalyzeSequenceEmptyAndCase(t *testing.T) {
	if props := AnalyzeSequence(""); props.MolecularWeight != 0 {
		t.Fatalf("empty sequence should yield zero properties")
	}
	upper := AnalyzeSequence("GAV")
	lower := AnalyzeSequence("gav")
	if upper != lower {
		t.Fatalf("analysis must be case-insensitive")
	}
}
