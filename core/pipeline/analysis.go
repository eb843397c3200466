package pipeline

import (
	"math"
	"strings"
)

// SequenceProperties are the physicochemical descriptors reported for each
// candidate sequence.
type SequenceProperties struct {
	MolecularWeight  float64
	IsoelectricPoint float64
	Aromaticity      float64
	Gravy            float64 // grand average of hydropathy (Kyte-Doolittle)
	Hydrophilicity   float64 // Hopp-Woods mean
	HelixFraction    float64
	TurnFraction     float64
	SheetFraction    float64
}

// Average residue masses of the free amino acids; peptide bonds release one
// water per bond.
var residueWeights = map[byte]float64{
	'A': 89.0932, 'C': 121.1582, 'D': 133.1027, 'E': 147.1293,
	'F': 165.1891, 'G': 75.0666, 'H': 155.1546, 'I': 131.1729,
	'K': 146.1876, 'L': 131.1729, 'M': 149.2113, 'N': 132.1179,
	'P': 115.1305, 'Q': 146.1445, 'R': 174.2010, 'S': 105.0926,
	'T': 119.1192, 'V': 117.1463, 'W': 204.2252, 'Y': 181.1885,
}

const waterWeight = 18.0153

// Kyte-Doolittle hydropathy scale.
var kyteDoolittle = map[byte]float64{
	'A': 1.8, 'R': -4.5, 'N': -3.5, 'D': -3.5, 'C': 2.5,
	'Q': -3.5, 'E': -3.5, 'G': -0.4, 'H': -3.2, 'I': 4.5,
	'L': 3.8, 'K': -3.9, 'M': 1.9, 'F': 2.8, 'P': -1.6,
	'S': -0.8, 'T': -0.7, 'W': -0.9, 'Y': -1.3, 'V': 4.2,
}

// Hopp-Woods hydrophilicity scale.
var hoppWoods = map[byte]float64{
	'A': -0.5, 'R': 3.0, 'N': 0.2, 'D': 3.0, 'C': -1.0,
	'Q': 0.2, 'E': 3.0, 'G': 0.0, 'H': -0.5, 'I': -1.8,
	'L': -1.8, 'K': 3.0, 'M': -1.3, 'F': -2.5, 'P': 0.0,
	'S': 0.3, 'T': -0.4, 'W': -3.4, 'Y': -2.3, 'V': -1.5,
}

// Side-chain and termini pKa values used for the isoelectric point search.
var (
	positivePK = map[string]float64{"Nterm": 7.5, "K": 10.0, "R": 12.0, "H": 5.98}
	negativePK = map[string]float64{"Cterm": 3.55, "D": 4.05, "E": 4.45, "C": 9.0, "Y": 10.0}
)

// AnalyzeSequence computes the reported descriptors for a peptide sequence.
// Unknown residue letters contribute zero to scale averages.
func AnalyzeSequence(seq string) SequenceProperties {
	seq = strings.ToUpper(strings.TrimSpace(seq))
	n := len(seq)
	if n == 0 {
		return SequenceProperties{}
	}

	var props SequenceProperties
	props.MolecularWeight = molecularWeight(seq)
	props.IsoelectricPoint = isoelectricPoint(seq)
	props.Gravy = scaleMean(seq, kyteDoolittle)
	props.Hydrophilicity = scaleMean(seq, hoppWoods)

	for i := 0; i < n; i++ {
		switch seq[i] {
		case 'F', 'W', 'Y':
			props.Aromaticity++
		}
		if strings.IndexByte("VIYFWL", seq[i]) >= 0 {
			props.HelixFraction++
		}
		if strings.IndexByte("NPGS", seq[i]) >= 0 {
			props.TurnFraction++
		}
		if strings.IndexByte("EMAL", seq[i]) >= 0 {
			props.SheetFraction++
		}
	}
	props.Aromaticity /= float64(n)
	props.HelixFraction /= float64(n)
	props.TurnFraction /= float64(n)
	props.SheetFraction /= float64(n)
	return props
}

func molecularWeight(seq string) float64 {
	total := waterWeight // termini retain one water
	for i := 0; i < len(seq); i++ {
		total += residueWeights[seq[i]] - waterWeight
	}
	return total
}

func scaleMean(seq string, scale map[byte]float64) float64 {
	var sum float64
	for i := 0; i < len(seq); i++ {
		sum += scale[seq[i]]
	}
	return sum / float64(len(seq))
}

// isoelectricPoint finds the pH at which the net charge crosses zero by
// bisection. Net charge is monotonically decreasing in pH, so 80 iterations
// over [0,14] pin it well past reporting precision.
func isoelectricPoint(seq string) float64 {
	counts := map[string]int{"Nterm": 1, "Cterm": 1}
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'K', 'R', 'H', 'D', 'E', 'C', 'Y':
			counts[string(seq[i])]++
		}
	}

	charge := func(pH float64) float64 {
		var c float64
		for group, pk := range positivePK {
			c += float64(counts[group]) / (1 + math.Pow(10, pH-pk))
		}
		for group, pk := range negativePK {
			c -= float64(counts[group]) / (1 + math.Pow(10, pk-pH))
		}
		return c
	}

	lo, hi := 0.0, 14.0
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		if charge(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
