package fuzzy

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrZeroFiringStrength = errors.New("rule firing strengths sum to zero")
	ErrUnknownTNorm       = errors.New("unknown t-norm")
)

// TNorm is the fuzzy AND used to compute rule firing strength.
type TNorm string

const (
	TNormProduct TNorm = "product"
	TNormMin     TNorm = "min"
)

func ParseTNorm(name string) (TNorm, error) {
	switch TNorm(name) {
	case "", TNormProduct:
		return TNormProduct, nil
	case TNormMin:
		return TNormMin, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTNorm, name)
	}
}

// Apply folds degrees with the t-norm. The empty fold is 1, the identity of
// every t-norm.
func (t TNorm) Apply(degrees []float64) float64 {
	out := 1.0
	for _, d := range degrees {
		if t == TNormMin {
			out = math.Min(out, d)
		} else {
			out *= d
		}
	}
	return out
}

// FireStrengths computes one firing strength per rule from the per-dimension
// membership vectors.
func FireStrengths(table RuleTable, layer1 [][]float64, t TNorm) ([]float64, error) {
	strengths := make([]float64, len(table))
	degrees := make([]float64, 0, len(layer1))
	for r, rule := range table {
		if len(rule) != len(layer1) {
			return nil, fmt.Errorf("rule %d has %d labels for %d inputs", r, len(rule), len(layer1))
		}
		degrees = degrees[:0]
		for dim, label := range rule {
			if label < 0 || label >= len(layer1[dim]) {
				return nil, fmt.Errorf("rule %d label %d out of range for input %d", r, label, dim)
			}
			degrees = append(degrees, layer1[dim][label])
		}
		strengths[r] = t.Apply(degrees)
	}
	return strengths, nil
}

// Normalize divides each strength by the total so the result sums to 1.
func Normalize(strengths []float64) ([]float64, error) {
	total := 0.0
	for _, s := range strengths {
		total += s
	}
	if total == 0 {
		return nil, ErrZeroFiringStrength
	}
	out := make([]float64, len(strengths))
	for i, s := range strengths {
		out[i] = s / total
	}
	return out, nil
}
