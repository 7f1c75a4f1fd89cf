package stats

import (
	"errors"
	"fmt"
	"math"
)

var ErrEmptySequence = errors.New("empty symbol sequence")

// Levenshtein is the edit distance between two symbol sequences where an
// insertion or deletion costs 1 and a substitution costs substitutionCost.
func Levenshtein(expected, result []string, substitutionCost int) int {
	prev := make([]int, len(result)+1)
	curr := make([]int, len(result)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(expected); i++ {
		curr[0] = i
		for j := 1; j <= len(result); j++ {
			sub := substitutionCost
			if expected[i-1] == result[j-1] {
				sub = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(result)]
}

// ErrorRate maps every prediction to a symbol with lookup and returns the
// edit distance to expected divided by the number of predictions.
func ErrorRate(expected []string, predictions []float64, lookup func(float64) string) (float64, error) {
	if len(predictions) == 0 {
		return 0, ErrEmptySequence
	}
	if lookup == nil {
		return 0, errors.New("symbol lookup is required")
	}
	result := make([]string, len(predictions))
	for i, p := range predictions {
		result[i] = lookup(p)
	}
	return float64(Levenshtein(expected, result, 1)) / float64(len(result)), nil
}

// NearestSymbol returns a lookup that maps a value to the symbol whose center
// is closest, first center winning ties.
func NearestSymbol(centers []float64, symbols []string) (func(float64) string, error) {
	if len(centers) == 0 {
		return nil, ErrEmptySequence
	}
	if len(centers) != len(symbols) {
		return nil, fmt.Errorf("got %d centers for %d symbols", len(centers), len(symbols))
	}
	c := append([]float64(nil), centers...)
	s := append([]string(nil), symbols...)
	return func(v float64) string {
		best := 0
		for i := 1; i < len(c); i++ {
			if math.Abs(c[i]-v) < math.Abs(c[best]-v) {
				best = i
			}
		}
		return s[best]
	}, nil
}
