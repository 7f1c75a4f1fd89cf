package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"anfis/internal/hybrid"
)

const sinePairs = 50

var builtins = map[string]func(seed int64) []hybrid.Pair{
	"xor":  func(int64) []hybrid.Pair { return truthTable(func(a, b bool) bool { return a != b }) },
	"and":  func(int64) []hybrid.Pair { return truthTable(func(a, b bool) bool { return a && b }) },
	"sine": sine,
}

// Names lists the built-in datasets in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a named dataset. The seed only affects sampled datasets.
func Builtin(name string, seed int64) ([]hybrid.Pair, error) {
	build, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return build(seed), nil
}

// Load resolves source as a built-in name first and a CSV path otherwise.
func Load(source, targetColumn string, seed int64) ([]hybrid.Pair, error) {
	if _, ok := builtins[strings.ToLower(strings.TrimSpace(source))]; ok {
		return Builtin(source, seed)
	}
	return LoadCSV(source, targetColumn)
}

func truthTable(fn func(a, b bool) bool) []hybrid.Pair {
	pairs := make([]hybrid.Pair, 0, 4)
	for _, in := range [][2]bool{{false, false}, {false, true}, {true, false}, {true, true}} {
		target := 0.0
		if fn(in[0], in[1]) {
			target = 1
		}
		pairs = append(pairs, hybrid.Pair{
			Features: []float64{boolValue(in[0]), boolValue(in[1])},
			Target:   target,
		})
	}
	return pairs
}

// sine samples x in [0, 1] and maps it to 0.5+0.4*sin(2*pi*x).
func sine(seed int64) []hybrid.Pair {
	rng := rand.New(rand.NewSource(seed))
	pairs := make([]hybrid.Pair, 0, sinePairs)
	for i := 0; i < sinePairs; i++ {
		x := rng.Float64()
		pairs = append(pairs, hybrid.Pair{
			Features: []float64{x},
			Target:   0.5 + 0.4*math.Sin(2*math.Pi*x),
		})
	}
	return pairs
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
