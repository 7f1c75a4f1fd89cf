package fuzzy

import (
	"errors"
	"fmt"
)

var ErrInvalidTopology = errors.New("invalid rule table topology")

// Rule holds one label index per input dimension.
type Rule []int

type RuleTable []Rule

// BuildRuleTable returns the Cartesian product of range(qtdMF) repeated
// qtdInputs times, first dimension varying slowest. Zero inputs produce the
// single empty rule; zero labels with at least one input produce no rules.
func BuildRuleTable(qtdMF, qtdInputs int) (RuleTable, error) {
	if qtdMF < 0 || qtdInputs < 0 {
		return nil, fmt.Errorf("%w: labels=%d inputs=%d", ErrInvalidTopology, qtdMF, qtdInputs)
	}
	if qtdInputs == 0 {
		return RuleTable{Rule{}}, nil
	}
	if qtdMF == 0 {
		return RuleTable{}, nil
	}

	size := 1
	for i := 0; i < qtdInputs; i++ {
		size *= qtdMF
	}
	table := make(RuleTable, 0, size)
	current := make(Rule, qtdInputs)
	for {
		table = append(table, append(Rule(nil), current...))

		dim := qtdInputs - 1
		for dim >= 0 {
			current[dim]++
			if current[dim] < qtdMF {
				break
			}
			current[dim] = 0
			dim--
		}
		if dim < 0 {
			return table, nil
		}
	}
}

func (t RuleTable) Clone() RuleTable {
	out := make(RuleTable, len(t))
	for i, rule := range t {
		out[i] = append(Rule(nil), rule...)
	}
	return out
}
