package fuzzy

import "fmt"

// FuzzySet evaluates one input dimension against a group of labels that share
// a membership function family. Parameter rows are owned by the caller.
type FuzzySet struct {
	fn MembershipFunction
}

func NewFuzzySet(fn MembershipFunction) FuzzySet {
	return FuzzySet{fn: fn}
}

func (s FuzzySet) Function() MembershipFunction {
	return s.fn
}

// Evaluate returns the degree of value in each label described by rows.
func (s FuzzySet) Evaluate(value float64, rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		degree, err := s.fn.Degree(value, row...)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		out[i] = degree
	}
	return out, nil
}

// DerivsAt returns the partial derivative of each label at value with respect
// to variable. An empty variable yields, for every row, the partials over all
// parameter names in canonical order.
func (s FuzzySet) DerivsAt(value float64, variable string, rows [][]float64) ([]float64, error) {
	variables := s.fn.Params()
	if variable != "" {
		variables = []string{variable}
	}
	out := make([]float64, 0, len(rows)*len(variables))
	for i, row := range rows {
		for _, name := range variables {
			deriv, err := s.fn.Partial(value, name, row...)
			if err != nil {
				return nil, fmt.Errorf("label %d d/d%s: %w", i, name, err)
			}
			out = append(out, deriv)
		}
	}
	return out, nil
}
