package hybrid

import (
	"fmt"
	"math"

	"anfis/internal/fuzzy"
)

// FallbackStepSize replaces a learning rate that would be infinite or NaN.
const FallbackStepSize = 0.001

// Step reports one gradient-descent update of the premise matrix.
type Step struct {
	Gradient []float64
	Norm     float64
	Eta      float64
	Error    float64
	Applied  bool
}

// Gradient returns dE/dθ for every premise parameter, flattened as
// row*paramCount + k, for E = (target - L5)².
func (m *Model) Gradient(entries []float64, target float64, layers Layers) ([]float64, error) {
	if err := m.checkFeatures(entries); err != nil {
		return nil, err
	}
	if len(layers.L2) != len(m.rules) || len(layers.L1) != m.cfg.Inputs {
		return nil, fmt.Errorf("layers do not match model with %d rules", len(m.rules))
	}

	mf := m.cfg.MFs
	pc := len(m.premise.Function().Params())
	grad := make([]float64, len(m.params)*pc)
	if len(m.rules) == 0 {
		return grad, nil
	}

	dEdO5 := -2 * (target - layers.L5)
	sensitivity, err := m.strengthSensitivity(layers)
	if err != nil {
		return nil, err
	}

	// dE/dμ for every (input, label)
	dEdMu := make([]float64, len(m.params))
	for s, rule := range m.rules {
		upstream := dEdO5 * sensitivity[s]
		if upstream == 0 {
			continue
		}
		for dim, label := range rule {
			dEdMu[dim*mf+label] += upstream * m.strengthPartial(rule, layers.L1, dim)
		}
	}

	for dim, value := range entries {
		rows := m.params[dim*mf : (dim+1)*mf]
		derivs, err := m.premise.DerivsAt(value, "", rows)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", dim, err)
		}
		for label := 0; label < mf; label++ {
			row := dim*mf + label
			for k := 0; k < pc; k++ {
				grad[row*pc+k] = dEdMu[row] * derivs[label*pc+k]
			}
		}
	}
	return grad, nil
}

// strengthSensitivity returns dO5/dw_s through the fixed consequent layer:
// f'_s(w_s)·n_s + (f_s(w_s) - O5)/W.
func (m *Model) strengthSensitivity(layers Layers) ([]float64, error) {
	total := 0.0
	for _, w := range layers.L2 {
		total += w
	}
	if total == 0 {
		return nil, fuzzy.ErrZeroFiringStrength
	}
	pc := len(m.consequent.Params())
	x := m.ConsequentParams()
	out := make([]float64, len(m.rules))
	for s := range m.rules {
		params := x[s*pc : (s+1)*pc]
		f, err := m.consequent.Degree(layers.L2[s], params...)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidConsequent, s, err)
		}
		slope, err := m.consequent.Slope(layers.L2[s], params...)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidConsequent, s, err)
		}
		out[s] = slope*layers.L3[s] + (f-layers.L5)/total
	}
	return out, nil
}

// strengthPartial is dw/dμ for the label rule uses on input dim.
func (m *Model) strengthPartial(rule fuzzy.Rule, l1 [][]float64, dim int) float64 {
	if m.cfg.TNorm == fuzzy.TNormMin {
		argmin := 0
		for d := range rule {
			if l1[d][rule[d]] < l1[argmin][rule[argmin]] {
				argmin = d
			}
		}
		if argmin == dim {
			return 1
		}
		return 0
	}
	out := 1.0
	for d, label := range rule {
		if d != dim {
			out *= l1[d][label]
		}
	}
	return out
}

// BackwardPass takes one normalized gradient step of size k on the premise
// matrix. A step that would leave any premise parameter non-finite is skipped
// and reported with Applied false.
func (m *Model) BackwardPass(entries []float64, target float64, layers Layers, k float64) (Step, error) {
	grad, err := m.Gradient(entries, target, layers)
	if err != nil {
		return Step{}, err
	}
	diff := target - layers.L5
	step := Step{Gradient: grad, Norm: norm(grad), Error: diff * diff}
	step.Eta = StepSize(k, step.Norm)

	pc := len(m.premise.Function().Params())
	next := m.params.Clone()
	for row := range next {
		for i := range next[row] {
			v := next[row][i] - step.Eta*grad[row*pc+i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return step, nil
			}
			next[row][i] = v
		}
	}
	m.params = next
	step.Applied = true
	return step, nil
}

// StepSize is k/‖g‖, or FallbackStepSize when that is undefined.
func StepSize(k, gradNorm float64) float64 {
	if gradNorm == 0 {
		return FallbackStepSize
	}
	eta := k / gradNorm
	if math.IsNaN(eta) || math.IsInf(eta, 0) {
		return FallbackStepSize
	}
	return eta
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
