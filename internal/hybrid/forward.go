package hybrid

import (
	"fmt"

	"anfis/internal/fuzzy"
	"anfis/internal/regression"
)

// Layers holds the outputs of one forward pass.
type Layers struct {
	L1 [][]float64
	L2 []float64
	L3 []float64
	L4 []float64
	L5 float64
}

// ForwardPass evaluates the network on entries, feeds one equation for
// expected into the consequent estimator using mode, and returns every layer
// computed with the updated consequent parameters.
func (m *Model) ForwardPass(entries []float64, expected float64, mode regression.Mode) (Layers, error) {
	layers, err := m.premiseLayers(entries)
	if err != nil {
		return Layers{}, err
	}
	if err := m.fitConsequents(layers, expected, mode); err != nil {
		return Layers{}, err
	}
	if err := m.consequentLayers(&layers); err != nil {
		return Layers{}, err
	}
	return layers, nil
}

// Predict evaluates the network with the current consequent parameters and
// never touches the estimator.
func (m *Model) Predict(entries []float64) (Layers, error) {
	layers, err := m.premiseLayers(entries)
	if err != nil {
		return Layers{}, err
	}
	if err := m.consequentLayers(&layers); err != nil {
		return Layers{}, err
	}
	return layers, nil
}

// premiseLayers computes layers 1 to 3.
func (m *Model) premiseLayers(entries []float64) (Layers, error) {
	if err := m.checkFeatures(entries); err != nil {
		return Layers{}, err
	}
	mf := m.cfg.MFs
	l1 := make([][]float64, m.cfg.Inputs)
	for dim, value := range entries {
		degrees, err := m.premise.Evaluate(value, m.params[dim*mf:(dim+1)*mf])
		if err != nil {
			return Layers{}, fmt.Errorf("input %d: %w", dim, err)
		}
		l1[dim] = degrees
	}
	l2, err := fuzzy.FireStrengths(m.rules, l1, m.cfg.TNorm)
	if err != nil {
		return Layers{}, err
	}
	l3, err := fuzzy.Normalize(l2)
	if err != nil {
		return Layers{}, err
	}
	return Layers{L1: l1, L2: l2, L3: l3}, nil
}

// SystemRow is the linearized equation whose dot product with the consequent
// parameters equals the crisp output for these layers.
func (m *Model) SystemRow(layers Layers) []float64 {
	row := make([]float64, 0, m.ConsequentDim())
	for r := range m.rules {
		row = append(row, m.consequent.SystemTerm(layers.L2[r], layers.L3[r])...)
	}
	return row
}

func (m *Model) fitConsequents(layers Layers, expected float64, mode regression.Mode) error {
	if m.est == nil {
		return nil
	}
	if err := m.est.Update(m.SystemRow(layers), expected, mode); err != nil {
		return fmt.Errorf("consequent fit: %w", err)
	}
	return nil
}

// consequentLayers computes layers 4 and 5.
func (m *Model) consequentLayers(layers *Layers) error {
	pc := len(m.consequent.Params())
	x := m.ConsequentParams()
	layers.L4 = make([]float64, len(m.rules))
	layers.L5 = 0
	for r := range m.rules {
		degree, err := m.consequent.Degree(layers.L2[r], x[r*pc:(r+1)*pc]...)
		if err != nil {
			return fmt.Errorf("%w: rule %d: %v", ErrInvalidConsequent, r, err)
		}
		layers.L4[r] = degree * layers.L3[r]
		layers.L5 += layers.L4[r]
	}
	return nil
}
