package hybrid

import (
	"fmt"

	"anfis/internal/fuzzy"
	"anfis/internal/model"
	"anfis/internal/regression"
)

// Checkpoint snapshots the model. ID, versions and timestamps are left for
// the caller to fill in.
func (m *Model) Checkpoint() model.Checkpoint {
	cp := model.Checkpoint{
		Topology: model.Topology{
			MFs:        m.cfg.MFs,
			Inputs:     m.cfg.Inputs,
			Premise:    m.cfg.Premise,
			Consequent: m.cfg.Consequent,
			TNorm:      string(m.cfg.TNorm),
		},
		InputRange: m.cfg.InputRange,
		Premise:    m.params.Clone(),
		WarmStart:  m.warm.Clone(),
	}
	if m.est != nil {
		st := m.est.State()
		cp.Estimator = &model.EstimatorState{
			Lambda:         st.Lambda,
			Gamma:          st.Gamma,
			Covariance:     st.Covariance,
			Solution:       st.Solution,
			PrevCovariance: st.PrevCovariance,
			PrevSolution:   st.PrevSolution,
			Rows:           st.Rows,
		}
	}
	return cp
}

// Restore rebuilds a model from a checkpoint.
func Restore(cp model.Checkpoint) (*Model, error) {
	cfg := Config{
		MFs:        cp.Topology.MFs,
		Inputs:     cp.Topology.Inputs,
		Premise:    cp.Topology.Premise,
		Consequent: cp.Topology.Consequent,
		TNorm:      fuzzy.TNorm(cp.Topology.TNorm),
		InputRange: cp.InputRange,
	}
	if cp.Estimator != nil {
		cfg.Lambda = cp.Estimator.Lambda
		cfg.Gamma = cp.Estimator.Gamma
	}
	m, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("restore checkpoint %s: %w", cp.ID, err)
	}
	if err := m.SetPremiseParams(cp.Premise); err != nil {
		return nil, fmt.Errorf("restore checkpoint %s: %w", cp.ID, err)
	}
	if len(cp.WarmStart) > 0 {
		if err := m.SetWarmStart(cp.WarmStart); err != nil {
			return nil, fmt.Errorf("restore checkpoint %s warm start: %w", cp.ID, err)
		}
	}

	dim := m.ConsequentDim()
	switch {
	case cp.Estimator == nil && dim == 0:
	case cp.Estimator == nil || dim == 0:
		return nil, fmt.Errorf("restore checkpoint %s: %w: estimator does not match %d consequent params", cp.ID, ErrInvalidConfig, dim)
	default:
		est, err := regression.FromState(regression.State{
			Dim:            dim,
			Lambda:         cp.Estimator.Lambda,
			Gamma:          cp.Estimator.Gamma,
			Covariance:     cp.Estimator.Covariance,
			Solution:       cp.Estimator.Solution,
			PrevCovariance: cp.Estimator.PrevCovariance,
			PrevSolution:   cp.Estimator.PrevSolution,
			Rows:           cp.Estimator.Rows,
		})
		if err != nil {
			return nil, fmt.Errorf("restore checkpoint %s: %w", cp.ID, err)
		}
		m.est = est
	}
	return m, nil
}
