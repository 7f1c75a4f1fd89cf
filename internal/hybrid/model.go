// Package hybrid implements a five-layer Tsukamoto-style neuro-fuzzy network
// whose consequent parameters are fitted by recursive least squares and whose
// premise parameters are fitted by normalized gradient descent.
package hybrid

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"anfis/internal/fuzzy"
	"anfis/internal/regression"
)

const (
	InitGrid   = "grid"
	InitRandom = "random"
)

var (
	ErrInputSize         = errors.New("feature vector length does not match input count")
	ErrInvalidConfig     = errors.New("invalid model configuration")
	ErrInvalidConsequent = errors.New("invalid consequent function")
)

// Config describes the topology and fitting constants of a model.
type Config struct {
	MFs        int
	Inputs     int
	Premise    string
	Consequent string
	TNorm      fuzzy.TNorm
	Lambda     float64
	Gamma      float64
	// Init selects how premise parameters are seeded: InitGrid spreads label
	// centers evenly over InputRange, InitRandom draws integers in [1, 10].
	Init       string
	InputRange [2]float64
	Seed       int64
}

// PremiseParams holds one parameter row per (input, label), row index
// input*MFs + label.
type PremiseParams [][]float64

func (p PremiseParams) Clone() PremiseParams {
	out := make(PremiseParams, len(p))
	for i, row := range p {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Model owns the premise matrix and the consequent estimator. It is not safe
// for concurrent use; workers operate on clones.
type Model struct {
	cfg        Config
	premise    fuzzy.FuzzySet
	consequent fuzzy.ConsequentFunction
	rules      fuzzy.RuleTable
	params     PremiseParams
	warm       PremiseParams
	est        *regression.Estimator
}

// Pair is one training example.
type Pair struct {
	Features []float64
	Target   float64
}

func New(cfg Config) (*Model, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	premiseFn, err := fuzzy.GetFunction(cfg.Premise)
	if err != nil {
		return nil, fmt.Errorf("premise: %w", err)
	}
	consequentFn, err := fuzzy.GetConsequentFunction(cfg.Consequent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConsequent, err)
	}
	rules, err := fuzzy.BuildRuleTable(cfg.MFs, cfg.Inputs)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:        cfg,
		premise:    fuzzy.NewFuzzySet(premiseFn),
		consequent: consequentFn,
		rules:      rules,
	}
	m.warm = initialPremises(cfg, premiseFn)
	m.params = m.warm.Clone()
	if err := m.ResetConsequents(); err != nil {
		return nil, err
	}
	return m, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.MFs < 0 || cfg.Inputs < 0 {
		return Config{}, fmt.Errorf("%w: %w: mfs=%d inputs=%d", ErrInvalidConfig, fuzzy.ErrInvalidTopology, cfg.MFs, cfg.Inputs)
	}
	if cfg.Premise == "" {
		cfg.Premise = fuzzy.BellTwo{}.Name()
	}
	if cfg.Consequent == "" {
		cfg.Consequent = fuzzy.PiecewiseLogit{}.Name()
	}
	tnorm, err := fuzzy.ParseTNorm(string(cfg.TNorm))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.TNorm = tnorm
	if cfg.Lambda == 0 {
		cfg.Lambda = regression.DefaultLambda
	}
	if cfg.Gamma == 0 {
		cfg.Gamma = regression.DefaultGamma
	}
	switch cfg.Init {
	case "":
		cfg.Init = InitGrid
	case InitGrid, InitRandom:
	default:
		return Config{}, fmt.Errorf("%w: unknown init %q", ErrInvalidConfig, cfg.Init)
	}
	if cfg.InputRange == [2]float64{} {
		cfg.InputRange = [2]float64{0, 1}
	}
	if !(cfg.InputRange[1] > cfg.InputRange[0]) {
		return Config{}, fmt.Errorf("%w: input range %v", ErrInvalidConfig, cfg.InputRange)
	}
	return cfg, nil
}

func initialPremises(cfg Config, fn fuzzy.MembershipFunction) PremiseParams {
	params := make(PremiseParams, 0, cfg.MFs*cfg.Inputs)
	if cfg.Init == InitRandom {
		rng := rand.New(rand.NewSource(cfg.Seed))
		for i := 0; i < cfg.MFs*cfg.Inputs; i++ {
			row := make([]float64, len(fn.Params()))
			for k := range row {
				row[k] = float64(1 + rng.Intn(10))
			}
			params = append(params, row)
		}
		return params
	}

	lo, hi := cfg.InputRange[0], cfg.InputRange[1]
	spread := (hi - lo) / float64(max(cfg.MFs-1, 1)) / 2
	for dim := 0; dim < cfg.Inputs; dim++ {
		for label := 0; label < cfg.MFs; label++ {
			center := (lo + hi) / 2
			if cfg.MFs > 1 {
				center = lo + float64(label)*(hi-lo)/float64(cfg.MFs-1)
			}
			params = append(params, fn.Initial(center, spread))
		}
	}
	return params
}

func (m *Model) Config() Config { return m.cfg }

func (m *Model) Rules() fuzzy.RuleTable { return m.rules.Clone() }

func (m *Model) RuleCount() int { return len(m.rules) }

func (m *Model) PremiseFunction() fuzzy.MembershipFunction { return m.premise.Function() }

func (m *Model) ConsequentFunction() fuzzy.ConsequentFunction { return m.consequent }

// ConsequentDim is the length of the consequent parameter vector.
func (m *Model) ConsequentDim() int {
	return len(m.rules) * len(m.consequent.Params())
}

// PremiseParams returns a copy of the premise matrix.
func (m *Model) PremiseParams() PremiseParams { return m.params.Clone() }

// SetPremiseParams replaces the premise matrix after checking its shape.
func (m *Model) SetPremiseParams(p PremiseParams) error {
	if err := m.checkPremiseShape(p); err != nil {
		return err
	}
	m.params = p.Clone()
	return nil
}

// SetWarmStart replaces the matrix ResetPremises restores.
func (m *Model) SetWarmStart(p PremiseParams) error {
	if err := m.checkPremiseShape(p); err != nil {
		return err
	}
	m.warm = p.Clone()
	return nil
}

func (m *Model) checkPremiseShape(p PremiseParams) error {
	want := m.cfg.MFs * m.cfg.Inputs
	pc := len(m.premise.Function().Params())
	if len(p) != want {
		return fmt.Errorf("%w: premise rows %d, want %d", ErrInvalidConfig, len(p), want)
	}
	for i, row := range p {
		if len(row) != pc {
			return fmt.Errorf("%w: premise row %d has %d params, want %d", ErrInvalidConfig, i, len(row), pc)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: premise row %d is not finite", ErrInvalidConfig, i)
			}
		}
	}
	return nil
}

// ResetPremises restores the warm-start premise matrix.
func (m *Model) ResetPremises() {
	m.params = m.warm.Clone()
}

// ResetConsequents discards every equation fed to the estimator.
func (m *Model) ResetConsequents() error {
	dim := m.ConsequentDim()
	if dim == 0 {
		m.est = nil
		return nil
	}
	if m.est != nil {
		m.est.Reset()
		return nil
	}
	est, err := regression.NewEstimator(dim, m.cfg.Lambda, m.cfg.Gamma)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	m.est = est
	return nil
}

// ConsequentParams returns a copy of X.
func (m *Model) ConsequentParams() []float64 {
	if m.est == nil {
		return nil
	}
	return m.est.Solution()
}

// SystemRows is the number of equations in the consequent system.
func (m *Model) SystemRows() int {
	if m.est == nil {
		return 0
	}
	return m.est.Rows()
}

func (m *Model) Clone() *Model {
	out := &Model{
		cfg:        m.cfg,
		premise:    m.premise,
		consequent: m.consequent,
		rules:      m.rules,
		params:     m.params.Clone(),
		warm:       m.warm.Clone(),
	}
	if m.est != nil {
		out.est = m.est.Clone()
	}
	return out
}

func (m *Model) assign(other *Model) {
	m.params = other.params.Clone()
	m.est = nil
	if other.est != nil {
		m.est = other.est.Clone()
	}
}

func (m *Model) checkFeatures(features []float64) error {
	if len(features) != m.cfg.Inputs {
		return fmt.Errorf("%w: got %d want %d", ErrInputSize, len(features), m.cfg.Inputs)
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %d is not finite", ErrInputSize, i)
		}
	}
	return nil
}
