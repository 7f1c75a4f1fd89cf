package hybrid

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"anfis/internal/regression"
)

// Mode selects how state flows between training pairs.
type Mode string

const (
	// ModeOnline carries premises and the consequent system across pairs.
	ModeOnline Mode = "online"
	// ModeRestart starts every pair from the warm-start premises and an
	// empty consequent system. Pairs are independent and may run in parallel.
	ModeRestart Mode = "restart"
)

// SystemMode selects how each epoch's equation enters the consequent system.
type SystemMode string

const (
	// SystemPerPair appends on a pair's first epoch and overwrites that
	// equation on later epochs.
	SystemPerPair SystemMode = "per_pair"
	// SystemGrowing appends one equation every epoch.
	SystemGrowing SystemMode = "growing"
	// SystemSingleRow keeps a single equation, overwritten every epoch.
	SystemSingleRow SystemMode = "single_row"
)

func (s SystemMode) modeFor(epoch int) regression.Mode {
	switch s {
	case SystemGrowing:
		return regression.ModeGrow
	case SystemSingleRow:
		return regression.ModeOverwrite
	default:
		if epoch == 1 {
			return regression.ModeGrow
		}
		return regression.ModeOverwrite
	}
}

// State is a training controller state.
type State int

const (
	StateIdle State = iota
	StateForEachPair
	StateForEachEpoch
	StateConverged
	StateEpochExhausted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateForEachPair:
		return "for_each_pair"
	case StateForEachEpoch:
		return "for_each_epoch"
	case StateConverged:
		return "converged"
	case StateEpochExhausted:
		return "epoch_exhausted"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type TrainConfig struct {
	Mode       Mode
	SystemMode SystemMode
	InitialK   float64
	// FixedStep disables step-size adaptation.
	FixedStep      bool
	IncreaseFactor float64
	DecreaseFactor float64
	Window         int
	// Workers > 1 is only accepted in ModeRestart.
	Workers  int
	Observer Observer
}

// PairReport is the outcome of one pair's epoch loop.
type PairReport struct {
	Index      int
	Epochs     int
	Error      float64
	StepSize   float64
	Prediction float64
	Elapsed    time.Duration
	Converged  bool
	State      State
}

type Report struct {
	Pairs     []PairReport
	Converged int
	Exhausted int
	Elapsed   time.Duration
}

// Trainer drives the hybrid learning loop on one model.
type Trainer struct {
	model *Model
	cfg   TrainConfig
	state State
}

func NewTrainer(m *Model, cfg TrainConfig) (*Trainer, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidConfig)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeOnline
	}
	if cfg.Mode != ModeOnline && cfg.Mode != ModeRestart {
		return nil, fmt.Errorf("%w: unknown training mode %q", ErrInvalidConfig, cfg.Mode)
	}
	switch cfg.SystemMode {
	case "":
		cfg.SystemMode = SystemPerPair
	case SystemPerPair, SystemGrowing, SystemSingleRow:
	default:
		return nil, fmt.Errorf("%w: unknown system mode %q", ErrInvalidConfig, cfg.SystemMode)
	}
	if cfg.InitialK == 0 {
		cfg.InitialK = DefaultInitialK
	}
	if cfg.IncreaseFactor == 0 {
		cfg.IncreaseFactor = DefaultIncreaseFactor
	}
	if cfg.DecreaseFactor == 0 {
		cfg.DecreaseFactor = DefaultDecreaseFactor
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if _, err := NewStepSizeController(cfg.InitialK, cfg.IncreaseFactor, cfg.DecreaseFactor, cfg.Window); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Workers > 1 && cfg.Mode != ModeRestart {
		return nil, fmt.Errorf("%w: parallel workers require %s mode", ErrInvalidConfig, ModeRestart)
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	return &Trainer{model: m, cfg: cfg, state: StateIdle}, nil
}

func (t *Trainer) Model() *Model { return t.model }

func (t *Trainer) Config() TrainConfig { return t.cfg }

// State is the controller state after the last call to LearnHybridOnline.
func (t *Trainer) State() State { return t.state }

// LearnHybridOnline trains on every pair in order. Each pair runs until its
// squared error is at most tolerance or maxEpochs epochs have run; neither
// outcome is an error. Every pair is validated before the model is touched.
func (t *Trainer) LearnHybridOnline(ctx context.Context, data []Pair, tolerance float64, maxEpochs int) (Report, error) {
	if maxEpochs < 1 {
		return Report{}, fmt.Errorf("%w: max epochs %d must be positive", ErrInvalidConfig, maxEpochs)
	}
	if !(tolerance >= 0) || math.IsInf(tolerance, 0) {
		return Report{}, fmt.Errorf("%w: tolerance %v", ErrInvalidConfig, tolerance)
	}
	for i, p := range data {
		if err := t.model.checkFeatures(p.Features); err != nil {
			return Report{}, fmt.Errorf("pair %d: %w", i, err)
		}
		if math.IsNaN(p.Target) || math.IsInf(p.Target, 0) {
			return Report{}, fmt.Errorf("pair %d: %w: target is not finite", i, ErrInputSize)
		}
	}

	started := time.Now()
	t.state = StateForEachPair
	var (
		pairs []PairReport
		err   error
	)
	if t.cfg.Mode == ModeRestart && t.cfg.Workers > 1 && len(data) > 1 {
		pairs, err = t.trainParallel(ctx, data, tolerance, maxEpochs)
	} else {
		pairs, err = t.trainSequential(ctx, data, tolerance, maxEpochs)
	}
	if err != nil {
		return Report{}, err
	}

	report := Report{Pairs: pairs, Elapsed: time.Since(started)}
	for _, p := range pairs {
		if p.Converged {
			report.Converged++
		} else {
			report.Exhausted++
		}
	}
	t.state = StateDone
	return report, nil
}

func (t *Trainer) trainSequential(ctx context.Context, data []Pair, tolerance float64, maxEpochs int) ([]PairReport, error) {
	pairs := make([]PairReport, 0, len(data))
	for i, p := range data {
		if t.cfg.Mode == ModeRestart {
			if err := restartModel(t.model); err != nil {
				return nil, err
			}
		}
		t.state = StateForEachEpoch
		report, err := t.trainPair(ctx, t.model, i, p, tolerance, maxEpochs)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		t.state = report.State
		t.cfg.Observer.OnPair(report)
		pairs = append(pairs, report)
		t.state = StateForEachPair
	}
	return pairs, nil
}

func (t *Trainer) trainParallel(ctx context.Context, data []Pair, tolerance float64, maxEpochs int) ([]PairReport, error) {
	type job struct {
		idx  int
		pair Pair
	}
	type result struct {
		idx    int
		report PairReport
		final  *Model
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(data))

	workerCount := t.cfg.Workers
	if workerCount > len(data) {
		workerCount = len(data)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		worker := t.model.Clone()
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				if err := restartModel(worker); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				report, err := t.trainPair(ctx, worker, j.idx, j.pair, tolerance, maxEpochs)
				if err != nil {
					results <- result{idx: j.idx, err: fmt.Errorf("pair %d: %w", j.idx, err)}
					continue
				}
				t.cfg.Observer.OnPair(report)
				res := result{idx: j.idx, report: report}
				if j.idx == len(data)-1 {
					res.final = worker.Clone()
				}
				results <- res
			}
		}()
	}

	for i := range data {
		jobs <- job{idx: i, pair: data[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	pairs := make([]PairReport, len(data))
	var final *Model
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		pairs[res.idx] = res.report
		if res.final != nil {
			final = res.final
		}
	}
	if final != nil {
		t.model.assign(final)
	}
	return pairs, nil
}

func restartModel(m *Model) error {
	m.ResetPremises()
	return m.ResetConsequents()
}

// trainPair runs the epoch loop of one pair on m.
func (t *Trainer) trainPair(ctx context.Context, m *Model, idx int, p Pair, tolerance float64, maxEpochs int) (PairReport, error) {
	started := time.Now()
	ctrl, err := NewStepSizeController(t.cfg.InitialK, t.cfg.IncreaseFactor, t.cfg.DecreaseFactor, t.cfg.Window)
	if err != nil {
		return PairReport{}, err
	}

	report := PairReport{Index: idx, State: StateEpochExhausted}
	for epoch := 1; epoch <= maxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return PairReport{}, err
		}
		layers, err := m.ForwardPass(p.Features, p.Target, t.cfg.SystemMode.modeFor(epoch))
		if err != nil {
			return PairReport{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		diff := p.Target - layers.L5
		sqErr := diff * diff

		report.Epochs = epoch
		report.Error = sqErr
		report.Prediction = layers.L5
		report.StepSize = ctrl.K()
		t.cfg.Observer.OnEpoch(EpochEvent{
			Pair:       idx,
			Epoch:      epoch,
			StepSize:   ctrl.K(),
			Error:      sqErr,
			Prediction: layers.L5,
			Elapsed:    time.Since(started),
		})

		if sqErr <= tolerance {
			report.Converged = true
			report.State = StateConverged
			break
		}
		if _, err := m.BackwardPass(p.Features, p.Target, layers, ctrl.K()); err != nil {
			return PairReport{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if !t.cfg.FixedStep {
			ctrl.Observe(sqErr)
		}
	}
	report.Elapsed = time.Since(started)
	return report, nil
}
