package hybrid

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type recordingObserver struct {
	mu     sync.Mutex
	epochs []EpochEvent
	pairs  []PairReport
}

func (o *recordingObserver) OnEpoch(ev EpochEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epochs = append(o.epochs, ev)
}

func (o *recordingObserver) OnPair(r PairReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pairs = append(o.pairs, r)
}

func mustTrainer(t *testing.T, m *Model, cfg TrainConfig) *Trainer {
	t.Helper()
	trainer, err := NewTrainer(m, cfg)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	return trainer
}

func TestLearnHybridOnlineXORTerminates(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2, Premise: "bell2", Consequent: "plogit"})
	trainer := mustTrainer(t, m, TrainConfig{})
	if trainer.State() != StateIdle {
		t.Fatalf("expected idle trainer, got=%s", trainer.State())
	}

	report, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), 1e-3, 10)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if trainer.State() != StateDone {
		t.Fatalf("expected done, got=%s", trainer.State())
	}
	if len(report.Pairs) != 4 || report.Converged+report.Exhausted != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for i, p := range report.Pairs {
		if p.Index != i || p.Epochs < 1 || p.Epochs > 10 {
			t.Fatalf("pair %d: unexpected epochs %+v", i, p)
		}
		if math.IsNaN(p.Prediction) || math.IsInf(p.Prediction, 0) || math.IsNaN(p.Error) {
			t.Fatalf("pair %d: non-finite result %+v", i, p)
		}
		if p.Converged != (p.State == StateConverged) {
			t.Fatalf("pair %d: converged flag disagrees with state %+v", i, p)
		}
		if !p.Converged && (p.State != StateEpochExhausted || p.Epochs != 10) {
			t.Fatalf("pair %d: expected exhaustion at the epoch cap %+v", i, p)
		}
	}
	for _, p := range xorPairs() {
		layers, err := m.Predict(p.Features)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if math.IsNaN(layers.L5) || math.IsInf(layers.L5, 0) {
			t.Fatalf("non-finite prediction for %v", p.Features)
		}
	}
}

func TestLearnHybridOnlineConvergesOnFirstEpoch(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2, Lambda: 1, Gamma: 1e6})
	trainer := mustTrainer(t, m, TrainConfig{})
	report, err := trainer.LearnHybridOnline(context.Background(), []Pair{{Features: []float64{0.3, 0.8}, Target: 1}}, 1e-4, 50)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	p := report.Pairs[0]
	if !p.Converged || p.State != StateConverged || p.Epochs != 1 || report.Converged != 1 {
		t.Fatalf("expected convergence on first epoch: %+v", p)
	}
}

func TestLearnHybridOnlineReportsExhaustion(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	trainer := mustTrainer(t, m, TrainConfig{})
	report, err := trainer.LearnHybridOnline(context.Background(), []Pair{{Features: []float64{0, 1}, Target: 1}}, 0, 3)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	p := report.Pairs[0]
	if p.Converged || p.State != StateEpochExhausted || p.Epochs != 3 || report.Exhausted != 1 {
		t.Fatalf("expected exhaustion after 3 epochs: %+v", p)
	}
	if p.Error <= 0 || math.IsNaN(p.Error) {
		t.Fatalf("expected last error to be reported, got=%v", p.Error)
	}
}

func TestExhaustedPairStillStepsPremises(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	before := m.PremiseParams()
	trainer := mustTrainer(t, m, TrainConfig{})

	report, err := trainer.LearnHybridOnline(context.Background(), []Pair{{Features: []float64{0.3, 0.7}, Target: 5}}, 0, 1)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if report.Pairs[0].State != StateEpochExhausted {
		t.Fatalf("expected exhaustion after one epoch: %+v", report.Pairs[0])
	}
	after := m.PremiseParams()
	changed := false
	for row := range before {
		for k := range before[row] {
			if after[row][k] != before[row][k] {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatal("expected the last epoch of an exhausted pair to update the premises")
	}
}

func TestSystemModesControlSystemSize(t *testing.T) {
	cases := []struct {
		mode SystemMode
		rows func(Report) int
	}{
		{SystemPerPair, func(Report) int { return 4 }},
		{SystemSingleRow, func(Report) int { return 1 }},
		{SystemGrowing, func(r Report) int {
			total := 0
			for _, p := range r.Pairs {
				total += p.Epochs
			}
			return total
		}},
	}
	for _, tc := range cases {
		m := mustModel(t, Config{MFs: 2, Inputs: 2})
		trainer := mustTrainer(t, m, TrainConfig{SystemMode: tc.mode})
		report, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), 0, 5)
		if err != nil {
			t.Fatalf("%s: learn: %v", tc.mode, err)
		}
		if want := tc.rows(report); m.SystemRows() != want {
			t.Fatalf("%s: expected %d system rows, got=%d", tc.mode, want, m.SystemRows())
		}
	}
}

func TestLearnHybridOnlineValidatesBeforeMutating(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	before := m.PremiseParams()
	trainer := mustTrainer(t, m, TrainConfig{})

	data := xorPairs()
	data[2].Features = []float64{1}
	if _, err := trainer.LearnHybridOnline(context.Background(), data, 0, 5); !errors.Is(err, ErrInputSize) {
		t.Fatalf("expected input size error, got=%v", err)
	}
	if m.SystemRows() != 0 {
		t.Fatalf("invalid data mutated the estimator, rows=%d", m.SystemRows())
	}
	after := m.PremiseParams()
	for row := range before {
		for k := range before[row] {
			if after[row][k] != before[row][k] {
				t.Fatal("invalid data mutated the premises")
			}
		}
	}

	data = xorPairs()
	data[0].Target = math.NaN()
	if _, err := trainer.LearnHybridOnline(context.Background(), data, 0, 5); !errors.Is(err, ErrInputSize) {
		t.Fatalf("expected non-finite target error, got=%v", err)
	}
	if _, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), 0, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid epoch cap, got=%v", err)
	}
	if _, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), -1, 5); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid tolerance, got=%v", err)
	}
}

func TestNewTrainerValidation(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	if _, err := NewTrainer(m, TrainConfig{Workers: 4}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected online parallel rejection, got=%v", err)
	}
	if _, err := NewTrainer(m, TrainConfig{Mode: "batch"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected unknown mode, got=%v", err)
	}
	if _, err := NewTrainer(m, TrainConfig{SystemMode: "sliding"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected unknown system mode, got=%v", err)
	}
	if _, err := NewTrainer(m, TrainConfig{IncreaseFactor: 2}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid increase factor, got=%v", err)
	}
	if _, err := NewTrainer(nil, TrainConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected nil model rejection, got=%v", err)
	}
	trainer := mustTrainer(t, m, TrainConfig{Mode: ModeRestart, Workers: 4})
	cfg := trainer.Config()
	if cfg.SystemMode != SystemPerPair || cfg.InitialK != DefaultInitialK || cfg.Window != DefaultWindow {
		t.Fatalf("unexpected trainer defaults: %+v", cfg)
	}
}

func TestRestartModeParallelMatchesSequential(t *testing.T) {
	run := func(workers int) (Report, *Model) {
		m := mustModel(t, Config{MFs: 2, Inputs: 2})
		trainer := mustTrainer(t, m, TrainConfig{Mode: ModeRestart, Workers: workers})
		report, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), 1e-3, 8)
		if err != nil {
			t.Fatalf("workers=%d learn: %v", workers, err)
		}
		return report, m
	}

	seqReport, seqModel := run(1)
	parReport, parModel := run(3)
	for i := range seqReport.Pairs {
		s, p := seqReport.Pairs[i], parReport.Pairs[i]
		if s.Index != p.Index || s.Epochs != p.Epochs || s.Error != p.Error || s.Prediction != p.Prediction || s.State != p.State {
			t.Fatalf("pair %d differs: sequential=%+v parallel=%+v", i, s, p)
		}
	}
	if seqModel.SystemRows() != parModel.SystemRows() {
		t.Fatalf("final system differs: %d vs %d", seqModel.SystemRows(), parModel.SystemRows())
	}
	seqX, parX := seqModel.ConsequentParams(), parModel.ConsequentParams()
	for i := range seqX {
		if seqX[i] != parX[i] {
			t.Fatalf("final consequent params differ at %d", i)
		}
	}
}

func TestRestartModeIsolatesPairs(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	trainer := mustTrainer(t, m, TrainConfig{Mode: ModeRestart})
	data := []Pair{{Features: []float64{0, 1}, Target: 1}, {Features: []float64{0, 1}, Target: 1}}
	report, err := trainer.LearnHybridOnline(context.Background(), data, 0, 4)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	a, b := report.Pairs[0], report.Pairs[1]
	if a.Error != b.Error || a.Prediction != b.Prediction {
		t.Fatalf("identical pairs trained differently in restart mode: %+v vs %+v", a, b)
	}
	if m.SystemRows() != 1 {
		t.Fatalf("expected fresh system per pair, rows=%d", m.SystemRows())
	}
}

func TestLearnHybridOnlineHonorsCancellation(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	trainer := mustTrainer(t, m, TrainConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.LearnHybridOnline(ctx, xorPairs(), 0, 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got=%v", err)
	}
}

func TestObserverSeesEveryEpochAndPair(t *testing.T) {
	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	obs := &recordingObserver{}
	trainer := mustTrainer(t, m, TrainConfig{Observer: obs})
	report, err := trainer.LearnHybridOnline(context.Background(), xorPairs(), 0, 3)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if len(obs.pairs) != len(report.Pairs) {
		t.Fatalf("expected %d pair events, got=%d", len(report.Pairs), len(obs.pairs))
	}
	if len(obs.epochs) != 12 {
		t.Fatalf("expected 12 epoch events, got=%d", len(obs.epochs))
	}
	if obs.epochs[0].Pair != 0 || obs.epochs[0].Epoch != 1 || obs.epochs[11].Pair != 3 || obs.epochs[11].Epoch != 3 {
		t.Fatalf("unexpected epoch ordering: first=%+v last=%+v", obs.epochs[0], obs.epochs[11])
	}
}

func TestLogObserverWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	m := mustModel(t, Config{MFs: 2, Inputs: 2})
	trainer := mustTrainer(t, m, TrainConfig{Observer: NewLogObserver(logger)})
	if _, err := trainer.LearnHybridOnline(context.Background(), xorPairs()[:1], 0, 2); err != nil {
		t.Fatalf("learn: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "msg=epoch") || !strings.Contains(out, `msg="pair finished"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "state=epoch_exhausted") {
		t.Fatalf("expected pair state in log output: %s", out)
	}
}
