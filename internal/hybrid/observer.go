package hybrid

import (
	"time"

	"github.com/sirupsen/logrus"
)

// EpochEvent describes one finished epoch of one pair.
type EpochEvent struct {
	Pair       int
	Epoch      int
	StepSize   float64
	Error      float64
	Prediction float64
	Elapsed    time.Duration
}

// Observer receives training progress. Implementations must be safe for
// concurrent use when the trainer runs more than one worker.
type Observer interface {
	OnEpoch(EpochEvent)
	OnPair(PairReport)
}

type NopObserver struct{}

func (NopObserver) OnEpoch(EpochEvent) {}

func (NopObserver) OnPair(PairReport) {}

// LogObserver logs epochs at debug level and finished pairs at info level.
type LogObserver struct {
	Logger *logrus.Logger
}

func NewLogObserver(logger *logrus.Logger) LogObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return LogObserver{Logger: logger}
}

func (o LogObserver) OnEpoch(ev EpochEvent) {
	if !o.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	o.Logger.WithFields(logrus.Fields{
		"pair":       ev.Pair,
		"epoch":      ev.Epoch,
		"step_size":  ev.StepSize,
		"error":      ev.Error,
		"prediction": ev.Prediction,
		"elapsed":    ev.Elapsed,
	}).Debug("epoch")
}

func (o LogObserver) OnPair(r PairReport) {
	o.Logger.WithFields(logrus.Fields{
		"pair":       r.Index,
		"state":      r.State.String(),
		"epochs":     r.Epochs,
		"error":      r.Error,
		"step_size":  r.StepSize,
		"prediction": r.Prediction,
		"elapsed":    r.Elapsed,
	}).Info("pair finished")
}

// MultiObserver fans events out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnEpoch(ev EpochEvent) {
	for _, o := range m {
		o.OnEpoch(ev)
	}
}

func (m MultiObserver) OnPair(r PairReport) {
	for _, o := range m {
		o.OnPair(r)
	}
}
