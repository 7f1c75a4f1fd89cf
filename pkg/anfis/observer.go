package anfis

import (
	"sync"

	"anfis/internal/hybrid"
	"anfis/internal/stats"
)

// epochLogObserver buffers epoch rows per pair and writes them as one block
// when the pair finishes, so parallel workers never interleave rows.
type epochLogObserver struct {
	writer *stats.EpochLogWriter

	mu      sync.Mutex
	pending map[int][]stats.EpochRow
	err     error
}

func newEpochLogObserver(w *stats.EpochLogWriter) *epochLogObserver {
	return &epochLogObserver{writer: w, pending: make(map[int][]stats.EpochRow)}
}

func (o *epochLogObserver) OnEpoch(ev hybrid.EpochEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[ev.Pair] = append(o.pending[ev.Pair], stats.EpochRow{
		Epoch:      ev.Epoch,
		StepSize:   ev.StepSize,
		Error:      ev.Error,
		Seconds:    ev.Elapsed.Seconds(),
		Prediction: ev.Prediction,
	})
}

func (o *epochLogObserver) OnPair(r hybrid.PairReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rows := o.pending[r.Index]
	delete(o.pending, r.Index)
	for _, row := range rows {
		if err := o.writer.Write(row); err != nil && o.err == nil {
			o.err = err
		}
	}
}

// Err is the first write error seen, if any.
func (o *epochLogObserver) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
