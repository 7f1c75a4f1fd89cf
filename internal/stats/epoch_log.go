package stats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

const EpochLogFile = "epoch_log.tsv"

// EpochRow is one line of the tab-separated training log.
type EpochRow struct {
	Epoch      int
	StepSize   float64
	Error      float64
	Seconds    float64
	Prediction float64
}

// EpochLogWriter writes EpochRows as tab-separated columns, header first.
// It is safe for concurrent use.
type EpochLogWriter struct {
	mu          sync.Mutex
	w           io.Writer
	wroteHeader bool
}

func NewEpochLogWriter(w io.Writer) *EpochLogWriter {
	return &EpochLogWriter{w: w}
}

func (l *EpochLogWriter) Write(row EpochRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.wroteHeader {
		if _, err := fmt.Fprintf(l.w, "%-5s\t%-16s\t%-16s\t%-16s\t%-16s\n", "epoch", "step_size", "error", "time", "prediction"); err != nil {
			return err
		}
		l.wroteHeader = true
	}
	_, err := fmt.Fprintf(l.w, "%-5d\t%16.7f\t%16.9g\t%16.6f\t%16.9g\n",
		row.Epoch, row.StepSize, row.Error, row.Seconds, row.Prediction)
	return err
}

// ReadEpochLog parses a log written by EpochLogWriter.
func ReadEpochLog(path string) ([]EpochRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []EpochRow
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || line == 1 {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 5 {
			return nil, fmt.Errorf("epoch log line %d: expected 5 columns, got %d", line, len(fields))
		}
		values := make([]float64, 5)
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("epoch log line %d column %d: %w", line, i+1, err)
			}
			values[i] = v
		}
		rows = append(rows, EpochRow{
			Epoch:      int(values[0]),
			StepSize:   values[1],
			Error:      values[2],
			Seconds:    values[3],
			Prediction: values[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
