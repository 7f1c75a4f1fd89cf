package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const ErrorCurveFile = "error_curve.csv"

// CurvePoint aggregates the squared error of every pair still running at
// an epoch.
type CurvePoint struct {
	Epoch int     `json:"epoch"`
	Pairs int     `json:"pairs"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
}

// SplitEpochLog cuts a run's epoch log into one error series per pair.
// Pairs are written as contiguous blocks, each starting at epoch 1.
func SplitEpochLog(rows []EpochRow) [][]float64 {
	var (
		series  [][]float64
		current []float64
	)
	for _, row := range rows {
		if row.Epoch == 1 && len(current) > 0 {
			series = append(series, current)
			current = nil
		}
		current = append(current, row.Error)
	}
	if len(current) > 0 {
		series = append(series, current)
	}
	return series
}

func BuildErrorCurve(series [][]float64) []CurvePoint {
	points := make([]CurvePoint, 0, 16)
	for epoch := 0; ; epoch++ {
		values := make([]float64, 0, len(series))
		for _, s := range series {
			if epoch < len(s) {
				values = append(values, s[epoch])
			}
		}
		if len(values) == 0 {
			break
		}
		mean, _ := avgStd(values)
		points = append(points, CurvePoint{
			Epoch: epoch + 1,
			Pairs: len(values),
			Mean:  mean,
			Max:   maxFloat(values),
		})
	}
	return points
}

func WriteErrorCurve(runDir string, points []CurvePoint) error {
	f, err := os.Create(filepath.Join(runDir, ErrorCurveFile))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "pairs", "mean_error", "max_error"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := w.Write([]string{
			strconv.Itoa(p.Epoch),
			strconv.Itoa(p.Pairs),
			strconv.FormatFloat(p.Mean, 'g', -1, 64),
			strconv.FormatFloat(p.Max, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func ReadErrorCurve(baseDir, runID string) ([]CurvePoint, bool, error) {
	f, err := os.Open(filepath.Join(baseDir, runID, ErrorCurveFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, false, err
	}
	points := make([]CurvePoint, 0, len(records))
	for i, record := range records {
		if i == 0 {
			continue
		}
		if len(record) != 4 {
			return nil, false, fmt.Errorf("error curve line %d: expected 4 columns, got %d", i+1, len(record))
		}
		epoch, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		pairs, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, false, err
		}
		mean, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		peak, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, false, err
		}
		points = append(points, CurvePoint{Epoch: epoch, Pairs: pairs, Mean: mean, Max: peak})
	}
	return points, true, nil
}
