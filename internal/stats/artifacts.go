package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID        string  `json:"run_id"`
	CheckpointID string  `json:"checkpoint_id,omitempty"`
	Dataset      string  `json:"dataset"`
	MFs          int     `json:"mfs"`
	Inputs       int     `json:"inputs"`
	Premise      string  `json:"premise"`
	Consequent   string  `json:"consequent"`
	TNorm        string  `json:"tnorm"`
	Init         string  `json:"init"`
	Lambda       float64 `json:"lambda"`
	Gamma        float64 `json:"gamma"`
	Mode         string  `json:"mode"`
	SystemMode   string  `json:"system_mode"`
	Tolerance    float64 `json:"tolerance"`
	MaxEpochs    int     `json:"max_epochs"`
	InitialK     float64 `json:"initial_k"`
	FixedStep    bool    `json:"fixed_step"`
	Workers      int     `json:"workers"`
	Seed         int64   `json:"seed"`
}

// PairSummary is the final row of one pair's epoch loop.
type PairSummary struct {
	Index      int     `json:"index"`
	Epochs     int     `json:"epochs"`
	StepSize   float64 `json:"step_size"`
	Error      float64 `json:"error"`
	Seconds    float64 `json:"seconds"`
	Prediction float64 `json:"prediction"`
	Target     float64 `json:"target"`
	Converged  bool    `json:"converged"`
}

type RunSummary struct {
	Pairs     int     `json:"pairs"`
	Converged int     `json:"converged"`
	Exhausted int     `json:"exhausted"`
	MeanError float64 `json:"mean_error"`
	StdError  float64 `json:"std_error"`
	MaxError  float64 `json:"max_error"`
	MeanEpoch float64 `json:"mean_epochs"`
	Seconds   float64 `json:"seconds"`
}

type RunArtifacts struct {
	Config  RunConfig     `json:"config"`
	Pairs   []PairSummary `json:"pairs"`
	Summary RunSummary    `json:"summary"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	CheckpointID string  `json:"checkpoint_id,omitempty"`
	Dataset      string  `json:"dataset"`
	Mode         string  `json:"mode"`
	Pairs        int     `json:"pairs"`
	Converged    int     `json:"converged"`
	MeanError    float64 `json:"mean_error"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// Summarize aggregates pair results.
func Summarize(pairs []PairSummary) RunSummary {
	out := RunSummary{Pairs: len(pairs)}
	if len(pairs) == 0 {
		return out
	}
	errs := make([]float64, 0, len(pairs))
	epochs := 0
	for _, p := range pairs {
		if p.Converged {
			out.Converged++
		} else {
			out.Exhausted++
		}
		errs = append(errs, p.Error)
		epochs += p.Epochs
		out.Seconds += p.Seconds
	}
	out.MeanError, out.StdError = avgStd(errs)
	out.MaxError = maxFloat(errs)
	out.MeanEpoch = float64(epochs) / float64(len(pairs))
	return out
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "pairs.json"), artifacts.Pairs); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := WriteErrorSeries(runDir, artifacts.Pairs); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "pairs.json", "summary.json", "error_series.csv"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{EpochLogFile, ErrorCurveFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadPairSummaries(baseDir, runID string) ([]PairSummary, bool, error) {
	var pairs []PairSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, "pairs.json"), &pairs)
	return pairs, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, "summary.json"), &summary)
	return summary, ok, err
}

// WriteErrorSeries writes the final squared error of every pair as CSV.
func WriteErrorSeries(runDir string, pairs []PairSummary) error {
	path := filepath.Join(runDir, "error_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"pair", "epochs", "error"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{
			strconv.Itoa(p.Index),
			strconv.Itoa(p.Epochs),
			strconv.FormatFloat(p.Error, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadErrorSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "error_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 3 {
		return nil, false, fmt.Errorf("error series header must have at least 3 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 3 {
			return nil, false, fmt.Errorf("error series row must have at least 3 columns")
		}
		value, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

func maxFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
