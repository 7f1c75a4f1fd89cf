package anfis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"anfis/internal/dataset"
	"anfis/internal/fuzzy"
	"anfis/internal/hybrid"
	"anfis/internal/model"
	"anfis/internal/stats"
	"anfis/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "anfis.db"

	defaultDataset   = "xor"
	defaultMFs       = 2
	defaultTolerance = 1e-3
	defaultMaxEpochs = 100
	defaultRunsLimit = 20

	checkpointFile = "checkpoint.json"
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	// Logger receives training progress; nil disables it.
	Logger *logrus.Logger
}

type Client struct {
	store storage.Store

	mu          sync.Mutex
	initialized bool

	runsDir    string
	exportsDir string
	logger     *logrus.Logger
}

type TrainRequest struct {
	// Dataset is a built-in dataset name or a CSV path. Ignored when Pairs
	// is set.
	Dataset      string
	TargetColumn string
	Pairs        []hybrid.Pair

	// Resume continues training from a stored checkpoint; the topology
	// fields below are then ignored.
	Resume string

	MFs        int
	Premise    string
	Consequent string
	TNorm      string
	Init       string
	Lambda     float64
	Gamma      float64
	Seed       int64

	Mode       string
	SystemMode string

	// Tolerance is the squared error at which a pair converges; nil uses
	// 1e-3 and zero asks for an exact fit.
	Tolerance *float64

	MaxEpochs int
	InitialK  float64
	FixedStep bool
	Workers   int
}

type TrainSummary struct {
	RunID        string
	CheckpointID string
	ArtifactsDir string
	Pairs        int
	Converged    int
	Exhausted    int
	MeanError    float64
	MaxError     float64
	ErrorSeries  []float64
}

type PredictRequest struct {
	// CheckpointID and RunID are alternatives; Latest picks the newest run.
	CheckpointID string
	RunID        string
	Latest       bool
	Inputs       [][]float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CheckpointID string
	CreatedAtUTC string
	Dataset      string
	Mode         string
	Pairs        int
	Converged    int
	MeanError    float64
}

type RunDetail struct {
	Record  model.RunRecord
	Config  stats.RunConfig
	Summary stats.RunSummary
	// ErrorSeries is the final squared error of every pair, in pair order.
	ErrorSeries []float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ScoreRequest struct {
	RunID        string
	Latest       bool
	Dataset      string
	TargetColumn string
	Seed         int64
	// Centers and Symbols, when set, map every prediction and target to its
	// nearest symbol and add a symbol error rate to the score.
	Centers []float64
	Symbols []string
}

type ScoreSummary struct {
	RunID           string
	Pairs           int
	MeanSquared     float64
	SymbolErrorRate *float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
		logger:     opts.Logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.MFs == 0 && req.Resume == "" {
		req.MFs = defaultMFs
	}
	tolerance := defaultTolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}
	if req.MaxEpochs <= 0 {
		req.MaxEpochs = defaultMaxEpochs
	}
	if req.Mode == "" {
		req.Mode = string(hybrid.ModeOnline)
	}
	if req.SystemMode == "" {
		req.SystemMode = string(hybrid.SystemPerPair)
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}

	pairs := req.Pairs
	datasetName := req.Dataset
	if pairs == nil {
		if datasetName == "" {
			datasetName = defaultDataset
		}
		var err error
		pairs, err = dataset.Load(datasetName, req.TargetColumn, req.Seed)
		if err != nil {
			return TrainSummary{}, err
		}
	} else if datasetName == "" {
		datasetName = "inline"
	}
	if len(pairs) == 0 {
		return TrainSummary{}, dataset.ErrEmptyDataset
	}

	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}

	m, err := c.trainingModel(ctx, req, len(pairs[0].Features))
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	checkpointID := uuid.NewString()
	runDir := filepath.Join(c.runsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return TrainSummary{}, err
	}
	logFile, err := os.Create(filepath.Join(runDir, stats.EpochLogFile))
	if err != nil {
		return TrainSummary{}, err
	}

	epochLog := newEpochLogObserver(stats.NewEpochLogWriter(logFile))
	observers := hybrid.MultiObserver{epochLog}
	if c.logger != nil {
		observers = append(observers, hybrid.NewLogObserver(c.logger))
	}
	trainer, err := hybrid.NewTrainer(m, hybrid.TrainConfig{
		Mode:       hybrid.Mode(req.Mode),
		SystemMode: hybrid.SystemMode(req.SystemMode),
		InitialK:   req.InitialK,
		FixedStep:  req.FixedStep,
		Workers:    req.Workers,
		Observer:   observers,
	})
	if err != nil {
		_ = logFile.Close()
		_ = os.RemoveAll(runDir)
		return TrainSummary{}, err
	}

	now := time.Now().UTC()
	report, err := trainer.LearnHybridOnline(ctx, pairs, tolerance, req.MaxEpochs)
	closeErr := logFile.Close()
	if err != nil {
		_ = os.RemoveAll(runDir)
		return TrainSummary{}, err
	}
	if err := errors.Join(epochLog.Err(), closeErr); err != nil {
		return TrainSummary{}, fmt.Errorf("write epoch log: %w", err)
	}
	rows, err := stats.ReadEpochLog(filepath.Join(runDir, stats.EpochLogFile))
	if err != nil {
		return TrainSummary{}, err
	}
	if err := stats.WriteErrorCurve(runDir, stats.BuildErrorCurve(stats.SplitEpochLog(rows))); err != nil {
		return TrainSummary{}, err
	}

	checkpoint := trainer.Model().Checkpoint()
	checkpoint.VersionedRecord = storage.CurrentVersion()
	checkpoint.ID = checkpointID
	checkpoint.CreatedAt = now
	if err := c.store.SaveCheckpoint(ctx, checkpoint); err != nil {
		return TrainSummary{}, err
	}
	encoded, err := storage.EncodeCheckpoint(checkpoint)
	if err != nil {
		return TrainSummary{}, err
	}
	if err := os.WriteFile(filepath.Join(runDir, checkpointFile), append(encoded, '\n'), 0o644); err != nil {
		return TrainSummary{}, err
	}

	summaries := make([]stats.PairSummary, 0, len(report.Pairs))
	records := make([]model.PairRecord, 0, len(report.Pairs))
	for _, p := range report.Pairs {
		summaries = append(summaries, stats.PairSummary{
			Index:      p.Index,
			Epochs:     p.Epochs,
			StepSize:   p.StepSize,
			Error:      p.Error,
			Seconds:    p.Elapsed.Seconds(),
			Prediction: p.Prediction,
			Target:     pairs[p.Index].Target,
			Converged:  p.Converged,
		})
		records = append(records, model.PairRecord{
			Index:      p.Index,
			Epochs:     p.Epochs,
			Error:      p.Error,
			StepSize:   p.StepSize,
			Prediction: p.Prediction,
			ElapsedMS:  p.Elapsed.Milliseconds(),
			Converged:  p.Converged,
		})
	}
	summary := stats.Summarize(summaries)

	cfg := trainer.Model().Config()
	if _, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			CheckpointID: checkpointID,
			Dataset:      datasetName,
			MFs:          cfg.MFs,
			Inputs:       cfg.Inputs,
			Premise:      cfg.Premise,
			Consequent:   cfg.Consequent,
			TNorm:        string(cfg.TNorm),
			Init:         cfg.Init,
			Lambda:       cfg.Lambda,
			Gamma:        cfg.Gamma,
			Mode:         req.Mode,
			SystemMode:   req.SystemMode,
			Tolerance:    tolerance,
			MaxEpochs:    req.MaxEpochs,
			InitialK:     trainer.Config().InitialK,
			FixedStep:    req.FixedStep,
			Workers:      req.Workers,
			Seed:         cfg.Seed,
		},
		Pairs:   summaries,
		Summary: summary,
	}); err != nil {
		return TrainSummary{}, err
	}

	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		CheckpointID:    checkpointID,
		Dataset:         datasetName,
		Mode:            req.Mode,
		SystemMode:      req.SystemMode,
		Tolerance:       tolerance,
		MaxEpochs:       req.MaxEpochs,
		Workers:         req.Workers,
		Pairs:           records,
		Converged:       report.Converged,
		Exhausted:       report.Exhausted,
		MeanError:       summary.MeanError,
		ElapsedMS:       report.Elapsed.Milliseconds(),
		CreatedAt:       now,
	}); err != nil {
		return TrainSummary{}, err
	}

	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        runID,
		CheckpointID: checkpointID,
		Dataset:      datasetName,
		Mode:         req.Mode,
		Pairs:        len(report.Pairs),
		Converged:    report.Converged,
		MeanError:    summary.MeanError,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	}); err != nil {
		return TrainSummary{}, err
	}

	series := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		series = append(series, s.Error)
	}
	return TrainSummary{
		RunID:        runID,
		CheckpointID: checkpointID,
		ArtifactsDir: filepath.Clean(runDir),
		Pairs:        summary.Pairs,
		Converged:    summary.Converged,
		Exhausted:    summary.Exhausted,
		MeanError:    summary.MeanError,
		MaxError:     summary.MaxError,
		ErrorSeries:  series,
	}, nil
}

// Predict evaluates every input row on a trained network.
func (c *Client) Predict(ctx context.Context, req PredictRequest) ([]float64, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("predict requires at least one input row")
	}
	m, err := c.loadModel(ctx, req.CheckpointID, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(req.Inputs))
	for i, in := range req.Inputs {
		layers, err := m.Predict(in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, layers.L5)
	}
	return out, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CheckpointID: e.CheckpointID,
			CreatedAtUTC: e.CreatedAtUTC,
			Dataset:      e.Dataset,
			Mode:         e.Mode,
			Pairs:        e.Pairs,
			Converged:    e.Converged,
			MeanError:    e.MeanError,
		})
	}
	return out, nil
}

// Run returns a stored run with its artifacts. The record comes from the
// store when present there and is rebuilt from the artifacts otherwise.
func (c *Client) Run(ctx context.Context, runID string) (RunDetail, error) {
	if runID == "" {
		return RunDetail{}, errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunDetail{}, err
	}

	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	record, stored, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok && !stored {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	summary, _, err := stats.ReadRunSummary(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !stored {
		pairs, _, err := stats.ReadPairSummaries(c.runsDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
		record = runRecordFromArtifacts(cfg, pairs, summary)
	}
	series, _, err := stats.ReadErrorSeries(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Record: record, Config: cfg, Summary: summary, ErrorSeries: series}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		latest, err := c.latestRun()
		if err != nil {
			return ExportSummary{}, err
		}
		runID = latest.RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	if data, err := os.ReadFile(filepath.Join(c.runsDir, runID, checkpointFile)); err == nil {
		if err := os.WriteFile(filepath.Join(exportedDir, checkpointFile), data, 0o644); err != nil {
			return ExportSummary{}, err
		}
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Score replays a dataset through a trained network.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (ScoreSummary, error) {
	if req.RunID != "" && req.Latest {
		return ScoreSummary{}, errors.New("use either run id or latest")
	}
	runID := req.RunID
	if req.Latest || runID == "" {
		latest, err := c.latestRun()
		if err != nil {
			return ScoreSummary{}, err
		}
		runID = latest.RunID
	}
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return ScoreSummary{}, err
	}
	if !ok {
		return ScoreSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	source := req.Dataset
	if source == "" {
		source = cfg.Dataset
	}
	pairs, err := dataset.Load(source, req.TargetColumn, req.Seed)
	if err != nil {
		return ScoreSummary{}, err
	}

	m, err := c.loadModel(ctx, "", runID, false)
	if err != nil {
		return ScoreSummary{}, err
	}
	predictions := make([]float64, 0, len(pairs))
	squared := 0.0
	for i, p := range pairs {
		layers, err := m.Predict(p.Features)
		if err != nil {
			return ScoreSummary{}, fmt.Errorf("pair %d: %w", i, err)
		}
		predictions = append(predictions, layers.L5)
		squared += math.Pow(p.Target-layers.L5, 2)
	}

	out := ScoreSummary{RunID: runID, Pairs: len(pairs), MeanSquared: squared / float64(len(pairs))}
	if len(req.Centers) > 0 || len(req.Symbols) > 0 {
		lookup, err := stats.NearestSymbol(req.Centers, req.Symbols)
		if err != nil {
			return ScoreSummary{}, err
		}
		expected := make([]string, 0, len(pairs))
		for _, p := range pairs {
			expected = append(expected, lookup(p.Target))
		}
		rate, err := stats.ErrorRate(expected, predictions, lookup)
		if err != nil {
			return ScoreSummary{}, err
		}
		out.SymbolErrorRate = &rate
	}
	return out, nil
}

func (c *Client) trainingModel(ctx context.Context, req TrainRequest, inputs int) (*hybrid.Model, error) {
	if req.Resume != "" {
		m, err := c.loadModel(ctx, req.Resume, "", false)
		if err != nil {
			return nil, err
		}
		if m.Config().Inputs != inputs {
			return nil, fmt.Errorf("%w: checkpoint %s expects %d inputs, dataset has %d", hybrid.ErrInputSize, req.Resume, m.Config().Inputs, inputs)
		}
		return m, nil
	}
	return hybrid.New(hybrid.Config{
		MFs:        req.MFs,
		Inputs:     inputs,
		Premise:    req.Premise,
		Consequent: req.Consequent,
		TNorm:      fuzzy.TNorm(req.TNorm),
		Lambda:     req.Lambda,
		Gamma:      req.Gamma,
		Init:       req.Init,
		Seed:       req.Seed,
	})
}

// loadModel finds a checkpoint in the store first and falls back to the
// copy written next to the run artifacts.
func (c *Client) loadModel(ctx context.Context, checkpointID, runID string, latest bool) (*hybrid.Model, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	if checkpointID != "" && (runID != "" || latest) {
		return nil, errors.New("use either checkpoint id, run id or latest")
	}
	if checkpointID == "" {
		if latest {
			entry, err := c.latestRun()
			if err != nil {
				return nil, err
			}
			runID = entry.RunID
		}
		if runID == "" {
			return nil, errors.New("checkpoint id, run id or latest is required")
		}
		cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
		if ok {
			checkpointID = cfg.CheckpointID
		} else if record, stored, err := c.store.GetRun(ctx, runID); err != nil {
			return nil, err
		} else if stored {
			checkpointID = record.CheckpointID
		} else {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
	}

	checkpoint, ok, err := c.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if runID == "" {
			runID, err = c.runForCheckpoint(checkpointID)
			if err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(filepath.Join(c.runsDir, runID, checkpointFile))
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", checkpointID, err)
		}
		checkpoint, err = storage.DecodeCheckpoint(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", checkpointID, err)
		}
	}
	return hybrid.Restore(checkpoint)
}

func (c *Client) runForCheckpoint(checkpointID string) (string, error) {
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.CheckpointID == checkpointID {
			return e.RunID, nil
		}
	}
	return "", fmt.Errorf("checkpoint not found: %s", checkpointID)
}

func (c *Client) latestRun() (stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return stats.RunIndexEntry{}, err
	}
	if len(entries) == 0 {
		return stats.RunIndexEntry{}, errors.New("no runs available")
	}
	return entries[0], nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func runRecordFromArtifacts(cfg stats.RunConfig, pairs []stats.PairSummary, summary stats.RunSummary) model.RunRecord {
	records := make([]model.PairRecord, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, model.PairRecord{
			Index:      p.Index,
			Epochs:     p.Epochs,
			Error:      p.Error,
			StepSize:   p.StepSize,
			Prediction: p.Prediction,
			ElapsedMS:  int64(p.Seconds * 1000),
			Converged:  p.Converged,
		})
	}
	return model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              cfg.RunID,
		CheckpointID:    cfg.CheckpointID,
		Dataset:         cfg.Dataset,
		Mode:            cfg.Mode,
		SystemMode:      cfg.SystemMode,
		Tolerance:       cfg.Tolerance,
		MaxEpochs:       cfg.MaxEpochs,
		Workers:         cfg.Workers,
		Pairs:           records,
		Converged:       summary.Converged,
		Exhausted:       summary.Exhausted,
		MeanError:       summary.MeanError,
		ElapsedMS:       int64(summary.Seconds * 1000),
	}
}
