package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"anfis/internal/dataset"
	"anfis/internal/fuzzy"
	"anfis/internal/storage"
	anfisapi "anfis/pkg/anfis"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
	dbPath     = "anfis.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "score":
		return runScore(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "datasets":
		return runDatasets(ctx, args[1:])
	case "functions":
		return runFunctions(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind    *string
	dbPath  *string
	runsDir *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:    fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:  fs.String("db-path", dbPath, "sqlite database path"),
		runsDir: fs.String("runs-dir", runsDir, "run artifacts directory"),
	}
}

func (f storeFlags) client(logger *logrus.Logger) (*anfisapi.Client, error) {
	return anfisapi.New(anfisapi.Options{
		StoreKind:  *f.kind,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *store.kind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	store := addStoreFlags(fs)
	datasetName := fs.String("dataset", "xor", "built-in dataset name or CSV path")
	targetColumn := fs.String("target", "", "CSV target column (default: last column)")
	resume := fs.String("resume", "", "continue training from a stored checkpoint id")
	mfs := fs.Int("mfs", 2, "membership functions per input")
	premise := fs.String("premise", "bell2", "premise family: bell2|bell3")
	consequent := fs.String("consequent", "plogit", "consequent family")
	tnorm := fs.String("tnorm", "product", "t-norm: product|min")
	initName := fs.String("init", "grid", "premise initialization: grid|random")
	lambda := fs.Float64("lambda", 0, "RLS forgetting factor (0 uses 0.9)")
	gamma := fs.Float64("gamma", 0, "initial covariance scale (0 uses 1e4)")
	seed := fs.Int64("seed", 1, "rng seed")
	mode := fs.String("mode", "online", "training mode: online|restart")
	systemMode := fs.String("system-mode", "per_pair", "consequent system mode: per_pair|growing|single_row")
	tolerance := fs.Float64("tolerance", 1e-3, "squared error tolerance per pair")
	maxEpochs := fs.Int("max-epochs", 100, "epoch limit per pair")
	initialK := fs.Float64("initial-k", 0.1, "initial step length")
	fixedStep := fs.Bool("fixed-step", false, "disable step-size adaptation")
	workers := fs.Int("workers", 1, "parallel workers (restart mode only)")
	logLevel := fs.String("log-level", "warn", "training log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	flagValues := map[string]any{
		"dataset":     *datasetName,
		"target":      *targetColumn,
		"resume":      *resume,
		"mfs":         *mfs,
		"premise":     *premise,
		"consequent":  *consequent,
		"tnorm":       *tnorm,
		"init":        *initName,
		"lambda":      *lambda,
		"gamma":       *gamma,
		"seed":        *seed,
		"mode":        *mode,
		"system-mode": *systemMode,
		"tolerance":   *tolerance,
		"max-epochs":  *maxEpochs,
		"initial-k":   *initialK,
		"fixed-step":  *fixedStep,
		"workers":     *workers,
	}
	if *configPath == "" {
		all := make(map[string]bool, len(flagValues))
		for name := range flagValues {
			all[name] = true
		}
		setFlags = all
	}
	if err := overrideFromFlags(&req, setFlags, flagValues); err != nil {
		return err
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	client, err := store.client(logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}

	fmt.Printf("run_id=%s checkpoint_id=%s pairs=%d converged=%d exhausted=%d mean_error=%.9g max_error=%.9g\n",
		summary.RunID,
		summary.CheckpointID,
		summary.Pairs,
		summary.Converged,
		summary.Exhausted,
		summary.MeanError,
		summary.MaxError,
	)
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	store := addStoreFlags(fs)
	checkpointID := fs.String("checkpoint", "", "checkpoint id")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	input := fs.String("input", "", "input rows, values separated by ',' and rows by ';'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *checkpointID == "" && *runID == "" && !*latest {
		return errors.New("predict requires --checkpoint, --run-id or --latest")
	}
	rows, err := parseRows(*input)
	if err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	out, err := client.Predict(ctx, anfisapi.PredictRequest{
		CheckpointID: *checkpointID,
		RunID:        *runID,
		Latest:       *latest,
		Inputs:       rows,
	})
	if err != nil {
		return err
	}
	for i, v := range out {
		fmt.Printf("input=%s output=%.9g\n", formatRow(rows[i]), v)
	}
	return nil
}

func runScore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id (default: latest)")
	datasetName := fs.String("dataset", "", "dataset to score (default: the run's dataset)")
	targetColumn := fs.String("target", "", "CSV target column (default: last column)")
	seed := fs.Int64("seed", 1, "rng seed for sampled datasets")
	symbols := fs.String("symbols", "", "optional symbol map, e.g. 'a=0,e=0.5,i=1'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	centers, names, err := parseSymbols(*symbols)
	if err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	score, err := client.Score(ctx, anfisapi.ScoreRequest{
		RunID:        *runID,
		Latest:       *runID == "",
		Dataset:      *datasetName,
		TargetColumn: *targetColumn,
		Seed:         *seed,
		Centers:      centers,
		Symbols:      names,
	})
	if err != nil {
		return err
	}
	rate := "n/a"
	if score.SymbolErrorRate != nil {
		rate = fmt.Sprintf("%.6f", *score.SymbolErrorRate)
	}
	fmt.Printf("run_id=%s pairs=%d mse=%.9g symbol_error_rate=%s\n", score.RunID, score.Pairs, score.MeanSquared, rate)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	store := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, anfisapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s dataset=%s mode=%s pairs=%d converged=%d mean_error=%.9g\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Dataset,
			item.Mode,
			item.Pairs,
			item.Converged,
			item.MeanError,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	jsonOut := fs.Bool("json", false, "emit run detail as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("show requires --run-id or --latest")
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *latest {
		items, err := client.Runs(ctx, anfisapi.RunsRequest{Limit: 1})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.New("no runs available")
		}
		*runID = items[0].RunID
	}

	detail, err := client.Run(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(detail)
	}

	cfg := detail.Config
	fmt.Printf("run_id=%s checkpoint_id=%s dataset=%s mfs=%d inputs=%d premise=%s consequent=%s tnorm=%s mode=%s system_mode=%s\n",
		detail.Record.ID,
		detail.Record.CheckpointID,
		detail.Record.Dataset,
		cfg.MFs,
		cfg.Inputs,
		cfg.Premise,
		cfg.Consequent,
		cfg.TNorm,
		detail.Record.Mode,
		detail.Record.SystemMode,
	)
	for _, p := range detail.Record.Pairs {
		fmt.Printf("pair=%d epochs=%d converged=%t error=%.9g step_size=%.7f prediction=%.9g\n",
			p.Index, p.Epochs, p.Converged, p.Error, p.StepSize, p.Prediction)
	}
	if len(detail.ErrorSeries) > 0 {
		fmt.Printf("error_series=%s\n", formatRow(detail.ErrorSeries))
	}
	fmt.Printf("summary converged=%d exhausted=%d mean_error=%.9g std_error=%.9g max_error=%.9g mean_epochs=%.3f\n",
		detail.Summary.Converged,
		detail.Summary.Exhausted,
		detail.Summary.MeanError,
		detail.Summary.StdError,
		detail.Summary.MaxError,
		detail.Summary.MeanEpoch,
	)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, anfisapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDatasets(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ContinueOnError)
	dump := fs.String("dump", "", "write a built-in dataset to stdout as CSV")
	seed := fs.Int64("seed", 1, "rng seed for sampled datasets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dump != "" {
		pairs, err := dataset.Builtin(*dump, *seed)
		if err != nil {
			return err
		}
		return dataset.WriteCSV(os.Stdout, pairs)
	}
	for _, name := range dataset.Names() {
		pairs, err := dataset.Builtin(name, *seed)
		if err != nil {
			return err
		}
		fmt.Printf("dataset=%s pairs=%d inputs=%d\n", name, len(pairs), len(pairs[0].Features))
	}
	return nil
}

func runFunctions(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("functions", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range fuzzy.ListFunctions() {
		_, err := fuzzy.GetConsequentFunction(name)
		fmt.Printf("function=%s consequent=%t\n", name, err == nil)
	}
	return nil
}

func newLogger(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parsed)
	return logger, nil
}

func parseRows(input string) ([][]float64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("predict requires --input")
	}
	var rows [][]float64
	for _, rawRow := range strings.Split(input, ";") {
		if strings.TrimSpace(rawRow) == "" {
			continue
		}
		var row []float64
		for _, raw := range strings.Split(rawRow, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("parse input %q: %w", rawRow, err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, errors.New("predict requires --input")
	}
	return rows, nil
}

func parseSymbols(input string) ([]float64, []string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, nil
	}
	var (
		centers []float64
		names   []string
	)
	for _, item := range strings.Split(input, ",") {
		name, raw, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, nil, fmt.Errorf("invalid symbol mapping %q, want name=center", item)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("parse symbol center %q: %w", item, err)
		}
		names = append(names, strings.TrimSpace(name))
		centers = append(centers, v)
	}
	return centers, names, nil
}

func formatRow(row []float64) string {
	parts := make([]string, 0, len(row))
	for _, v := range row {
		parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: anfisctl <init|train|predict|score|runs|show|export|datasets|functions> [flags]", msg)
}
