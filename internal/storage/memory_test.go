package storage

import (
	"context"
	"testing"
	"time"

	"anfis/internal/model"
)

func sampleCheckpoint(id string) model.Checkpoint {
	return model.Checkpoint{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Topology:        model.Topology{MFs: 2, Inputs: 1, Premise: "bell2", Consequent: "plogit", TNorm: "product"},
		InputRange:      [2]float64{0, 1},
		Premise:         [][]float64{{0.25, 0}, {0.25, 1}},
		WarmStart:       [][]float64{{0.25, 0}, {0.25, 1}},
		Estimator: &model.EstimatorState{
			Lambda:     1,
			Gamma:      1e6,
			Covariance: []float64{1, 0, 0, 1},
			Solution:   []float64{0.5, -0.5},
			Rows:       1,
		},
		CreatedAt: time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC),
	}
}

func sampleRun(id string, createdAt time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		CheckpointID:    "cp-1",
		Dataset:         "xor",
		Mode:            "online",
		SystemMode:      "per_pair",
		Tolerance:       1e-3,
		MaxEpochs:       10,
		Workers:         1,
		Pairs:           []model.PairRecord{{Index: 0, Epochs: 2, Error: 1e-4, Converged: true}},
		Converged:       1,
		CreatedAt:       createdAt,
	}
}

func TestMemoryStoreCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := sampleCheckpoint("cp-1")
	if err := store.SaveCheckpoint(ctx, input); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	input.Premise[0][0] = 99
	input.Estimator.Solution[0] = 99

	output, ok, err := store.GetCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted checkpoint")
	}
	if output.Premise[0][0] != 0.25 || output.Estimator.Solution[0] != 0.5 {
		t.Fatalf("store shares memory with caller: %+v", output)
	}

	output.WarmStart[1][1] = -1
	again, _, _ := store.GetCheckpoint(ctx, "cp-1")
	if again.WarmStart[1][1] != 1 {
		t.Fatalf("returned checkpoint shares memory with store: %+v", again.WarmStart)
	}

	if _, ok, err := store.GetCheckpoint(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing checkpoint; ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	for _, run := range []model.RunRecord{
		sampleRun("run-a", base),
		sampleRun("run-c", base.Add(time.Hour)),
		sampleRun("run-b", base.Add(time.Hour)),
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-b" || runs[1].ID != "run-c" || runs[2].ID != "run-a" {
		t.Fatalf("unexpected order: %+v", runs)
	}

	run, ok, err := store.GetRun(ctx, "run-c")
	if err != nil || !ok || run.Dataset != "xor" || len(run.Pairs) != 1 {
		t.Fatalf("unexpected run ok=%t err=%v run=%+v", ok, err, run)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SaveCheckpoint(ctx, sampleCheckpoint("cp-1")); err == nil {
		t.Fatal("expected uninitialized store error")
	}
	if err := store.SaveRun(ctx, sampleRun("run-1", time.Now())); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}
