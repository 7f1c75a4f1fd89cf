package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"anfis/internal/model"
)

func TestDecodeCheckpointFixture(t *testing.T) {
	checkpoint := decodeCheckpointFixture(t, "checkpoint_v1.json")
	if checkpoint.ID != "checkpoint-xor-1" {
		t.Fatalf("unexpected checkpoint id: %s", checkpoint.ID)
	}
	if checkpoint.Topology.MFs != 2 || checkpoint.Topology.Inputs != 2 || checkpoint.Topology.Premise != "bell2" {
		t.Fatalf("unexpected topology: %+v", checkpoint.Topology)
	}
	if len(checkpoint.Premise) != 4 || checkpoint.Premise[1][1] != 1 {
		t.Fatalf("unexpected premise params: %+v", checkpoint.Premise)
	}
	if checkpoint.Estimator == nil || len(checkpoint.Estimator.Covariance) != 16 || checkpoint.Estimator.Rows != 4 {
		t.Fatalf("unexpected estimator: %+v", checkpoint.Estimator)
	}
}

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-xor-1" || run.CheckpointID != "checkpoint-xor-1" {
		t.Fatalf("unexpected run ids: %+v", run)
	}
	if len(run.Pairs) != 2 || !run.Pairs[0].Converged || run.Pairs[1].Epochs != 10 {
		t.Fatalf("unexpected pairs: %+v", run.Pairs)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	checkpoint := decodeCheckpointFixture(t, "checkpoint_v1.json")

	encoded, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCheckpoint(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(checkpoint, decoded) {
		t.Fatalf("round trip mismatch:\nwant=%+v\ngot=%+v", checkpoint, decoded)
	}
}

func TestDecodeCheckpointVersionMismatch(t *testing.T) {
	checkpoint := decodeCheckpointFixture(t, "checkpoint_v1.json")
	checkpoint.SchemaVersion++

	encoded, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = DecodeCheckpoint(encoded)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestDecodeRunVersionMismatch(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	run.CodecVersion++

	encoded, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = DecodeRun(encoded)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeCheckpoint([]byte("{")); err == nil {
		t.Fatal("expected malformed checkpoint error")
	}
	if _, err := DecodeRun([]byte("[]")); err == nil {
		t.Fatal("expected malformed run error")
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func decodeCheckpointFixture(t *testing.T, name string) model.Checkpoint {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	checkpoint, err := DecodeCheckpoint(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return checkpoint
}
