package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Topology is the shape of a network: label count, input count and the
// membership function families it is built from.
type Topology struct {
	MFs        int    `json:"mfs"`
	Inputs     int    `json:"inputs"`
	Premise    string `json:"premise"`
	Consequent string `json:"consequent"`
	TNorm      string `json:"tnorm"`
}

// EstimatorState is a flattened recursive least-squares state.
type EstimatorState struct {
	Lambda         float64   `json:"lambda"`
	Gamma          float64   `json:"gamma"`
	Covariance     []float64 `json:"covariance"`
	Solution       []float64 `json:"solution"`
	PrevCovariance []float64 `json:"prev_covariance,omitempty"`
	PrevSolution   []float64 `json:"prev_solution,omitempty"`
	Rows           int       `json:"rows"`
}

// Checkpoint captures everything needed to rebuild a trained network.
type Checkpoint struct {
	VersionedRecord
	ID         string          `json:"id"`
	Topology   Topology        `json:"topology"`
	InputRange [2]float64      `json:"input_range"`
	Premise    [][]float64     `json:"premise"`
	WarmStart  [][]float64     `json:"warm_start"`
	Estimator  *EstimatorState `json:"estimator,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PairRecord is the persisted outcome of one training pair.
type PairRecord struct {
	Index      int     `json:"index"`
	Epochs     int     `json:"epochs"`
	Error      float64 `json:"error"`
	StepSize   float64 `json:"step_size"`
	Prediction float64 `json:"prediction"`
	ElapsedMS  int64   `json:"elapsed_ms"`
	Converged  bool    `json:"converged"`
}

// RunRecord is the persisted summary of one training run.
type RunRecord struct {
	VersionedRecord
	ID           string       `json:"id"`
	CheckpointID string       `json:"checkpoint_id"`
	Dataset      string       `json:"dataset"`
	Mode         string       `json:"mode"`
	SystemMode   string       `json:"system_mode"`
	Tolerance    float64      `json:"tolerance"`
	MaxEpochs    int          `json:"max_epochs"`
	Workers      int          `json:"workers"`
	Pairs        []PairRecord `json:"pairs"`
	Converged    int          `json:"converged"`
	Exhausted    int          `json:"exhausted"`
	MeanError    float64      `json:"mean_error"`
	ElapsedMS    int64        `json:"elapsed_ms"`
	CreatedAt    time.Time    `json:"created_at"`
}
