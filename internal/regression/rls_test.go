package regression

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const testGamma = 1e6

func assertSolution(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("solution length: got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("solution[%d]: got=%.12f want=%.12f", i, got[i], want[i])
		}
	}
}

func TestSolveDeterminedSystem(t *testing.T) {
	got, err := Solve([][]float64{{2, 3}, {4, -1}}, []float64{5, -1}, 1, testGamma)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	assertSolution(t, got, []float64{0.142857142857, 1.571428571428}, 1e-5)
}

func TestSolveOverdeterminedMatchesOrdinaryLeastSquares(t *testing.T) {
	a := [][]float64{{1, -1}, {1, 1}, {2, 1}}
	b := []float64{2, 4, 8}
	got, err := Solve(a, b, 1, testGamma)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	assertSolution(t, got, []float64{23.0 / 7.0, 8.0 / 7.0}, 1e-5)

	var ols mat.Dense
	if err := ols.Solve(mat.NewDense(3, 2, []float64{1, -1, 1, 1, 2, 1}), mat.NewDense(3, 1, b)); err != nil {
		t.Fatalf("ordinary least squares: %v", err)
	}
	assertSolution(t, got, []float64{ols.At(0, 0), ols.At(1, 0)}, 1e-5)
}

func TestSolveRowOrderOnlyMattersThroughForgetting(t *testing.T) {
	a := [][]float64{{1, -1}, {1, 1}, {2, 1}}
	b := []float64{2, 4, 8}
	forward, err := Solve(a, b, 1, testGamma)
	if err != nil {
		t.Fatalf("solve forward: %v", err)
	}
	reversed, err := Solve([][]float64{a[2], a[1], a[0]}, []float64{b[2], b[1], b[0]}, 1, testGamma)
	if err != nil {
		t.Fatalf("solve reversed: %v", err)
	}
	assertSolution(t, reversed, forward, 1e-5)

	forgetting, err := Solve(a, b, 0.5, testGamma)
	if err != nil {
		t.Fatalf("solve with forgetting: %v", err)
	}
	if math.Abs(forgetting[0]-forward[0]) < 1e-3 && math.Abs(forgetting[1]-forward[1]) < 1e-3 {
		t.Fatalf("expected forgetting factor to weight recent rows, got=%v", forgetting)
	}
}

func TestOverwriteKeepsSystemSizeConstant(t *testing.T) {
	e, err := NewEstimator(2, 1, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := e.Update([]float64{1, -1}, 2, ModeGrow); err != nil {
		t.Fatalf("grow: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := e.Update([]float64{1, 1}, 4, ModeOverwrite); err != nil {
			t.Fatalf("overwrite %d: %v", i, err)
		}
		if e.Rows() != 1 {
			t.Fatalf("overwrite changed system size to %d", e.Rows())
		}
	}
}

func TestOverwriteReplacesMostRecentRow(t *testing.T) {
	overwritten, err := NewEstimator(2, 0.9, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	steps := []struct {
		row    []float64
		target float64
		mode   Mode
	}{
		{[]float64{1, -1}, 2, ModeGrow},
		{[]float64{1, 1}, 4, ModeGrow},
		{[]float64{2, 1}, 8, ModeOverwrite},
	}
	for _, s := range steps {
		if err := overwritten.Update(s.row, s.target, s.mode); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	direct, err := NewEstimator(2, 0.9, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := direct.Update([]float64{1, -1}, 2, ModeGrow); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := direct.Update([]float64{2, 1}, 8, ModeGrow); err != nil {
		t.Fatalf("update: %v", err)
	}

	if overwritten.Rows() != 2 || direct.Rows() != 2 {
		t.Fatalf("unexpected rows overwritten=%d direct=%d", overwritten.Rows(), direct.Rows())
	}
	assertSolution(t, overwritten.Solution(), direct.Solution(), 0)
}

func TestOverwriteOnEmptySystemGrows(t *testing.T) {
	e, err := NewEstimator(2, 1, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := e.Update([]float64{2, 3}, 5, ModeOverwrite); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if e.Rows() != 1 {
		t.Fatalf("expected first overwrite to add a row, rows=%d", e.Rows())
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	e, err := NewEstimator(2, 1, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := e.Update([]float64{2, 3}, 5, ModeGrow); err != nil {
		t.Fatalf("grow: %v", err)
	}
	before := e.State()

	if err := e.Update([]float64{math.NaN(), 1}, 1, ModeGrow); !errors.Is(err, ErrNonFiniteUpdate) {
		t.Fatalf("expected non-finite update error, got=%v", err)
	}
	if err := e.Update([]float64{1}, 1, ModeGrow); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected dimension error, got=%v", err)
	}
	after := e.State()
	if after.Rows != before.Rows {
		t.Fatalf("rows changed after rejected update: %d -> %d", before.Rows, after.Rows)
	}
	assertSolution(t, after.Solution, before.Solution, 0)
	assertSolution(t, after.Covariance, before.Covariance, 0)
}

func TestNewEstimatorValidation(t *testing.T) {
	if _, err := NewEstimator(0, 1, 1); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected dimension error, got=%v", err)
	}
	for _, lambda := range []float64{0, -0.5, 1.5, math.NaN()} {
		if _, err := NewEstimator(2, lambda, 1); !errors.Is(err, ErrInvalidLambda) {
			t.Fatalf("lambda=%v: expected invalid lambda, got=%v", lambda, err)
		}
	}
	for _, gamma := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if _, err := NewEstimator(2, 1, gamma); !errors.Is(err, ErrInvalidGamma) {
			t.Fatalf("gamma=%v: expected invalid gamma, got=%v", gamma, err)
		}
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	e, err := NewEstimator(2, 1, 10)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := e.Update([]float64{2, 3}, 5, ModeGrow); err != nil {
		t.Fatalf("grow: %v", err)
	}
	e.Reset()
	st := e.State()
	if st.Rows != 0 || st.PrevCovariance != nil {
		t.Fatalf("unexpected state after reset: %+v", st)
	}
	assertSolution(t, st.Covariance, []float64{10, 0, 0, 10}, 0)
	assertSolution(t, st.Solution, []float64{0, 0}, 0)
}

func TestStateRoundTripAndClone(t *testing.T) {
	e, err := NewEstimator(2, 0.9, testGamma)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if err := e.Update([]float64{1, -1}, 2, ModeGrow); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := e.Update([]float64{1, 1}, 4, ModeGrow); err != nil {
		t.Fatalf("grow: %v", err)
	}

	restored, err := FromState(e.State())
	if err != nil {
		t.Fatalf("from state: %v", err)
	}
	cloned := e.Clone()

	for _, other := range []*Estimator{restored, cloned} {
		if err := other.Update([]float64{2, 1}, 8, ModeOverwrite); err != nil {
			t.Fatalf("overwrite copy: %v", err)
		}
	}
	if err := e.Update([]float64{2, 1}, 8, ModeOverwrite); err != nil {
		t.Fatalf("overwrite original: %v", err)
	}
	assertSolution(t, restored.Solution(), e.Solution(), 0)
	assertSolution(t, cloned.Solution(), e.Solution(), 0)

	if err := cloned.Update([]float64{5, 5}, 1, ModeGrow); err != nil {
		t.Fatalf("grow clone: %v", err)
	}
	if e.Rows() != 2 {
		t.Fatalf("clone mutation leaked into original, rows=%d", e.Rows())
	}
}

func TestFromStateRejectsBadSizes(t *testing.T) {
	if _, err := FromState(State{Dim: 2, Lambda: 1, Gamma: 1, Covariance: []float64{1}, Solution: []float64{0, 0}}); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected dimension error, got=%v", err)
	}
	if _, err := FromState(State{Dim: 1, Lambda: 1, Gamma: 1, Covariance: []float64{1}, Solution: []float64{0}, Rows: 1}); err == nil {
		t.Fatal("expected missing previous state error")
	}
}
