// Package regression fits the linear system A·X ≈ B one row at a time with
// recursive least squares.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultLambda = 0.9
	DefaultGamma  = 1e4
)

var (
	ErrDimension       = errors.New("row dimension mismatch")
	ErrInvalidLambda   = errors.New("forgetting factor must be in (0, 1]")
	ErrInvalidGamma    = errors.New("initial covariance scale must be positive and finite")
	ErrNonFiniteUpdate = errors.New("least squares update produced non-finite values")
)

// Mode selects how a new row enters the system.
type Mode int

const (
	// ModeGrow appends the row as a new equation.
	ModeGrow Mode = iota
	// ModeOverwrite replaces the most recent equation, keeping the system
	// size constant.
	ModeOverwrite
)

func (m Mode) String() string {
	switch m {
	case ModeGrow:
		return "grow"
	case ModeOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Estimator holds the covariance-like matrix S and the running solution X of
// a recursive least-squares fit with forgetting factor lambda. It is not safe
// for concurrent use.
type Estimator struct {
	dim    int
	lambda float64
	gamma  float64

	s *mat.SymDense
	x *mat.VecDense

	// state before the most recent row; an overwrite re-applies from here
	prevS *mat.SymDense
	prevX *mat.VecDense
	rows  int
}

func NewEstimator(dim int, lambda, gamma float64) (*Estimator, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimension, dim)
	}
	if !(lambda > 0 && lambda <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLambda, lambda)
	}
	if !(gamma > 0) || math.IsInf(gamma, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGamma, gamma)
	}
	e := &Estimator{dim: dim, lambda: lambda, gamma: gamma}
	e.Reset()
	return e, nil
}

// Reset restores S = gamma·I and X = 0 and forgets every row.
func (e *Estimator) Reset() {
	e.s = mat.NewSymDense(e.dim, nil)
	for i := 0; i < e.dim; i++ {
		e.s.SetSym(i, i, e.gamma)
	}
	e.x = mat.NewVecDense(e.dim, nil)
	e.prevS = nil
	e.prevX = nil
	e.rows = 0
}

func (e *Estimator) Dim() int { return e.dim }

func (e *Estimator) Lambda() float64 { return e.lambda }

func (e *Estimator) Gamma() float64 { return e.gamma }

// Rows is the number of equations currently in the system.
func (e *Estimator) Rows() int { return e.rows }

// Solution returns a copy of X.
func (e *Estimator) Solution() []float64 {
	return vecData(e.x)
}

// Update feeds one equation row·X = target. On error the estimator is left
// unchanged.
func (e *Estimator) Update(row []float64, target float64, mode Mode) error {
	if len(row) != e.dim {
		return fmt.Errorf("%w: got %d want %d", ErrDimension, len(row), e.dim)
	}

	baseS, baseX := e.s, e.x
	overwrite := mode == ModeOverwrite && e.rows > 0
	if overwrite {
		baseS, baseX = e.prevS, e.prevX
	}

	nextS, nextX := step(baseS, baseX, mat.NewVecDense(e.dim, append([]float64(nil), row...)), target, e.lambda)
	if !finiteSym(nextS) || !finiteVec(nextX) {
		return ErrNonFiniteUpdate
	}

	if !overwrite {
		e.prevS, e.prevX = e.s, e.x
		e.rows++
	}
	e.s, e.x = nextS, nextX
	return nil
}

// step applies
//
//	S ← (S − S·aᵀ·a·S / (λ + a·S·aᵀ)) / λ
//	X ← X + S·aᵀ·(b − a·X)
//
// without touching its inputs.
func step(s *mat.SymDense, x *mat.VecDense, a *mat.VecDense, b, lambda float64) (*mat.SymDense, *mat.VecDense) {
	n := a.Len()

	var sa mat.VecDense
	sa.MulVec(s, a)
	denom := lambda + mat.Dot(a, &sa)

	nextS := mat.NewSymDense(n, nil)
	nextS.SymRankOne(s, -1/denom, &sa)
	nextS.ScaleSym(1/lambda, nextS)

	residual := b - mat.Dot(a, x)
	var gain mat.VecDense
	gain.MulVec(nextS, a)
	nextX := mat.NewVecDense(n, nil)
	nextX.AddScaledVec(x, residual, &gain)
	return nextS, nextX
}

// Clone returns an independent copy of the estimator.
func (e *Estimator) Clone() *Estimator {
	out := &Estimator{dim: e.dim, lambda: e.lambda, gamma: e.gamma, rows: e.rows}
	out.s = mat.NewSymDense(e.dim, nil)
	out.s.CopySym(e.s)
	out.x = mat.VecDenseCopyOf(e.x)
	if e.prevS != nil {
		out.prevS = mat.NewSymDense(e.dim, nil)
		out.prevS.CopySym(e.prevS)
		out.prevX = mat.VecDenseCopyOf(e.prevX)
	}
	return out
}

// State is a flat snapshot of an estimator, suitable for persistence.
type State struct {
	Dim            int
	Lambda         float64
	Gamma          float64
	Covariance     []float64
	Solution       []float64
	PrevCovariance []float64
	PrevSolution   []float64
	Rows           int
}

func (e *Estimator) State() State {
	st := State{
		Dim:        e.dim,
		Lambda:     e.lambda,
		Gamma:      e.gamma,
		Covariance: flattenSym(e.s),
		Solution:   e.Solution(),
		Rows:       e.rows,
	}
	if e.prevS != nil {
		st.PrevCovariance = flattenSym(e.prevS)
		st.PrevSolution = vecData(e.prevX)
	}
	return st
}

// FromState rebuilds an estimator from a snapshot taken with State.
func FromState(st State) (*Estimator, error) {
	e, err := NewEstimator(st.Dim, st.Lambda, st.Gamma)
	if err != nil {
		return nil, err
	}
	if st.Rows < 0 {
		return nil, fmt.Errorf("invalid estimator row count %d", st.Rows)
	}
	if len(st.Covariance) != st.Dim*st.Dim || len(st.Solution) != st.Dim {
		return nil, fmt.Errorf("%w: estimator state sizes do not match dimension %d", ErrDimension, st.Dim)
	}
	e.s = mat.NewSymDense(st.Dim, append([]float64(nil), st.Covariance...))
	e.x = mat.NewVecDense(st.Dim, append([]float64(nil), st.Solution...))
	e.rows = st.Rows
	if len(st.PrevCovariance) > 0 {
		if len(st.PrevCovariance) != st.Dim*st.Dim || len(st.PrevSolution) != st.Dim {
			return nil, fmt.Errorf("%w: previous estimator state sizes do not match dimension %d", ErrDimension, st.Dim)
		}
		e.prevS = mat.NewSymDense(st.Dim, append([]float64(nil), st.PrevCovariance...))
		e.prevX = mat.NewVecDense(st.Dim, append([]float64(nil), st.PrevSolution...))
	} else if st.Rows > 0 {
		return nil, errors.New("estimator state with rows is missing its previous state")
	}
	return e, nil
}

// Solve streams every row of A in grow mode and returns the final solution.
func Solve(a [][]float64, b []float64, lambda, gamma float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrDimension, len(a), len(b))
	}
	if len(a) == 0 {
		return nil, fmt.Errorf("%w: empty system", ErrDimension)
	}
	e, err := NewEstimator(len(a[0]), lambda, gamma)
	if err != nil {
		return nil, err
	}
	for i := range a {
		if err := e.Update(a[i], b[i], ModeGrow); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return e.Solution(), nil
}

func flattenSym(s *mat.SymDense) []float64 {
	n := s.SymmetricDim()
	out := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, s.At(i, j))
		}
	}
	return out
}

func finiteSym(s *mat.SymDense) bool {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := s.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
