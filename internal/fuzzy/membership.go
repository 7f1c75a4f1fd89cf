package fuzzy

import (
	"errors"
	"fmt"
	"math"
)

// MinMembership is the floor applied to BellTwo degrees so downstream
// normalization and gradients never see an exact zero.
const MinMembership = 1e-10

const (
	logitLow  = 1e-8
	logitHigh = 1.0 - logitLow
	logitSpan = logitHigh - logitLow
)

var (
	ErrMissingParameter = errors.New("missing membership function parameter")
	ErrZeroScale        = errors.New("membership function scale parameter is zero")
)

// MembershipFunction is a family of parameterized fuzzy membership functions.
// Implementations are stateless.
type MembershipFunction interface {
	Name() string
	// Params lists shape parameter names in canonical order.
	Params() []string
	Degree(value float64, params ...float64) (float64, error)
	Partial(value float64, variable string, params ...float64) (float64, error)
	// Initial returns a parameter row for a label centered at center with
	// the given spread.
	Initial(center, spread float64) []float64
}

// ConsequentFunction is a membership function that can be linearized in its
// own parameters, which lets the consequent layer be fit by least squares.
type ConsequentFunction interface {
	MembershipFunction
	// SystemTerm returns the coefficients of this function's parameters in
	// Degree(value, params...)*weight.
	SystemTerm(value, weight float64) []float64
	// Slope is the derivative of Degree with respect to value.
	Slope(value float64, params ...float64) (float64, error)
}

func checkParams(name string, value float64, want int, params []float64) error {
	if len(params) < want {
		return fmt.Errorf("%s: need %d parameters, got %d: %w", name, want, len(params), ErrMissingParameter)
	}
	if math.IsNaN(value) {
		return fmt.Errorf("%s: undefined input value: %w", name, ErrMissingParameter)
	}
	for i := 0; i < want; i++ {
		if math.IsNaN(params[i]) {
			return fmt.Errorf("%s: undefined parameter %d: %w", name, i, ErrMissingParameter)
		}
	}
	return nil
}

// BellTwo is the gaussian exp(-((v-b)/a)^2) with standard deviation a and
// mean b. A third parameter is accepted and ignored.
type BellTwo struct{}

func (BellTwo) Name() string { return "bell2" }

func (BellTwo) Params() []string { return []string{"a", "b"} }

func (BellTwo) Initial(center, spread float64) []float64 {
	return []float64{spread, center}
}

func (f BellTwo) Degree(value float64, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 2, params); err != nil {
		return 0, err
	}
	a, b := params[0], params[1]
	if a == 0 {
		return 0, fmt.Errorf("%s: %w", f.Name(), ErrZeroScale)
	}
	k := (value - b) / a
	return math.Max(math.Exp(-k*k), MinMembership), nil
}

func (f BellTwo) Partial(value float64, variable string, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 2, params); err != nil {
		return 0, err
	}
	a, b := params[0], params[1]
	if a == 0 {
		return 0, fmt.Errorf("%s: %w", f.Name(), ErrZeroScale)
	}
	diff := value - b
	g := math.Exp(-(diff * diff) / (a * a))
	if g < MinMembership {
		// Degree is clamped to a constant here.
		return 0, nil
	}
	switch variable {
	case "a":
		return 2 * diff * diff * g / (a * a * a), nil
	case "b":
		return 2 * diff * g / (a * a), nil
	default:
		return 0, nil
	}
}

// BellThree is the generalized bell 1/(1+((v-c)/a)^(2b)).
type BellThree struct{}

func (BellThree) Name() string { return "bell3" }

func (BellThree) Params() []string { return []string{"a", "b", "c"} }

func (BellThree) Initial(center, spread float64) []float64 {
	return []float64{spread, 2, center}
}

func (f BellThree) Degree(value float64, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 3, params); err != nil {
		return 0, err
	}
	a, b, c := params[0], params[1], params[2]
	if a == 0 {
		return 0, fmt.Errorf("%s: %w", f.Name(), ErrZeroScale)
	}
	t := (value - c) / a
	return 1 / (1 + math.Pow(t*t, b)), nil
}

func (f BellThree) Partial(value float64, variable string, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 3, params); err != nil {
		return 0, err
	}
	a, b, c := params[0], params[1], params[2]
	if a == 0 {
		return 0, fmt.Errorf("%s: %w", f.Name(), ErrZeroScale)
	}
	t := (value - c) / a
	sq := t * t
	p := math.Pow(sq, b)
	denom := (1 + p) * (1 + p)
	switch variable {
	case "a":
		return 2 * b * p / (a * denom), nil
	case "b":
		// x^b*ln(x) tends to 0 as x -> 0
		if sq == 0 {
			return 0, nil
		}
		return -p * math.Log(sq) / denom, nil
	case "c":
		if sq == 0 {
			return 0, nil
		}
		return 2 * b * (value - c) * math.Pow(sq, b-1) / (denom * a * a), nil
	default:
		return 0, nil
	}
}

// PiecewiseLogit is a linear approximation of the logit saturated at p below
// 1e-8 and q above 1-1e-8. It is monotonic, so it serves as the Tsukamoto
// consequent function.
type PiecewiseLogit struct{}

func (PiecewiseLogit) Name() string { return "plogit" }

func (PiecewiseLogit) Params() []string { return []string{"p", "q"} }

func (PiecewiseLogit) Initial(center, spread float64) []float64 {
	return []float64{center - spread, center + spread}
}

func (f PiecewiseLogit) Degree(value float64, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 2, params); err != nil {
		return 0, err
	}
	wp, wq := logitWeights(value)
	return params[0]*wp + params[1]*wq, nil
}

func (f PiecewiseLogit) Partial(value float64, variable string, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 2, params); err != nil {
		return 0, err
	}
	if value < logitLow || value > logitHigh {
		return 0, nil
	}
	switch variable {
	case "p":
		return (logitHigh - value) / logitSpan, nil
	case "q":
		return (value - logitLow) / logitSpan, nil
	default:
		return 0, nil
	}
}

func (PiecewiseLogit) SystemTerm(value, weight float64) []float64 {
	wp, wq := logitWeights(value)
	return []float64{weight * wp, weight * wq}
}

func (f PiecewiseLogit) Slope(value float64, params ...float64) (float64, error) {
	if err := checkParams(f.Name(), value, 2, params); err != nil {
		return 0, err
	}
	if value <= logitLow || value >= logitHigh {
		return 0, nil
	}
	return (params[1] - params[0]) / logitSpan, nil
}

// logitWeights returns the saturated interpolation weights of p and q.
func logitWeights(value float64) (float64, float64) {
	switch {
	case value <= logitLow:
		return 1, 0
	case value >= logitHigh:
		return 0, 1
	default:
		return (logitHigh - value) / logitSpan, (value - logitLow) / logitSpan
	}
}
