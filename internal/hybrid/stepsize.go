package hybrid

import "fmt"

const (
	DefaultInitialK       = 0.1
	DefaultIncreaseFactor = 1.10
	DefaultDecreaseFactor = 0.9
	DefaultWindow         = 4
)

// StepSizeController adapts the gradient step k from the sign of successive
// error changes: Window consecutive non-increases grow k by IncreaseFactor,
// Window consecutive increases shrink it by DecreaseFactor.
type StepSizeController struct {
	k        float64
	increase float64
	decrease float64
	window   int

	downs   int
	ups     int
	last    float64
	hasLast bool
}

func NewStepSizeController(k, increase, decrease float64, window int) (*StepSizeController, error) {
	if !(k > 0) {
		return nil, fmt.Errorf("%w: initial step %v must be positive", ErrInvalidConfig, k)
	}
	if increase < 1.01 || increase > 1.10 {
		return nil, fmt.Errorf("%w: increase factor %v outside [1.01, 1.10]", ErrInvalidConfig, increase)
	}
	if decrease < 0.9 || decrease > 0.99 {
		return nil, fmt.Errorf("%w: decrease factor %v outside [0.9, 0.99]", ErrInvalidConfig, decrease)
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: window %d must be positive", ErrInvalidConfig, window)
	}
	return &StepSizeController{k: k, increase: increase, decrease: decrease, window: window}, nil
}

func (c *StepSizeController) K() float64 { return c.k }

// Observe records the error of the latest epoch and returns the updated k.
// An error equal to the previous one counts as a decrease.
func (c *StepSizeController) Observe(err float64) float64 {
	if !c.hasLast {
		c.last, c.hasLast = err, true
		return c.k
	}
	switch {
	case err <= c.last:
		c.ups = 0
		c.downs++
		if c.downs >= c.window {
			c.k *= c.increase
			c.downs = 0
		}
	case err > c.last:
		c.downs = 0
		c.ups++
		if c.ups >= c.window {
			c.k *= c.decrease
			c.ups = 0
		}
	}
	c.last = err
	return c.k
}
