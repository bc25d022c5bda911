package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the mayfly library to conform to the Optimizer interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize below 20 is raised to 20, the library minimum.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < 20 {
		popSize = 20
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. The library only supports scalar
// bounds, so the search runs in the unit box and is mapped onto [lower, upper].
// The library cannot be interrupted; once ctx is done the remaining
// iterations see +Inf without calling eval.
func (m *MayflyAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper, start []float64) (*Result, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, fmt.Errorf("mayfly: invalid bounds (lower %d, upper %d)", len(lower), len(upper))
	}

	toBox := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return clamp(x, lower, upper)
	}

	evals := 0
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		evals++
		return eval(toBox(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, fmt.Errorf("mayfly: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Best:        toBox(result.GlobalBest.Position),
		Cost:        result.GlobalBest.Cost,
		Evaluations: evals,
		Status:      "IterationLimit",
	}, nil
}
