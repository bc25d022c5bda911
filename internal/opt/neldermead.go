package opt

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/optimize"
)

// boundPenalty weighs the squared distance outside the box.
const boundPenalty = 1e6

var statusCancelled = optimize.NewStatus("Cancelled", true, context.Canceled)

// NelderMead is a local simplex optimizer backed by gonum/optimize.
type NelderMead struct {
	maxIters int
	tol      float64
	rhobeg   float64
}

// NewNelderMead creates a simplex optimizer. rhobeg is the initial simplex
// size; tol is the absolute function change below which the search stops.
func NewNelderMead(maxIters int, tol, rhobeg float64) *NelderMead {
	if maxIters <= 0 {
		maxIters = 200
	}
	if tol <= 0 {
		tol = 1e-4
	}
	if rhobeg <= 0 {
		rhobeg = 1.0
	}
	return &NelderMead{maxIters: maxIters, tol: tol, rhobeg: rhobeg}
}

func (n *NelderMead) Run(ctx context.Context, eval func([]float64) float64, lower, upper, start []float64) (*Result, error) {
	dim := len(start)
	if dim == 0 || len(lower) != dim || len(upper) != dim {
		return nil, fmt.Errorf("neldermead: dimension mismatch (start %d, lower %d, upper %d)", dim, len(lower), len(upper))
	}

	x0 := clamp(append([]float64(nil), start...), lower, upper)
	evals := 0

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			evals++
			inside := clamp(append([]float64(nil), x...), lower, upper)
			var dist float64
			for i := range x {
				d := x[i] - inside[i]
				dist += d * d
			}
			return eval(inside) + boundPenalty*dist
		},
	}

	settings := &optimize.Settings{
		MajorIterations: n.maxIters,
		Converger: &ctxConverger{
			ctx:  ctx,
			next: &optimize.FunctionConverge{Absolute: n.tol, Iterations: 20},
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: n.rhobeg})
	if result == nil {
		return nil, fmt.Errorf("neldermead: %w", err)
	}
	if result.Status == statusCancelled {
		return nil, ctx.Err()
	}
	if err != nil {
		// Limits end the search early but still yield a usable point.
		slog.Debug("Nelder-Mead stopped early", "status", result.Status.String(), "error", err)
	}

	return &Result{
		Best:        clamp(append([]float64(nil), result.X...), lower, upper),
		Cost:        result.F,
		Evaluations: evals,
		Status:      result.Status.String(),
	}, nil
}

// ctxConverger stops the search when the context is cancelled.
type ctxConverger struct {
	ctx  context.Context
	next optimize.Converger
}

func (c *ctxConverger) Init(dim int) { c.next.Init(dim) }

func (c *ctxConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return statusCancelled
	}
	return c.next.Converged(loc)
}
