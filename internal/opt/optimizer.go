package opt

import "context"

// Optimizer defines a gradient-free minimization algorithm.
type Optimizer interface {
	// Run minimizes eval within [lower, upper].
	// start is the initial point; methods that sample the whole box may ignore it.
	Run(ctx context.Context, eval func([]float64) float64, lower, upper, start []float64) (*Result, error)
}

// Result is the outcome of an optimization.
type Result struct {
	Best        []float64
	Cost        float64
	Evaluations int
	Status      string
}

// clamp projects x into [lower, upper] in place and returns it.
func clamp(x, lower, upper []float64) []float64 {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		}
		if x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
	return x
}
