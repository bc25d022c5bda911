package opt

import (
	"context"
	"errors"
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// shifted has its minimum at (1, -2) with value -5
func shifted(x []float64) float64 {
	return (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2) - 5
}

func TestNelderMeadOnSphere(t *testing.T) {
	optimizer := NewNelderMead(500, 1e-8, 1.0)

	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}
	start := []float64{4, -3, 2}

	result, err := optimizer.Run(context.Background(), sphere, lower, upper, start)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Best) != 3 {
		t.Fatalf("Expected 3 parameters, got %d", len(result.Best))
	}
	if result.Cost > 1e-4 {
		t.Errorf("Expected cost near 0, got %f", result.Cost)
	}
	for i, v := range result.Best {
		if math.Abs(v) > 0.05 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
	if result.Evaluations == 0 {
		t.Error("Expected evaluations to be counted")
	}
}

func TestNelderMeadShifted(t *testing.T) {
	optimizer := NewNelderMead(200, 1e-6, 1.0)

	result, err := optimizer.Run(context.Background(), shifted, []float64{-50, -50}, []float64{50, 50}, []float64{13, -14})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if math.Abs(result.Best[0]-1) > 0.05 || math.Abs(result.Best[1]+2) > 0.05 {
		t.Errorf("Expected minimum near (1, -2), got %v", result.Best)
	}
	if math.Abs(result.Cost+5) > 1e-2 {
		t.Errorf("Expected cost near -5, got %f", result.Cost)
	}
}

func TestNelderMeadRespectsBounds(t *testing.T) {
	optimizer := NewNelderMead(200, 1e-6, 1.0)

	// Unconstrained minimum at origin lies outside the box.
	result, err := optimizer.Run(context.Background(), sphere, []float64{2}, []float64{5}, []float64{4})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Best[0] < 2 || result.Best[0] > 2.05 {
		t.Errorf("Expected best on lower bound 2, got %f", result.Best[0])
	}
}

func TestNelderMeadDimensionMismatch(t *testing.T) {
	optimizer := NewNelderMead(0, 0, 0)
	if _, err := optimizer.Run(context.Background(), sphere, []float64{0}, []float64{1, 2}, []float64{0}); err == nil {
		t.Error("Expected error for mismatched bounds")
	}
}

func TestNelderMeadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	optimizer := NewNelderMead(200, 1e-6, 1.0)
	if _, err := optimizer.Run(ctx, sphere, []float64{-1}, []float64{1}, []float64{0.5}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	result, err := optimizer.Run(context.Background(), sphere, lower, upper, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(result.Best))
	}

	// Should converge close to zero
	if result.Cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", result.Cost)
	}

	// Check that best params are near origin
	for i, v := range result.Best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterAsymmetricBounds(t *testing.T) {
	optimizer := NewMayfly(100, 20, 7)

	result, err := optimizer.Run(context.Background(), shifted, []float64{0, -10}, []float64{4, 0}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Best[0] < 0 || result.Best[0] > 4 || result.Best[1] < -10 || result.Best[1] > 0 {
		t.Errorf("Best %v escaped the box", result.Best)
	}
	if math.Abs(result.Best[0]-1) > 0.5 || math.Abs(result.Best[1]+2) > 0.5 {
		t.Errorf("Expected best near (1, -2), got %v", result.Best)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// popSize must be >=20 for mayfly v0.1.0
	r1, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r2, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if r1.Cost != r2.Cost {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", r1.Cost, r2.Cost)
	}
}

func TestMayflyAdapterStopsEvaluatingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	eval := func(x []float64) float64 {
		calls++
		if calls == 10 {
			cancel()
		}
		return sphere(x)
	}

	_, err := NewMayfly(50, 20, 1).Run(ctx, eval, []float64{-5, -5}, []float64{5, 5}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 10 {
		t.Errorf("Expected evaluation to stop after cancel at 10 calls, got %d", calls)
	}
}

func TestMayflyAdapterCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	eval := func(x []float64) float64 {
		calls++
		return sphere(x)
	}
	if _, err := NewMayfly(50, 20, 1).Run(ctx, eval, []float64{-1}, []float64{1}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no evaluations, got %d", calls)
	}
}
