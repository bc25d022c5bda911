package component

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParaboloid(t *testing.T) {
	tests := []struct {
		x, y, want float64
	}{
		{3, 0, -3},
		{0, 0, 22},
		{1, -4, -3},
		{20.0 / 3, -22.0 / 3, -82.0 / 3},
		{-50, 50, 3222},
	}

	for _, tt := range tests {
		got := Paraboloid(tt.x, tt.y)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Paraboloid(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestParaboloidMatchesFormula(t *testing.T) {
	for x := -10.0; x <= 10; x += 2.5 {
		for y := -10.0; y <= 10; y += 2.5 {
			want := math.Pow(x-3, 2) + x*y + math.Pow(y+4, 2) - 3
			if got := Paraboloid(x, y); math.Abs(got-want) > 1e-9 {
				t.Errorf("Paraboloid(%v, %v) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestParabola(t *testing.T) {
	if got := Parabola(3); got != -3 {
		t.Errorf("Parabola(3) = %v, want -3", got)
	}
	for x := -5.0; x <= 5; x++ {
		want := math.Pow(x-3, 2) - 3
		if got := Parabola(x); got != want {
			t.Errorf("Parabola(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestSum(t *testing.T) {
	if got := Sum(1.5, -4); got != -2.5 {
		t.Errorf("Sum(1.5, -4) = %v, want -2.5", got)
	}
}

func TestAnalyticComponents(t *testing.T) {
	ctx := context.Background()

	out, err := NewParaboloid().Solve(ctx, Values{"x": 3, "y": 0})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if diff := cmp.Diff(Values{"f_xy": -3}, out); diff != "" {
		t.Errorf("paraboloid mismatch (-want +got):\n%s", diff)
	}

	out, _ = NewParabola().Solve(ctx, Values{"x": 3})
	if diff := cmp.Diff(Values{"f_x": -3}, out); diff != "" {
		t.Errorf("parabola mismatch (-want +got):\n%s", diff)
	}

	out, _ = NewSum().Solve(ctx, Values{"y": 2, "z": 5})
	if diff := cmp.Diff(Values{"f_yz": 7}, out); diff != "" {
		t.Errorf("sum mismatch (-want +got):\n%s", diff)
	}
}

func TestIndep(t *testing.T) {
	c := NewIndep(Port{Name: "x", Default: 13}, Port{Name: "y", Default: -14})

	if len(c.Params()) != 0 {
		t.Error("Indep should have no params")
	}

	out, err := c.Solve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if diff := cmp.Diff(Values{"x": 13, "y": -14}, out); diff != "" {
		t.Errorf("indep mismatch (-want +got):\n%s", diff)
	}
}

func TestExec(t *testing.T) {
	tests := []struct {
		decl   string
		params Values
		inputs []string
		output string
		want   float64
	}{
		{"c = x - y", Values{"x": 13, "y": -14}, []string{"x", "y"}, "c", 27},
		{"y_f = input", Values{"input": 4.5}, []string{"input"}, "y_f", 4.5},
		{"r = math.Sqrt(a*a + b*b)", Values{"a": 3, "b": 4}, []string{"a", "b"}, "r", 5},
		{"k = 2", nil, nil, "k", 2},
		{"c = max(x, y)", Values{"x": -2, "y": 7}, []string{"x", "y"}, "c", 7},
		{"c = min(x, 0.5*y, 3)", Values{"x": 4, "y": 2}, []string{"x", "y"}, "c", 1},
		{"c = max(x, 0) + math.Abs(min(x, 0))", Values{"x": -3}, []string{"x"}, "c", 3},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			c, err := NewExec(tt.decl)
			if err != nil {
				t.Fatalf("NewExec failed: %v", err)
			}

			var names []string
			for _, p := range c.Params() {
				names = append(names, p.Name)
			}
			if diff := cmp.Diff(tt.inputs, names); diff != "" {
				t.Errorf("inputs mismatch (-want +got):\n%s", diff)
			}

			out, err := c.Solve(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("Solve failed: %v", err)
			}
			if got := out[tt.output]; math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("%s = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestExecInvalid(t *testing.T) {
	for _, decl := range []string{"x - y", "1c = x", "c = x +", "x = x + 1"} {
		if _, err := NewExec(decl); err == nil {
			t.Errorf("Expected error for %q", decl)
		}
	}
}

func TestTimingComponents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "time.txt")

	measure := &MeasureTime{Path: path}
	out, err := measure.Solve(ctx, Values{"finished": 1})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if out["time"] != -1.0 {
		t.Errorf("Expected -1 before any mark, got %v", out["time"])
	}

	save := &SaveTime{Path: path}
	out, err = save.Solve(ctx, Values{"pass_in": 7})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if out["pass_out"] != 7 {
		t.Errorf("Expected pass_out 7, got %v", out["pass_out"])
	}

	out, err = measure.Solve(ctx, Values{"finished": 1})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if out["time"] < 0 || out["time"] >= 1 {
		t.Errorf("Expected elapsed in [0, 1), got %v", out["time"])
	}

	if !IsStateful(save) || !IsStateful(measure) {
		t.Error("Timing components should be stateful")
	}
	if IsStateful(NewParaboloid()) {
		t.Error("Paraboloid should not be stateful")
	}
}
