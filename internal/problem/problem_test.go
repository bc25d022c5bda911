package problem

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/store"
	"github.com/google/go-cmp/cmp"
)

func paraboloidProblem(t *testing.T) *Problem {
	t.Helper()

	p := New("paraboloid")
	mustAdd(t, p, "p", component.NewParaboloid())
	mustAdd(t, p, "p1", component.NewIndep(component.Port{Name: "x", Default: 3}))
	mustAdd(t, p, "p2", component.NewIndep(component.Port{Name: "y", Default: -4}))
	mustConnect(t, p, "p1.x", "p.x")
	mustConnect(t, p, "p2.y", "p.y")
	return p
}

func mustAdd(t *testing.T, p *Problem, name string, c component.Component) {
	t.Helper()
	if err := p.Add(name, c); err != nil {
		t.Fatalf("Add(%s) failed: %v", name, err)
	}
}

func mustConnect(t *testing.T, p *Problem, src, tgt string) {
	t.Helper()
	if err := p.Connect(src, tgt); err != nil {
		t.Fatalf("Connect(%s, %s) failed: %v", src, tgt, err)
	}
}

// evalDriver evaluates once with the base overrides.
type evalDriver struct{ runs int }

func (d *evalDriver) Name() string { return "eval" }

func (d *evalDriver) Run(ctx context.Context, p *Problem, base component.Values, rec store.Recorder) (*State, error) {
	d.runs++
	return p.Evaluate(ctx, base)
}

func TestEvaluateOrder(t *testing.T) {
	p := paraboloidProblem(t)

	want := []string{"p1.x", "p2.y", "p.f_xy"}
	if diff := cmp.Diff(want, p.UnknownPaths()); diff != "" {
		t.Errorf("unknown order mismatch (-want +got):\n%s", diff)
	}

	state, err := p.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got, _ := state.Value("p.f_xy"); got != -15 {
		t.Errorf("f_xy = %v, want -15", got)
	}
	if diff := cmp.Diff(component.Values{"p.x": 3, "p.y": -4}, state.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateOverrides(t *testing.T) {
	p := paraboloidProblem(t)

	state, err := p.Evaluate(context.Background(), component.Values{"p1.x": 20.0 / 3, "p2.y": -22.0 / 3})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	got, _ := state.Value("p.f_xy")
	if diff := got + 82.0/3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("f_xy = %v, want %v", got, -82.0/3)
	}

	if _, err := p.Evaluate(context.Background(), component.Values{"p.f_xy": 1}); err == nil {
		t.Error("Expected error overriding a computed output")
	}
}

func TestUnconnectedParamUsesDefault(t *testing.T) {
	p := New("sum")
	mustAdd(t, p, "s", component.NewSum())
	mustAdd(t, p, "i", component.NewIndep(component.Port{Name: "y", Default: 2}))
	mustConnect(t, p, "i.y", "s.y")

	state, err := p.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got, _ := state.Value("s.f_yz"); got != 2 {
		t.Errorf("f_yz = %v, want 2", got)
	}
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Problem)
		want  string
	}{
		{
			name: "unknown component",
			build: func(p *Problem) {
				_ = p.Connect("nope.x", "p.x")
			},
			want: "no component",
		},
		{
			name: "source is a param",
			build: func(p *Problem) {
				_ = p.Connect("p.x", "p.y")
			},
			want: "not an unknown",
		},
		{
			name: "target is an unknown",
			build: func(p *Problem) {
				_ = p.Add("i", component.NewIndep(component.Port{Name: "x"}))
				_ = p.Connect("i.x", "p.f_xy")
			},
			want: "not a param",
		},
		{
			name: "cycle",
			build: func(p *Problem) {
				_ = p.Add("q", component.NewParaboloid())
				_ = p.Connect("p.f_xy", "q.x")
				_ = p.Connect("q.f_xy", "p.x")
			},
			want: "cycle",
		},
		{
			name: "self connection",
			build: func(p *Problem) {
				_ = p.Connect("p.f_xy", "p.x")
			},
			want: "itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("bad")
			mustAdd(t, p, "p", component.NewParaboloid())
			tt.build(p)

			err := p.Setup()
			if err == nil {
				t.Fatal("Expected setup error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAddConnectValidation(t *testing.T) {
	p := New("v")
	if err := p.Add("a.b", component.NewSum()); err == nil {
		t.Error("Expected error for dotted name")
	}
	mustAdd(t, p, "s", component.NewSum())
	if err := p.Add("s", component.NewSum()); err == nil {
		t.Error("Expected error for duplicate name")
	}

	mustAdd(t, p, "i", component.NewIndep(component.Port{Name: "y"}, component.Port{Name: "z"}))
	mustConnect(t, p, "i.y", "s.y")
	if err := p.Connect("i.z", "s.y"); err == nil {
		t.Error("Expected error connecting a target twice")
	}
}

func TestEvaluateCancelled(t *testing.T) {
	p := paraboloidProblem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Evaluate(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunWithoutDriver(t *testing.T) {
	p := paraboloidProblem(t)
	if _, err := p.Run(context.Background(), nil); err == nil {
		t.Error("Expected error running without a driver")
	}

	d := &evalDriver{}
	p.Driver = d
	state, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if d.runs != 1 {
		t.Errorf("Expected 1 driver run, got %d", d.runs)
	}
	if got, _ := state.Value("p.f_xy"); got != -15 {
		t.Errorf("f_xy = %v, want -15", got)
	}
}

func TestSubProblem(t *testing.T) {
	inner := paraboloidProblem(t)
	d := &evalDriver{}
	inner.Driver = d

	sub, err := NewSubProblem(inner, []string{"p1.x", "p2.y"}, []string{"p.f_xy", "p1.x"})
	if err != nil {
		t.Fatalf("NewSubProblem failed: %v", err)
	}

	wantParams := []component.Port{{Name: "p1.x", Default: 3}, {Name: "p2.y", Default: -4}}
	if diff := cmp.Diff(wantParams, sub.Params()); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	top := New("top")
	mustAdd(t, top, "indep", component.NewIndep(component.Port{Name: "x", Default: 0}, component.Port{Name: "y", Default: 0}))
	mustAdd(t, top, "Sub", sub)
	mustConnect(t, top, "indep.x", "Sub.p1.x")
	mustConnect(t, top, "indep.y", "Sub.p2.y")

	state, err := top.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got, _ := state.Value("Sub.p.f_xy"); got != 22 {
		t.Errorf("Sub.p.f_xy = %v, want 22", got)
	}
	if got, _ := state.Value("Sub.p1.x"); got != 0 {
		t.Errorf("Sub.p1.x = %v, want 0", got)
	}
	if d.runs != 1 {
		t.Errorf("Expected inner driver to run once, got %d", d.runs)
	}
}

func TestSubProblemValidation(t *testing.T) {
	inner := paraboloidProblem(t)

	if _, err := NewSubProblem(inner, []string{"p.x"}, nil); err == nil {
		t.Error("Expected error for non-indep param")
	}
	if _, err := NewSubProblem(inner, nil, []string{"p.g"}); err == nil {
		t.Error("Expected error for missing unknown")
	}
}

func TestSubProblemStateful(t *testing.T) {
	inner := New("timed")
	mustAdd(t, inner, "m", &component.MeasureTime{Path: "unused"})
	sub, err := NewSubProblem(inner, nil, []string{"m.time"})
	if err != nil {
		t.Fatalf("NewSubProblem failed: %v", err)
	}
	if !component.IsStateful(sub) {
		t.Error("Expected subproblem with a timing component to be stateful")
	}
	if component.IsStateful(mustSub(t, paraboloidProblem(t))) {
		t.Error("Expected plain subproblem to be stateless")
	}
}

func mustSub(t *testing.T, p *Problem) *SubProblem {
	t.Helper()
	sub, err := NewSubProblem(p, nil, []string{"p.f_xy"})
	if err != nil {
		t.Fatalf("NewSubProblem failed: %v", err)
	}
	return sub
}
