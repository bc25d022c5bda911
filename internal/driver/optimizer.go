package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/opt"
	"github.com/cwbudde/petstudy/internal/problem"
	"github.com/cwbudde/petstudy/internal/store"
)

// Optimization methods.
const (
	MethodNelderMead = "neldermead"
	MethodMayfly     = "mayfly"
)

// constraintPenalty weighs the squared constraint violation added to the
// objective.
const constraintPenalty = 1e6

// Constraint bounds an unknown. Equals, when set, overrides Lower and Upper.
type Constraint struct {
	Name   string   `json:"name" yaml:"name"`
	Lower  *float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper  *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	Equals *float64 `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// Violation returns how far v lies outside the constraint, or 0.
func (c Constraint) Violation(v float64) float64 {
	if c.Equals != nil {
		return math.Abs(v - *c.Equals)
	}
	if c.Lower != nil && v < *c.Lower {
		return *c.Lower - v
	}
	if c.Upper != nil && v > *c.Upper {
		return v - *c.Upper
	}
	return 0
}

// Optimizer minimizes one objective over bounded design variables.
type Optimizer struct {
	DesVars     []DesVar
	Objective   string
	Constraints []Constraint

	Method  string  // neldermead (default) or mayfly
	Tol     float64 // absolute objective change for convergence
	MaxIter int
	Rhobeg  float64 // initial simplex size
	Seed    int64
	PopSize int
}

func (d *Optimizer) Name() string { return "Optimizer" }

func (d *Optimizer) method() (opt.Optimizer, error) {
	switch d.Method {
	case "", MethodNelderMead:
		return opt.NewNelderMead(d.MaxIter, d.Tol, d.Rhobeg), nil
	case MethodMayfly:
		maxIter := d.MaxIter
		if maxIter <= 0 {
			maxIter = 200
		}
		return opt.NewMayfly(maxIter, d.PopSize, d.Seed), nil
	default:
		return nil, fmt.Errorf("unknown optimization method %q", d.Method)
	}
}

func (d *Optimizer) options() map[string]string {
	method := d.Method
	if method == "" {
		method = MethodNelderMead
	}
	return map[string]string{
		"method":  method,
		"tol":     strconv.FormatFloat(d.Tol, 'g', -1, 64),
		"maxiter": strconv.Itoa(d.MaxIter),
		"rhobeg":  strconv.FormatFloat(d.Rhobeg, 'g', -1, 64),
	}
}

func (d *Optimizer) validate(p *problem.Problem) error {
	if len(d.DesVars) == 0 {
		return errors.New("optimizer needs at least one design variable")
	}
	for _, dv := range d.DesVars {
		if err := dv.validate(p); err != nil {
			return err
		}
	}
	if !p.HasUnknown(d.Objective) {
		return fmt.Errorf("objective %s is not an output", d.Objective)
	}
	for _, c := range d.Constraints {
		if !p.HasUnknown(c.Name) {
			return fmt.Errorf("constraint %s is not an output", c.Name)
		}
	}
	return nil
}

// Run minimizes the objective starting from base (or the indep defaults) and
// returns the state re-evaluated at the best point found.
func (d *Optimizer) Run(ctx context.Context, p *problem.Problem, base component.Values, rec store.Recorder) (*problem.State, error) {
	if err := p.Setup(); err != nil {
		return nil, err
	}
	if err := d.validate(p); err != nil {
		return nil, err
	}
	method, err := d.method()
	if err != nil {
		return nil, err
	}

	constraints := make([]string, len(d.Constraints))
	for i, c := range d.Constraints {
		constraints[i] = c.Name
	}
	if err := recordMetadata(ctx, rec, p, d.Name(), d.DesVars, []string{d.Objective}, constraints, d.options()); err != nil {
		return nil, err
	}

	dim := len(d.DesVars)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	start := make([]float64, dim)
	for i, dv := range d.DesVars {
		lower[i], upper[i] = dv.Lower, dv.Upper
		if v, ok := base[dv.Name]; ok {
			start[i] = v
		} else {
			start[i], _ = p.IndepValue(dv.Name)
		}
	}

	var (
		mu        sync.Mutex
		iteration int
		firstErr  error
	)

	evaluate := func(x []float64) (*problem.State, float64, error) {
		overrides := base.Clone()
		for i, dv := range d.DesVars {
			overrides[dv.Name] = x[i]
		}
		state, err := p.Evaluate(ctx, overrides)
		if err != nil {
			return nil, math.Inf(1), err
		}
		cost := state.Unknowns[d.Objective]
		for _, c := range d.Constraints {
			v := c.Violation(state.Unknowns[c.Name])
			cost += constraintPenalty * v * v
		}
		return state, cost, nil
	}

	record := func(state *problem.State, evalErr error) error {
		mu.Lock()
		defer mu.Unlock()
		iteration++
		return rec.RecordCase(ctx, newCase(iteration, d.Name(), state, evalErr))
	}

	objective := func(x []float64) float64 {
		state, cost, evalErr := evaluate(x)
		recErr := record(state, evalErr)

		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			switch {
			case evalErr != nil:
				firstErr = evalErr
			case recErr != nil:
				firstErr = fmt.Errorf("record case: %w", recErr)
			}
		}
		return cost
	}

	slog.Debug("Starting optimization", "problem", p.Name, "method", d.Method, "desvars", dim, "objective", d.Objective)

	result, err := method.Run(ctx, objective, lower, upper, start)
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	state, _, err := evaluate(result.Best)
	if err != nil {
		return nil, err
	}
	if err := record(state, nil); err != nil {
		return nil, fmt.Errorf("record case: %w", err)
	}

	for _, c := range d.Constraints {
		if v := c.Violation(state.Unknowns[c.Name]); v > 1e-3 {
			slog.Warn("Constraint violated at optimum", "problem", p.Name, "constraint", c.Name, "violation", v)
		}
	}

	slog.Debug("Optimization complete", "problem", p.Name, "status", result.Status,
		"evaluations", result.Evaluations, "objective", state.Unknowns[d.Objective])

	return state, nil
}
