package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/problem"
	"github.com/cwbudde/petstudy/internal/store"
)

// FullFactorial evaluates the Cartesian product of evenly spaced levels of
// every design variable.
type FullFactorial struct {
	DesVars []DesVar
	Levels  int

	// Workers evaluates cases in parallel. Problems with stateful components
	// always run with one worker.
	Workers int

	// Objectives are recorded in the metadata only.
	Objectives []string
}

func (d *FullFactorial) Name() string { return "FullFactorial" }

// LevelValues returns n evenly spaced values from lower to upper inclusive.
func LevelValues(lower, upper float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lower}
	}
	vals := make([]float64, n)
	step := (upper - lower) / float64(n-1)
	for i := range vals {
		vals[i] = lower + float64(i)*step
	}
	vals[n-1] = upper
	return vals
}

// Points returns every case of the sweep in order; the last design variable
// varies fastest.
func (d *FullFactorial) Points() [][]float64 {
	if len(d.DesVars) == 0 || d.Levels <= 0 {
		return nil
	}

	axes := make([][]float64, len(d.DesVars))
	for i, dv := range d.DesVars {
		axes[i] = LevelValues(dv.Lower, dv.Upper, d.Levels)
	}

	points := [][]float64{{}}
	for _, axis := range axes {
		next := make([][]float64, 0, len(points)*len(axis))
		for _, prefix := range points {
			for _, v := range axis {
				pt := append(append(make([]float64, 0, len(prefix)+1), prefix...), v)
				next = append(next, pt)
			}
		}
		points = next
	}
	return points
}

type sweepResult struct {
	state *problem.State
	err   error
	done  chan struct{}
}

// Run evaluates every point and records the cases in sweep order. A failing
// case is recorded as unsuccessful and the sweep continues. The state of the
// last case is returned.
func (d *FullFactorial) Run(ctx context.Context, p *problem.Problem, base component.Values, rec store.Recorder) (*problem.State, error) {
	if err := p.Setup(); err != nil {
		return nil, err
	}
	if len(d.DesVars) == 0 {
		return nil, errors.New("full factorial needs at least one design variable")
	}
	if d.Levels <= 0 {
		return nil, fmt.Errorf("full factorial needs a positive level count, got %d", d.Levels)
	}
	for _, dv := range d.DesVars {
		if err := dv.validate(p); err != nil {
			return nil, err
		}
	}

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > 1 && p.Stateful() {
		slog.Warn("Problem has stateful components, running sweep sequentially", "problem", p.Name, "requested_workers", workers)
		workers = 1
	}

	options := map[string]string{
		"levels":  strconv.Itoa(d.Levels),
		"workers": strconv.Itoa(workers),
	}
	if err := recordMetadata(ctx, rec, p, d.Name(), d.DesVars, d.Objectives, nil, options); err != nil {
		return nil, err
	}

	points := d.Points()
	results := make([]sweepResult, len(points))
	for i := range results {
		results[i].done = make(chan struct{})
	}

	slog.Debug("Starting sweep", "problem", p.Name, "cases", len(points), "workers", workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(workers)

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i, pt := range points {
			if ctx.Err() != nil {
				return
			}
			g.Go(func() error {
				defer close(results[i].done)
				overrides := base.Clone()
				for j, dv := range d.DesVars {
					overrides[dv.Name] = pt[j]
				}
				results[i].state, results[i].err = p.Evaluate(ctx, overrides)
				return nil
			})
		}
	}()

	// wait stops scheduling and drains in-flight cases.
	wait := func() {
		cancel()
		<-fed
		_ = g.Wait()
	}

	var last *problem.State
	failed := 0
	for i := range results {
		select {
		case <-results[i].done:
		case <-ctx.Done():
			err := ctx.Err()
			wait()
			return nil, err
		}

		r := results[i]
		if r.err != nil {
			if err := ctx.Err(); err != nil {
				wait()
				return nil, err
			}
			failed++
			slog.Warn("Case failed", "problem", p.Name, "case", i+1, "error", r.err)
		} else {
			last = r.state
		}

		if err := rec.RecordCase(ctx, newCase(i+1, d.Name(), r.state, r.err)); err != nil {
			wait()
			return nil, fmt.Errorf("record case: %w", err)
		}
	}
	wait()

	if last == nil {
		return nil, fmt.Errorf("all %d cases failed", len(points))
	}

	slog.Debug("Sweep complete", "problem", p.Name, "cases", len(points), "failed", failed)
	return last, nil
}
