package driver

import (
	"context"
	"fmt"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/problem"
	"github.com/cwbudde/petstudy/internal/store"
)

// RunOnce evaluates the problem a single time.
type RunOnce struct{}

func (d *RunOnce) Name() string { return "RunOnce" }

func (d *RunOnce) Run(ctx context.Context, p *problem.Problem, base component.Values, rec store.Recorder) (*problem.State, error) {
	if err := p.Setup(); err != nil {
		return nil, err
	}
	if err := recordMetadata(ctx, rec, p, d.Name(), nil, nil, nil, nil); err != nil {
		return nil, err
	}

	state, err := p.Evaluate(ctx, base)
	if err != nil {
		return nil, err
	}
	if err := rec.RecordCase(ctx, newCase(1, d.Name(), state, nil)); err != nil {
		return nil, fmt.Errorf("record case: %w", err)
	}
	return state, nil
}
