// Package driver runs problems: a single evaluation, an optimization or a
// full-factorial sweep. Every evaluation a driver performs is recorded as a
// store.Case.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/problem"
	"github.com/cwbudde/petstudy/internal/store"
)

// DesVar is a design variable: an indep output the driver sets, with bounds.
type DesVar struct {
	Name  string  `json:"name" yaml:"name"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

func (d DesVar) validate(p *problem.Problem) error {
	if _, ok := p.IndepValue(d.Name); !ok {
		return fmt.Errorf("design variable %s is not an independent variable", d.Name)
	}
	if d.Lower > d.Upper {
		return fmt.Errorf("design variable %s: lower %g above upper %g", d.Name, d.Lower, d.Upper)
	}
	return nil
}

func desVarNames(dvs []DesVar) []string {
	names := make([]string, len(dvs))
	for i, d := range dvs {
		names[i] = d.Name
	}
	return names
}

func recordMetadata(ctx context.Context, rec store.Recorder, p *problem.Problem, driver string, dvs []DesVar, objectives, constraints []string, options map[string]string) error {
	meta := store.Metadata{
		Study:       p.Name,
		Driver:      driver,
		Params:      p.ParamPaths(),
		Unknowns:    p.UnknownPaths(),
		DesVars:     desVarNames(dvs),
		Objectives:  objectives,
		Constraints: constraints,
		Options:     options,
	}
	if err := rec.RecordMetadata(ctx, meta); err != nil {
		return fmt.Errorf("record metadata: %w", err)
	}
	return nil
}

// newCase converts an evaluation into a recorded case. A nil state with an
// error records a failed case.
func newCase(iteration int, driver string, state *problem.State, err error) store.Case {
	c := store.Case{
		Iteration: iteration,
		Coord:     fmt.Sprintf("%s/%d", driver, iteration),
		Timestamp: time.Now(),
		Success:   err == nil,
	}
	if state != nil {
		c.Params = state.Params.Clone()
		c.Unknowns = state.Unknowns.Clone()
	}
	if err != nil {
		c.Msg = err.Error()
	}
	if c.Unknowns == nil {
		c.Unknowns = component.Values{}
	}
	return c
}
