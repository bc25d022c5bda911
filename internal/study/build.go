package study

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/driver"
	"github.com/cwbudde/petstudy/internal/problem"
	"github.com/cwbudde/petstudy/internal/timing"
)

// Options adjust a study at build time.
type Options struct {
	// TimingPath replaces the path of timing components that do not set one.
	TimingPath string

	// Workers and Levels override the top-level full-factorial driver when
	// positive.
	Workers int
	Levels  int
}

// Build assembles the study into a runnable problem.
func (s *Study) Build(opts Options) (*problem.Problem, error) {
	if opts.TimingPath == "" {
		opts.TimingPath = timing.DefaultPath
	}

	p, err := buildProblem(&s.Problem, opts, true)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", s.Name, err)
	}
	slog.Debug("Study built", "study", s.Name, "driver", p.Driver.Name())
	return p, nil
}

func buildProblem(spec *ProblemSpec, opts Options, top bool) (*problem.Problem, error) {
	p := problem.New(spec.Name)

	for _, cs := range spec.Components {
		c, err := buildComponent(cs, opts)
		if err != nil {
			return nil, fmt.Errorf("problem %s: component %s: %w", spec.Name, cs.Name, err)
		}
		if err := p.Add(cs.Name, c); err != nil {
			return nil, fmt.Errorf("problem %s: %w", spec.Name, err)
		}
	}

	for _, conn := range spec.Connections {
		if err := p.Connect(conn.Src, conn.Tgt); err != nil {
			return nil, fmt.Errorf("problem %s: %w", spec.Name, err)
		}
	}

	d, err := buildDriver(spec.Driver, opts, top)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", spec.Name, err)
	}
	p.Driver = d

	if err := p.Setup(); err != nil {
		return nil, err
	}
	return p, nil
}

func buildComponent(cs ComponentSpec, opts Options) (component.Component, error) {
	switch cs.Type {
	case TypeParaboloid:
		return component.NewParaboloid(), nil
	case TypeParabola:
		return component.NewParabola(), nil
	case TypeSum:
		return component.NewSum(), nil
	case TypeIndep:
		if len(cs.Outputs) == 0 {
			return nil, fmt.Errorf("indep needs at least one output")
		}
		ports := make([]component.Port, len(cs.Outputs))
		for i, o := range cs.Outputs {
			ports[i] = component.Port{Name: o.Name, Default: o.Value}
		}
		return component.NewIndep(ports...), nil
	case TypeExec:
		return component.NewExec(cs.Expr)
	case TypeSaveTime:
		return &component.SaveTime{Path: timingPath(cs, opts)}, nil
	case TypeMeasureTime:
		return &component.MeasureTime{Path: timingPath(cs, opts)}, nil
	case TypeSubProblem:
		if cs.Problem == nil {
			return nil, fmt.Errorf("subproblem needs a problem")
		}
		inner, err := buildProblem(cs.Problem, opts, false)
		if err != nil {
			return nil, err
		}
		return problem.NewSubProblem(inner, cs.Params, cs.Unknowns)
	default:
		return nil, fmt.Errorf("unknown component type %q", cs.Type)
	}
}

func timingPath(cs ComponentSpec, opts Options) string {
	if cs.Path != "" {
		return cs.Path
	}
	return opts.TimingPath
}

func buildDriver(ds *DriverSpec, opts Options, top bool) (problem.Driver, error) {
	if ds == nil {
		return &driver.RunOnce{}, nil
	}

	desVars := make([]driver.DesVar, len(ds.DesVars))
	for i, dv := range ds.DesVars {
		desVars[i] = driver.DesVar{Name: dv.Name, Lower: dv.Lower, Upper: dv.Upper}
	}

	switch ds.Type {
	case "", DriverRunOnce:
		return &driver.RunOnce{}, nil

	case DriverOptimizer:
		constraints := make([]driver.Constraint, len(ds.Constraints))
		for i, c := range ds.Constraints {
			constraints[i] = driver.Constraint{Name: c.Name, Lower: c.Lower, Upper: c.Upper, Equals: c.Equals}
		}
		return &driver.Optimizer{
			DesVars:     desVars,
			Objective:   ds.Objective,
			Constraints: constraints,
			Method:      ds.Method,
			Tol:         ds.Tol,
			MaxIter:     ds.MaxIter,
			Rhobeg:      ds.Rhobeg,
			Seed:        ds.Seed,
			PopSize:     ds.PopSize,
		}, nil

	case DriverFullFactorial:
		d := &driver.FullFactorial{
			DesVars:    desVars,
			Levels:     ds.Levels,
			Workers:    ds.Workers,
			Objectives: ds.Objectives,
		}
		if top && opts.Levels > 0 {
			d.Levels = opts.Levels
		}
		if top && opts.Workers > 0 {
			d.Workers = opts.Workers
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown driver type %q", ds.Type)
	}
}
