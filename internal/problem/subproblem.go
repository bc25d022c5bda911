package problem

import (
	"context"
	"fmt"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/store"
)

// SubProblem exposes a nested problem as a single component. Its params are
// indep outputs of the inner problem and its unknowns are inner outputs, both
// named by their inner path (so a parent addresses them as "Sub.p1.x").
type SubProblem struct {
	problem  *Problem
	params   []string
	unknowns []string
}

// NewSubProblem wraps p. Each params entry must be an indep output of p and
// each unknowns entry an output of p.
func NewSubProblem(p *Problem, params, unknowns []string) (*SubProblem, error) {
	if err := p.Setup(); err != nil {
		return nil, err
	}
	for _, path := range params {
		if _, ok := p.IndepValue(path); !ok {
			return nil, fmt.Errorf("subproblem %s: param %s is not an independent variable", p.Name, path)
		}
	}
	for _, path := range unknowns {
		if !p.HasUnknown(path) {
			return nil, fmt.Errorf("subproblem %s: unknown %s does not exist", p.Name, path)
		}
	}
	return &SubProblem{
		problem:  p,
		params:   append([]string(nil), params...),
		unknowns: append([]string(nil), unknowns...),
	}, nil
}

func (s *SubProblem) Params() []component.Port {
	ports := make([]component.Port, len(s.params))
	for i, path := range s.params {
		v, _ := s.problem.IndepValue(path)
		ports[i] = component.Port{Name: path, Default: v}
	}
	return ports
}

func (s *SubProblem) Unknowns() []component.Port {
	ports := make([]component.Port, len(s.unknowns))
	for i, path := range s.unknowns {
		ports[i] = component.Port{Name: path}
	}
	return ports
}

func (s *SubProblem) Stateful() bool { return s.problem.Stateful() }

// Solve runs the inner driver with params as indep overrides and returns the
// exposed values of the state it settles on. Inner runs are not recorded.
func (s *SubProblem) Solve(ctx context.Context, params component.Values) (component.Values, error) {
	base := make(component.Values, len(s.params))
	for _, path := range s.params {
		base[path] = params[path]
	}

	var (
		state *State
		err   error
	)
	if s.problem.Driver == nil {
		state, err = s.problem.Evaluate(ctx, base)
	} else {
		state, err = s.problem.Driver.Run(ctx, s.problem, base, store.Discard)
	}
	if err != nil {
		return nil, fmt.Errorf("subproblem %s: %w", s.problem.Name, err)
	}

	out := make(component.Values, len(s.unknowns))
	for _, path := range s.unknowns {
		v, ok := state.Value(path)
		if !ok {
			return nil, fmt.Errorf("subproblem %s: %s missing from final state", s.problem.Name, path)
		}
		out[path] = v
	}
	return out, nil
}
