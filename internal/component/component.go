package component

import (
	"context"
)

// Values maps port names to scalar values.
type Values map[string]float64

// Clone returns an independent copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Port is a named scalar input or output with its default value.
type Port struct {
	Name    string  `json:"name" yaml:"name"`
	Default float64 `json:"default" yaml:"default"`
}

// Component is a node in a problem graph.
// Solve receives a value for every declared param and must return a value
// for every declared unknown.
type Component interface {
	Params() []Port
	Unknowns() []Port
	Solve(ctx context.Context, params Values) (Values, error)
}

// Stateful is implemented by components with side effects outside the graph.
// Problems containing a stateful component are evaluated sequentially.
type Stateful interface {
	Stateful() bool
}

// IsStateful reports whether c declares itself stateful.
func IsStateful(c Component) bool {
	s, ok := c.(Stateful)
	return ok && s.Stateful()
}

// Indep holds independent variables: it has no params and returns its
// configured outputs. A problem overrides these values per evaluation.
type Indep struct {
	outputs []Port
}

// NewIndep creates an independent variable holder.
func NewIndep(outputs ...Port) *Indep {
	return &Indep{outputs: append([]Port(nil), outputs...)}
}

func (c *Indep) Params() []Port   { return nil }
func (c *Indep) Unknowns() []Port { return c.outputs }

func (c *Indep) Solve(ctx context.Context, params Values) (Values, error) {
	out := make(Values, len(c.outputs))
	for _, p := range c.outputs {
		out[p.Name] = p.Default
	}
	return out, nil
}
