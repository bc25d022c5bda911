package problem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cwbudde/petstudy/internal/component"
	"github.com/cwbudde/petstudy/internal/store"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Driver runs a problem and returns the state it settles on.
// base holds indep overrides applied to every evaluation; design variables
// take precedence over them.
type Driver interface {
	Name() string
	Run(ctx context.Context, p *Problem, base component.Values, rec store.Recorder) (*State, error)
}

// State is the result of one evaluation of a problem.
type State struct {
	Params   component.Values `json:"params"`
	Unknowns component.Values `json:"unknowns"`
}

// Value returns the unknown at path.
func (s *State) Value(path string) (float64, bool) {
	v, ok := s.Unknowns[path]
	return v, ok
}

type node struct {
	name string
	comp component.Component
}

// Problem is a graph of named components connected port to port.
// A problem is not modified by evaluation, so Evaluate may run concurrently
// unless Stateful reports true.
type Problem struct {
	Name   string
	Driver Driver

	nodes []node
	index map[string]int
	conns map[string]string // target path -> source path

	order []int
	ready bool
}

// New creates an empty problem.
func New(name string) *Problem {
	return &Problem{
		Name:  name,
		index: make(map[string]int),
		conns: make(map[string]string),
	}
}

// Add registers a component under name.
func (p *Problem) Add(name string, c component.Component) error {
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("invalid component name %q", name)
	}
	if _, exists := p.index[name]; exists {
		return fmt.Errorf("component %q already exists", name)
	}
	p.index[name] = len(p.nodes)
	p.nodes = append(p.nodes, node{name: name, comp: c})
	p.ready = false
	return nil
}

// Connect binds the unknown at src to the param at tgt.
func (p *Problem) Connect(src, tgt string) error {
	if prev, exists := p.conns[tgt]; exists {
		return fmt.Errorf("%s is already connected to %s", tgt, prev)
	}
	p.conns[tgt] = src
	p.ready = false
	return nil
}

// SplitPath splits "comp.port" at the first dot.
func SplitPath(path string) (comp, port string, err error) {
	comp, port, ok := strings.Cut(path, ".")
	if !ok || comp == "" || port == "" {
		return "", "", fmt.Errorf("invalid variable path %q", path)
	}
	return comp, port, nil
}

func (p *Problem) lookup(path string) (node, string, error) {
	comp, port, err := SplitPath(path)
	if err != nil {
		return node{}, "", err
	}
	i, ok := p.index[comp]
	if !ok {
		return node{}, "", fmt.Errorf("%s: no component named %q", path, comp)
	}
	return p.nodes[i], port, nil
}

func hasPort(ports []component.Port, name string) (component.Port, bool) {
	for _, pt := range ports {
		if pt.Name == name {
			return pt, true
		}
	}
	return component.Port{}, false
}

// Setup validates connections and computes the execution order.
// It is idempotent and called implicitly by Evaluate.
func (p *Problem) Setup() error {
	if p.ready {
		return nil
	}

	g := simple.NewDirectedGraph()
	for i := range p.nodes {
		g.AddNode(simple.Node(i))
	}

	targets := make([]string, 0, len(p.conns))
	for tgt := range p.conns {
		targets = append(targets, tgt)
	}
	sort.Strings(targets)

	for _, tgt := range targets {
		src := p.conns[tgt]

		srcNode, srcPort, err := p.lookup(src)
		if err != nil {
			return fmt.Errorf("connect %s -> %s: %w", src, tgt, err)
		}
		if _, ok := hasPort(srcNode.comp.Unknowns(), srcPort); !ok {
			return fmt.Errorf("connect %s -> %s: %s is not an unknown", src, tgt, src)
		}

		tgtNode, tgtPort, err := p.lookup(tgt)
		if err != nil {
			return fmt.Errorf("connect %s -> %s: %w", src, tgt, err)
		}
		if _, ok := hasPort(tgtNode.comp.Params(), tgtPort); !ok {
			return fmt.Errorf("connect %s -> %s: %s is not a param", src, tgt, tgt)
		}

		from, to := p.index[srcNode.name], p.index[tgtNode.name]
		if from == to {
			return fmt.Errorf("connect %s -> %s: component connected to itself", src, tgt)
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
	}

	sorted, err := topo.SortStabilized(g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	})
	if err != nil {
		return fmt.Errorf("problem %s has a connection cycle: %w", p.Name, err)
	}

	p.order = make([]int, len(sorted))
	for i, n := range sorted {
		p.order[i] = int(n.ID())
	}
	p.ready = true

	slog.Debug("Problem set up", "problem", p.Name, "components", len(p.nodes), "connections", len(p.conns))
	return nil
}

// Stateful reports whether any component has side effects outside the graph.
func (p *Problem) Stateful() bool {
	for _, n := range p.nodes {
		if component.IsStateful(n.comp) {
			return true
		}
	}
	return false
}

// IndepValue returns the configured value of an indep output.
func (p *Problem) IndepValue(path string) (float64, bool) {
	n, port, err := p.lookup(path)
	if err != nil {
		return 0, false
	}
	if _, ok := n.comp.(*component.Indep); !ok {
		return 0, false
	}
	pt, ok := hasPort(n.comp.Unknowns(), port)
	return pt.Default, ok
}

// HasUnknown reports whether path names a component output.
func (p *Problem) HasUnknown(path string) bool {
	n, port, err := p.lookup(path)
	if err != nil {
		return false
	}
	_, ok := hasPort(n.comp.Unknowns(), port)
	return ok
}

// ParamPaths lists every component input path in execution order.
func (p *Problem) ParamPaths() []string {
	var paths []string
	p.walk(func(n node) {
		for _, pt := range n.comp.Params() {
			paths = append(paths, n.name+"."+pt.Name)
		}
	})
	return paths
}

// UnknownPaths lists every component output path in execution order.
func (p *Problem) UnknownPaths() []string {
	var paths []string
	p.walk(func(n node) {
		for _, pt := range n.comp.Unknowns() {
			paths = append(paths, n.name+"."+pt.Name)
		}
	})
	return paths
}

func (p *Problem) walk(fn func(node)) {
	if err := p.Setup(); err != nil {
		for _, n := range p.nodes {
			fn(n)
		}
		return
	}
	for _, i := range p.order {
		fn(p.nodes[i])
	}
}

// Evaluate runs every component once in dependency order. overrides set indep
// outputs by path.
func (p *Problem) Evaluate(ctx context.Context, overrides component.Values) (*State, error) {
	if err := p.Setup(); err != nil {
		return nil, err
	}

	for path := range overrides {
		if _, ok := p.IndepValue(path); !ok {
			return nil, fmt.Errorf("override %s is not an independent variable", path)
		}
	}

	state := &State{
		Params:   make(component.Values),
		Unknowns: make(component.Values),
	}

	for _, i := range p.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := p.nodes[i]
		params := make(component.Values)
		for _, pt := range n.comp.Params() {
			path := n.name + "." + pt.Name
			v := pt.Default
			if src, ok := p.conns[path]; ok {
				v = state.Unknowns[src]
			}
			params[pt.Name] = v
			state.Params[path] = v
		}

		out, err := n.comp.Solve(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", n.name, err)
		}

		for _, pt := range n.comp.Unknowns() {
			path := n.name + "." + pt.Name
			v, ok := out[pt.Name]
			if !ok {
				return nil, fmt.Errorf("component %s did not produce %s", n.name, pt.Name)
			}
			if o, ok := overrides[path]; ok {
				v = o
			}
			state.Unknowns[path] = v
		}
	}

	return state, nil
}

// Run sets up the problem and hands it to its driver.
func (p *Problem) Run(ctx context.Context, rec store.Recorder) (*State, error) {
	if p.Driver == nil {
		return nil, fmt.Errorf("problem %s has no driver", p.Name)
	}
	if err := p.Setup(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = store.Discard
	}
	return p.Driver.Run(ctx, p, nil, rec)
}
