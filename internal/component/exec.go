package component

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Exec is an expression component declared as "<out> = <expr>", for example
// "c = x - y". The params are the free identifiers of expr. Expressions are
// Go arithmetic and may call functions from the math package, min and max.
type Exec struct {
	output string
	inputs []string

	mu sync.Mutex
	fn func(map[string]float64) float64
}

// NewExec parses decl and compiles it with the yaegi interpreter.
func NewExec(decl string) (*Exec, error) {
	lhs, rhs, ok := strings.Cut(decl, "=")
	if !ok {
		return nil, fmt.Errorf("expression %q: missing '='", decl)
	}

	output := strings.TrimSpace(lhs)
	if !token.IsIdentifier(output) {
		return nil, fmt.Errorf("expression %q: %q is not a valid output name", decl, output)
	}

	expr, err := parser.ParseExpr(strings.TrimSpace(rhs))
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", decl, err)
	}

	inputs, usesMath, helpers := freeIdents(expr)
	for _, in := range inputs {
		if in == output {
			return nil, fmt.Errorf("expression %q: output %q also used as input", decl, output)
		}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}

	if _, err := i.Eval(wrapExpr(strings.TrimSpace(rhs), inputs, usesMath, helpers)); err != nil {
		return nil, fmt.Errorf("expression %q: evaluation failed: %w", decl, err)
	}

	v, err := i.Eval("main.Expr")
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", decl, err)
	}

	fn, ok := v.Interface().(func(map[string]float64) float64)
	if !ok {
		return nil, fmt.Errorf("expression %q: unexpected compiled signature", decl)
	}

	slog.Debug("Compiled expression", "decl", decl, "inputs", inputs)

	return &Exec{
		output: output,
		inputs: inputs,
		fn:     fn,
	}, nil
}

func (e *Exec) Params() []Port {
	ports := make([]Port, len(e.inputs))
	for i, name := range e.inputs {
		ports[i] = Port{Name: name}
	}
	return ports
}

func (e *Exec) Unknowns() []Port { return []Port{{Name: e.output}} }

func (e *Exec) Solve(ctx context.Context, params Values) (Values, error) {
	in := make(map[string]float64, len(e.inputs))
	for _, name := range e.inputs {
		in[name] = params[name]
	}

	// Interpreted closures are not safe for concurrent calls.
	e.mu.Lock()
	out := e.fn(in)
	e.mu.Unlock()

	return Values{e.output: out}, nil
}

// numericHelpers stand in for the min and max builtins, which the
// interpreter does not provide.
var numericHelpers = map[string]string{
	"min": "func min(x float64, ys ...float64) float64 {\n\tfor _, y := range ys {\n\t\tx = math.Min(x, y)\n\t}\n\treturn x\n}\n\n",
	"max": "func max(x float64, ys ...float64) float64 {\n\tfor _, y := range ys {\n\t\tx = math.Max(x, y)\n\t}\n\treturn x\n}\n\n",
}

// wrapExpr produces the interpreted source for an expression.
func wrapExpr(expr string, inputs []string, usesMath bool, helpers []string) string {
	var b strings.Builder
	b.WriteString("package main\n\n")
	if usesMath || len(helpers) > 0 {
		b.WriteString("import \"math\"\n\n")
	}
	for _, name := range helpers {
		b.WriteString(numericHelpers[name])
	}
	b.WriteString("func Expr(in__ map[string]float64) float64 {\n")
	for _, name := range inputs {
		fmt.Fprintf(&b, "\t%s := in__[%q]\n", name, name)
	}
	fmt.Fprintf(&b, "\treturn float64(%s)\n}\n", expr)
	return b.String()
}

var predeclared = map[string]bool{
	"true": true, "false": true, "nil": true,
	"float64": true, "int": true, "min": true, "max": true,
}

// freeIdents returns the variable names referenced by expr in order of first
// appearance, whether the math package is referenced and which of min and
// max are called.
func freeIdents(expr ast.Expr) ([]string, bool, []string) {
	var names, helpers []string
	seen := make(map[string]bool)
	called := make(map[string]bool)
	usesMath := false

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		ast.Inspect(n, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.SelectorExpr:
				if id, ok := n.X.(*ast.Ident); ok && id.Name == "math" {
					usesMath = true
					return false
				}
				walk(n.X)
				return false
			case *ast.CallExpr:
				if id, ok := n.Fun.(*ast.Ident); !ok {
					walk(n.Fun)
				} else if _, ok := numericHelpers[id.Name]; ok && !called[id.Name] {
					called[id.Name] = true
					helpers = append(helpers, id.Name)
				}
				for _, arg := range n.Args {
					walk(arg)
				}
				return false
			case *ast.Ident:
				if !predeclared[n.Name] && !seen[n.Name] {
					seen[n.Name] = true
					names = append(names, n.Name)
				}
			}
			return true
		})
	}
	walk(expr)

	return names, usesMath, helpers
}
