// Package study loads YAML study files and builds them into problems.
package study

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Study is a named, runnable problem tree.
type Study struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Problem     ProblemSpec `yaml:"problem"`
}

// ProblemSpec describes one problem: its components, connections and driver.
type ProblemSpec struct {
	Name        string          `yaml:"name"`
	Components  []ComponentSpec `yaml:"components"`
	Connections []Connection    `yaml:"connections,omitempty"`
	Driver      *DriverSpec     `yaml:"driver,omitempty"`
}

// Connection binds an unknown (Src) to a param (Tgt).
type Connection struct {
	Src string `yaml:"src"`
	Tgt string `yaml:"tgt"`
}

// Component types.
const (
	TypeParaboloid  = "paraboloid"
	TypeParabola    = "parabola"
	TypeSum         = "sum"
	TypeIndep       = "indep"
	TypeExec        = "exec"
	TypeSaveTime    = "savetime"
	TypeMeasureTime = "measuretime"
	TypeSubProblem  = "subproblem"
)

// ComponentSpec describes one component. Which fields apply depends on Type.
type ComponentSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// indep
	Outputs []Output `yaml:"outputs,omitempty"`

	// exec
	Expr string `yaml:"expr,omitempty"`

	// savetime, measuretime; empty uses the run's timing file
	Path string `yaml:"path,omitempty"`

	// subproblem
	Params   []string     `yaml:"params,omitempty"`
	Unknowns []string     `yaml:"unknowns,omitempty"`
	Problem  *ProblemSpec `yaml:"problem,omitempty"`
}

// Output is an indep output and its value.
type Output struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

// Driver types.
const (
	DriverRunOnce       = "runonce"
	DriverOptimizer     = "optimizer"
	DriverFullFactorial = "fullfactorial"
)

// DriverSpec configures a problem's driver.
type DriverSpec struct {
	Type    string   `yaml:"type"`
	DesVars []DesVar `yaml:"desvars,omitempty"`

	// optimizer
	Objective   string       `yaml:"objective,omitempty"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
	Method      string       `yaml:"method,omitempty"`
	Tol         float64      `yaml:"tol,omitempty"`
	MaxIter     int          `yaml:"maxiter,omitempty"`
	Rhobeg      float64      `yaml:"rhobeg,omitempty"`
	Seed        int64        `yaml:"seed,omitempty"`
	PopSize     int          `yaml:"popsize,omitempty"`

	// fullfactorial
	Levels     int      `yaml:"levels,omitempty"`
	Workers    int      `yaml:"workers,omitempty"`
	Objectives []string `yaml:"objectives,omitempty"`
}

// DesVar is a bounded design variable.
type DesVar struct {
	Name  string  `yaml:"name"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Constraint bounds an unknown.
type Constraint struct {
	Name   string   `yaml:"name"`
	Lower  *float64 `yaml:"lower,omitempty"`
	Upper  *float64 `yaml:"upper,omitempty"`
	Equals *float64 `yaml:"equals,omitempty"`
}

// Parse decodes a single YAML study document. Unknown fields are rejected.
func Parse(data []byte) (*Study, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Study
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty study document")
		}
		return nil, fmt.Errorf("decode study: %w", err)
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return nil, errors.New("multiple YAML documents in one study are not supported")
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode study: %w", err)
	}

	if s.Name == "" {
		return nil, errors.New("study has no name")
	}
	if s.Problem.Name == "" {
		s.Problem.Name = s.Name
	}
	return &s, nil
}

// Load reads a study file.
func Load(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Resolve returns the built-in study called ref or, failing that, loads ref
// as a file path.
func Resolve(ref string) (*Study, error) {
	if s, err := Builtin(ref); err == nil {
		return s, nil
	}
	if _, err := os.Stat(ref); err != nil {
		return nil, fmt.Errorf("no built-in study or file named %q", ref)
	}
	return Load(ref)
}

// Objective returns the first objective of the top-level driver, if any.
func (s *Study) Objective() string {
	d := s.Problem.Driver
	if d == nil {
		return ""
	}
	if d.Objective != "" {
		return d.Objective
	}
	if len(d.Objectives) > 0 {
		return d.Objectives[0]
	}
	return ""
}

// DriverName returns the top-level driver type.
func (s *Study) DriverName() string {
	if s.Problem.Driver == nil || s.Problem.Driver.Type == "" {
		return DriverRunOnce
	}
	return s.Problem.Driver.Type
}
