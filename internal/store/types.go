package store

import (
	"math"
	"time"
)

// RunState is the lifecycle state of a recorded run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Case is one recorded evaluation of a problem.
type Case struct {
	// Iteration is the 1-based index of the case within the run
	Iteration int `json:"iteration"`

	// Coord names the driver iteration, e.g. "FullFactorial/12"
	Coord string `json:"coord"`

	Timestamp time.Time `json:"timestamp"`

	// Params holds every component input by path ("Paraboloid.x")
	Params map[string]float64 `json:"params,omitempty"`

	// Unknowns holds every component output by path ("Paraboloid.f_xy")
	Unknowns map[string]float64 `json:"unknowns"`

	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

// Metadata describes the recorded problem.
type Metadata struct {
	Study       string            `json:"study"`
	Driver      string            `json:"driver"`
	Params      []string          `json:"params"`
	Unknowns    []string          `json:"unknowns"`
	DesVars     []string          `json:"desvars,omitempty"`
	Objectives  []string          `json:"objectives,omitempty"`
	Constraints []string          `json:"constraints,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// RunInfo is the persisted summary of a run.
type RunInfo struct {
	ID        string   `json:"id"`
	Study     string   `json:"study"`
	Driver    string   `json:"driver"`
	State     RunState `json:"state"`
	Cases     int      `json:"cases"`
	Workers   int      `json:"workers,omitempty"`
	Objective string   `json:"objective,omitempty"`

	// BestObjective is the lowest recorded value of Objective, if any
	BestObjective *float64 `json:"bestObjective,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// NewRunInfo creates a running record for a study.
func NewRunInfo(runID, study, driver string) *RunInfo {
	return &RunInfo{
		ID:        runID,
		Study:     study,
		Driver:    driver,
		State:     RunRunning,
		StartTime: time.Now(),
	}
}

// Observe folds a recorded case into the summary. Failed cases and
// non-finite objective values never become the best objective.
func (r *RunInfo) Observe(c Case) {
	r.Cases++
	if r.Objective == "" || !c.Success {
		return
	}
	v, ok := c.Unknowns[r.Objective]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if r.BestObjective == nil || v < *r.BestObjective {
		best := v
		r.BestObjective = &best
	}
}

// Finish marks the run as ended with the given state and error.
func (r *RunInfo) Finish(state RunState, err error) {
	end := time.Now()
	r.State = state
	r.EndTime = &end
	if err != nil {
		r.Error = err.Error()
	}
}

// Validate checks if the run record has valid data.
func (r *RunInfo) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Study == "" {
		return &ValidationError{Field: "Study", Reason: "cannot be empty"}
	}
	switch r.State {
	case RunRunning, RunCompleted, RunFailed, RunCancelled:
	default:
		return &ValidationError{Field: "State", Reason: "unknown state " + string(r.State)}
	}
	if r.Cases < 0 {
		return &ValidationError{Field: "Cases", Reason: "cannot be negative"}
	}
	if r.StartTime.IsZero() {
		return &ValidationError{Field: "StartTime", Reason: "cannot be zero"}
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		return &ValidationError{Field: "EndTime", Reason: "before StartTime"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
