package store

// Store defines the interface for run persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically saves the run record, overwriting any previous one.
	SaveRun(info *RunInfo) error

	// LoadRun retrieves the run record for the given id.
	LoadRun(runID string) (*RunInfo, error)

	// ListRuns returns all readable run records. The slice may be empty.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and all associated artifacts:
	// run.json, cases.db and trace.jsonl.
	DeleteRun(runID string) error

	// RunDir returns the directory holding the run's artifacts.
	RunDir(runID string) string
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
