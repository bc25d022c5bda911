// Package runner executes a study and records it as a run in a store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/study"
)

// Options control a single run.
type Options struct {
	// RunID names the run; a new UUID is used when empty.
	RunID string

	Build study.Options

	// Observe is called after every recorded case with a snapshot of the run.
	Observe func(c store.Case, info store.RunInfo)
}

// Run builds the study, drives it to completion and persists the run record
// with its case database and trace. The returned RunInfo reflects the final
// state even when an error is returned, unless the study failed to build.
func Run(ctx context.Context, st store.Store, s *study.Study, opts Options) (*store.RunInfo, error) {
	p, err := s.Build(opts.Build)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	info := store.NewRunInfo(runID, s.Name, p.Driver.Name())
	info.Objective = s.Objective()
	info.Workers = opts.Build.Workers
	if err := st.SaveRun(info); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	rec, err := store.OpenRecorder(st, runID)
	if err != nil {
		info.Finish(store.RunFailed, err)
		_ = st.SaveRun(info)
		return info, err
	}

	var mu sync.Mutex
	rec = store.Observer(rec, func(c store.Case) {
		mu.Lock()
		info.Observe(c)
		snapshot := *info
		mu.Unlock()

		if opts.Observe != nil {
			opts.Observe(c, snapshot)
		}
	})

	slog.Info("Starting run", "run_id", runID, "study", s.Name, "driver", info.Driver)
	start := time.Now()

	_, runErr := p.Run(ctx, rec)
	closeErr := rec.Close()

	mu.Lock()
	defer mu.Unlock()

	switch {
	case ctx.Err() != nil && (runErr == nil || errors.Is(runErr, ctx.Err())):
		runErr = ctx.Err()
		info.Finish(store.RunCancelled, nil)
		slog.Info("Run cancelled", "run_id", runID, "cases", info.Cases)
	case runErr != nil || closeErr != nil:
		runErr = errors.Join(runErr, closeErr)
		info.Finish(store.RunFailed, runErr)
		slog.Error("Run failed", "run_id", runID, "error", runErr)
	default:
		info.Finish(store.RunCompleted, nil)
		attrs := []any{"run_id", runID, "cases", info.Cases, "elapsed", time.Since(start)}
		if info.BestObjective != nil {
			attrs = append(attrs, "objective", info.Objective, "best", *info.BestObjective)
		}
		slog.Info("Run completed", attrs...)
	}

	if err := st.SaveRun(info); err != nil {
		return info, errors.Join(runErr, fmt.Errorf("failed to save run: %w", err))
	}
	return info, runErr
}
