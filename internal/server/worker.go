package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/petstudy/internal/runner"
	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/study"
	"github.com/cwbudde/petstudy/internal/timing"
)

// progressInterval throttles SSE progress events.
const progressInterval = 500 * time.Millisecond

// runJob executes a study job in the background and records it in st under
// the job ID.
func runJob(ctx context.Context, jm *JobManager, st store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// A job cancelled before its worker started never runs.
	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}

	s, err := study.Builtin(job.Config.Study)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.Objective = s.Objective()
		j.Driver = s.DriverName()
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "study", s.Name)

	progressDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorProgress(ctx, jm, jobID, progressDone)
	}()

	info, err := runner.Run(ctx, st, s, runner.Options{
		RunID: jobID,
		Build: study.Options{
			Workers:    job.Config.Workers,
			Levels:     job.Config.Levels,
			TimingPath: timingPath(st, jobID),
		},
		Observe: func(c store.Case, info store.RunInfo) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Cases = info.Cases
				j.BestObjective = info.BestObjective
				j.Driver = info.Driver
			})
		},
	})

	close(progressDone)
	wg.Wait()

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
	case err != nil:
		markJobFailed(jm, jobID, err)
	default:
		endTime := time.Now()
		jm.UpdateJob(jobID, func(j *Job) {
			j.State = StateCompleted
			j.Cases = info.Cases
			j.BestObjective = info.BestObjective
			j.EndTime = &endTime
		})
		slog.Info("Job completed", "job_id", jobID, "cases", info.Cases)
	}

	final, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(newProgressEvent(final))
	return err
}

// timingPath places a job's timing file in its run directory.
func timingPath(st store.Store, jobID string) string {
	return filepath.Join(st.RunDir(jobID), timing.DefaultPath)
}

// monitorProgress periodically broadcasts progress events while a job runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	lastCases := -1
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			if job.Cases == lastCases {
				continue
			}
			lastCases = job.Cases
			jm.broadcaster.Broadcast(newProgressEvent(job))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
