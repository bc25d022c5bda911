package server

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/timing"
)

func newTestStore(t *testing.T) *store.FSStore {
	t.Helper()
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	return st
}

func TestRunJob_Success(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "parameter-study", Levels: 3, Workers: 2})

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Cases != 9 {
		t.Errorf("Expected 9 cases, got %d", updated.Cases)
	}
	if updated.Driver != "FullFactorial" {
		t.Errorf("Expected FullFactorial driver, got %q", updated.Driver)
	}
	if updated.BestObjective == nil || *updated.BestObjective != 22 {
		t.Errorf("Expected best objective 22, got %v", updated.BestObjective)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}

	// The job ID doubles as the run ID.
	info, err := st.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if info.State != store.RunCompleted || info.Cases != 9 {
		t.Errorf("Unexpected persisted run %+v", info)
	}
}

func TestRunJob_Optimizer(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "constants-sub"})

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Fatalf("Job should be completed, got %s (%s)", updated.State, updated.Error)
	}
	if updated.BestObjective == nil || math.Abs(*updated.BestObjective-198) > 1e-2 {
		t.Errorf("Expected best objective near 198, got %v", updated.BestObjective)
	}
}

func TestRunJob_TimingFileInRunDir(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "initial-condition-profiling", Levels: 2})

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	path := filepath.Join(st.RunDir(job.ID), timing.DefaultPath)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected timing file at %s: %v", path, err)
	}
}

func TestRunJob_UnknownStudy(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "no-such-study"})

	if err := runJob(context.Background(), jm, st, job.ID); err == nil {
		t.Error("runJob should fail with an unknown study")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_NonexistentJob(t *testing.T) {
	jm := NewJobManager()

	if err := runJob(context.Background(), jm, newTestStore(t), "nonexistent"); err == nil {
		t.Error("runJob should fail for nonexistent job")
	}
}

func TestRunJob_Cancelled(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "parameter-study"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, st, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_BroadcastsFinalEvent(t *testing.T) {
	st := newTestStore(t)
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Study: "paraboloid"})
	ch := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, ch)

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	var last ProgressEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.State != StateCompleted || last.Cases != 1 {
		t.Errorf("Expected final completed event with 1 case, got %+v", last)
	}
}
