package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/petstudy/internal/store"
	"github.com/cwbudde/petstudy/internal/study"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	server     *http.Server

	// jobs run under baseCtx so Shutdown can stop them
	baseCtx context.Context
	stop    context.CancelFunc
	workers sync.WaitGroup
}

// NewServer creates a new HTTP server that records jobs in st
func NewServer(addr string, st store.Store) *Server {
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      st,
		addr:       addr,
		baseCtx:    ctx,
		stop:       stop,
	}
}

// Handler returns the routed and wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/studies", s.handleStudies)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, waits for their workers and gracefully
// shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")

	if running := s.jobManager.GetRunningJobs(); len(running) > 0 {
		slog.Info("Cancelling running jobs", "count", len(running))
	}
	s.stop()
	s.jobManager.CancelAll()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleStudies handles GET /api/v1/studies
func (s *Server) handleStudies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	infos, err := study.Builtins()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	jobID := parts[0]

	// Route based on subpath
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteJob(w, r, jobID)
	case r.Method != http.MethodGet:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "cases":
		s.handleGetCases(w, r, jobID)
	case parts[1] == "events":
		s.handleJobStream(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	// Validate config
	if config.Study == "" {
		writeError(w, http.StatusBadRequest, "study is required")
		return
	}
	if _, err := study.Builtin(config.Study); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if config.Workers < 0 || config.Levels < 0 {
		writeError(w, http.StatusBadRequest, "workers and levels must not be negative")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no run store configured")
		return
	}

	// Create job
	job := s.jobManager.CreateJob(config)

	// Start worker in background
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.setCancel(job.ID, cancel)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		defer s.jobManager.clearCancel(job.ID)
		runJob(ctx, s.jobManager, s.store, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            job.ID,
		"state":         job.State,
		"config":        job.Config,
		"driver":        job.Driver,
		"cases":         job.Cases,
		"objective":     job.Objective,
		"bestObjective": job.BestObjective,
		"elapsed":       elapsed.Seconds(),
		"startTime":     job.StartTime,
		"endTime":       job.EndTime,
		"error":         job.Error,
	})
}

// handleGetCases handles GET /api/v1/jobs/:id/cases?since=N
// It serves any run in the store, not only jobs started by this server.
func (s *Server) handleGetCases(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no run store configured")
		return
	}

	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	path := filepath.Join(s.store.RunDir(jobID), store.CasesFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "No cases recorded")
		return
	}

	db, err := store.OpenCaseDB(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer db.Close()

	cases, err := db.Cases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]store.Case, 0, len(cases))
	for _, c := range cases {
		if c.Iteration > since {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteJob handles DELETE /api/v1/jobs/:id. A running job is
// cancelled; a finished job is removed together with its recorded run.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	if !job.State.Done() {
		if err := s.jobManager.CancelJob(jobID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
		return
	}

	if err := s.jobManager.RemoveJob(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.DeleteRun(jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
