// Package server exposes the ensemble optimizer as an HTTP job API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fincast/fincast/internal/config"
	"github.com/fincast/fincast/internal/constraints"
	"github.com/fincast/fincast/internal/ensemble"
	"github.com/fincast/fincast/internal/logging"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
	"github.com/fincast/fincast/internal/selector"
)

// Logger defines the logging interface used by the server.
// This allows us to be flexible with our logging implementation.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job tracks one optimization run. Access goes through the server's
// job mutex.
type Job struct {
	ID             string
	Status         string
	StartTime      time.Time
	EndTime        *time.Time
	Progress       float64
	ProgressStatus string
	Result         *ensemble.Result
	Error          string
	CancelFunc     context.CancelFunc
	LastUpdated    time.Time
}

// OptimizeRequest is the POST /api/v1/optimize body.
type OptimizeRequest struct {
	Space    map[string]params.Bounds `json:"space"`
	Budget   int                      `json:"budget"`
	Policy   string                   `json:"policy"`
	Parallel bool                     `json:"parallel"`
	Seed     int64                    `json:"seed"`
	Prefs    selector.Preferences     `json:"preferences"`
}

// Server manages optimization jobs and provides endpoints to start,
// monitor, and cancel them.
type Server struct {
	cfg       *config.Config
	logger    Logger
	optimizer *ensemble.Optimizer

	jobs   map[string]*Job
	jobsMu sync.RWMutex
}

// NewServer creates a new server instance with the given config, logger
// and ensemble optimizer.
func NewServer(cfg *config.Config, logger Logger, optimizer *ensemble.Optimizer) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		optimizer: optimizer,
		jobs:      make(map[string]*Job),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Post("/recommend", s.handleRecommend)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})
}

// handleOptimize starts a new optimization job.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	space := params.Space(req.Space)
	if err := space.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Budget <= 0 {
		req.Budget = s.cfg.Optimization.DefaultBudget
	}
	if req.Policy == "" {
		req.Policy = s.cfg.Optimization.AllocationPolicy
	}
	if req.Seed == 0 {
		req.Seed = s.cfg.Optimization.Seed
	}

	if s.runningJobs() >= s.cfg.Optimization.MaxConcurrentJobs {
		s.respondError(w, http.StatusTooManyRequests, "too many running jobs")
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          id,
		Status:      StatusPending,
		StartTime:   time.Now(),
		CancelFunc:  cancel,
		LastUpdated: time.Now(),
	}

	s.jobsMu.Lock()
	s.jobs[id] = job
	s.jobsMu.Unlock()

	go s.runJob(ctx, job, space, req)

	s.logger.Info("Optimization started", map[string]interface{}{
		"job_id": id,
		"budget": req.Budget,
		"policy": req.Policy,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": id,
		"status": StatusPending,
	})
}

// handleRecommend ranks strategies for a space and budget without
// spending any evaluations.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Space  map[string]params.Bounds `json:"space"`
		Budget int                      `json:"budget"`
		Prefs  selector.Preferences     `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	space := params.Space(req.Space)
	if err := space.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs := selector.Recommend(space, req.Budget, req.Prefs)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recommendations": recs,
	})
}

// runJob executes the ensemble in a goroutine, updating job state at
// coarse milestones.
func (s *Server) runJob(ctx context.Context, job *Job, space params.Space, req OptimizeRequest) {
	s.updateJob(job, func(j *Job) {
		j.Status = StatusRunning
	})

	opts := ensemble.Options{
		Constraints:        constraints.NewBusinessHandler(space),
		Realism:            realism.NewAdjuster(realism.DefaultConfig()),
		Policy:             ensemble.Policy(req.Policy),
		Parallel:           req.Parallel,
		ReentrantEvaluator: req.Parallel,
		MaxWorkers:         s.cfg.Optimization.MaxWorkers,
		Preferences:        req.Prefs,
		Seed:               req.Seed,
		PenaltyWeight:      s.cfg.Optimization.PenaltyWeight,
		Progress: func(fraction float64, status string) {
			s.updateJob(job, func(j *Job) {
				j.Progress = fraction
				j.ProgressStatus = status
			})
		},
	}

	result, err := s.optimizer.Optimize(ctx, space, req.Budget, opts)

	now := time.Now()
	s.updateJob(job, func(j *Job) {
		j.EndTime = &now
		if j.Status == StatusCancelled {
			return
		}
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			s.logger.Error("Optimization failed", map[string]interface{}{
				"job_id": j.ID,
				"error":  err.Error(),
			})
			return
		}
		j.Status = StatusCompleted
		j.Progress = 1
		j.Result = result
		s.logger.Info("Optimization completed", map[string]interface{}{
			"job_id":     j.ID,
			"best_score": result.BestScore,
			"provenance": result.Provenance,
		})
	})
}

// handleStatus reports the state and, once finished, the result of a job.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	job, exists := s.jobs[id]
	s.jobsMu.RUnlock()
	if !exists {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	s.jobsMu.RLock()
	response := map[string]interface{}{
		"job_id":      job.ID,
		"status":      job.Status,
		"progress":    job.Progress,
		"start_time":  job.StartTime.Format(time.RFC3339),
		"last_update": job.LastUpdated.Format(time.RFC3339),
	}
	if job.ProgressStatus != "" {
		response["progress_status"] = job.ProgressStatus
	}
	if job.EndTime != nil {
		response["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.Error != "" {
		response["error"] = job.Error
	}
	if job.Result != nil {
		response["result"] = job.Result
	}
	s.jobsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCancel cancels a running job via its context.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.Lock()
	job, exists := s.jobs[id]
	if !exists {
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		status := job.Status
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusConflict, fmt.Sprintf("cannot cancel job with status %s", status))
		return
	}

	if job.CancelFunc != nil {
		job.CancelFunc()
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	s.jobsMu.Unlock()

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"job_id": id,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": StatusCancelled,
	})
}

func (s *Server) updateJob(job *Job, apply func(*Job)) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	apply(job)
	job.LastUpdated = time.Now()
}

func (s *Server) runningJobs() int {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Close cancels all running jobs.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	return nil
}
