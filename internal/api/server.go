// Package api is the operational surface: producers enqueue jobs here, and
// operators inspect queue stats, dead-lettered jobs, and manual retries.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"trust-pipeline/internal/models"
	"trust-pipeline/internal/queue"
	"trust-pipeline/internal/telemetry"
)

// Server wires HTTP handlers over the job queue.
type Server struct {
	queue *queue.Queue
}

// New constructs the ops server.
func New(q *queue.Queue) *Server {
	return &Server{queue: q}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleEnqueue)
	r.Post("/jobs/batch", s.handleEnqueueBatch)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Post("/jobs/{id}/retry", s.handleRetry)
	r.Get("/queue/stats", s.handleStats)
	r.Get("/queue/dead", s.handleDead)
	return r
}

type enqueueRequest struct {
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload"`
	Priority     string         `json:"priority"`
	RunAt        *time.Time     `json:"run_at"`
	DelaySeconds int            `json:"delay_seconds"`
	MaxAttempts  int            `json:"max_attempts"`
}

func (req enqueueRequest) params() queue.EnqueueParams {
	p := queue.EnqueueParams{
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	if req.RunAt != nil {
		p.ScheduledAt = *req.RunAt
	}
	if req.DelaySeconds > 0 {
		p.ScheduledAt = time.Now().Add(time.Duration(req.DelaySeconds) * time.Second)
	}
	return p
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	job, err := s.queue.Enqueue(r.Context(), req.params())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	telemetry.JobsEnqueued.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

type enqueueBatchRequest struct {
	Jobs []enqueueRequest `json:"jobs"`
}

func (s *Server) handleEnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req enqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Jobs) == 0 {
		http.Error(w, "jobs is required", http.StatusBadRequest)
		return
	}

	params := make([]queue.EnqueueParams, 0, len(req.Jobs))
	for _, j := range req.Jobs {
		if j.Type == "" {
			http.Error(w, "every job needs a type", http.StatusBadRequest)
			return
		}
		params = append(params, j.params())
	}

	jobs, err := s.queue.EnqueueBatch(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for range jobs {
		telemetry.JobsEnqueued.Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.queue.GetJob(r.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Retry(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			http.Error(w, "job not found or not retryable", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusPending})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDead(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.queue.ListDead(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
