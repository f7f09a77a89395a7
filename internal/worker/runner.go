// Package worker drains the job queue: each invocation claims a bounded
// batch, dispatches every job to its registered handler, and records the
// outcome. The runner holds no loop of its own; the host process calls
// RunBatch on a timer, and overlapping invocations are safe because claiming
// is atomic in the queue.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"trust-pipeline/internal/models"
	"trust-pipeline/internal/telemetry"
)

// Queue is the queue slice the runner drives.
type Queue interface {
	ClaimBatch(ctx context.Context, limit int) ([]models.Job, error)
	MarkCompleted(ctx context.Context, id string, result map[string]any) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

// Handler executes one job and returns its result document. Handlers raise;
// the runner owns the single error boundary.
type Handler func(ctx context.Context, job models.Job) (map[string]any, error)

// Runner dispatches claimed jobs to handlers by type.
type Runner struct {
	queue    Queue
	handlers map[string]Handler
	timeout  time.Duration
}

// NewRunner builds a runner. timeout bounds each handler invocation; a
// handler that exceeds it fails the job and consumes the attempt.
func NewRunner(q Queue, timeout time.Duration) *Runner {
	return &Runner{
		queue:    q,
		handlers: make(map[string]Handler),
		timeout:  timeout,
	}
}

// Register binds a handler to a job type. One handler per type.
func (r *Runner) Register(jobType string, h Handler) error {
	if jobType == "" || h == nil {
		return fmt.Errorf("invalid handler registration for type %q", jobType)
	}
	if _, dup := r.handlers[jobType]; dup {
		return fmt.Errorf("handler for type %q already registered", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// CheckRegistry verifies every known job type has a handler, so a deployed
// worker missing one is a startup error rather than a runtime surprise.
func (r *Runner) CheckRegistry() error {
	for _, t := range models.JobTypes() {
		if _, ok := r.handlers[t]; !ok {
			return fmt.Errorf("no handler registered for job type %q", t)
		}
	}
	return nil
}

// ProcessJob runs one claimed job. On handler error the job is marked FAILED
// (the queue decides dead vs retryable) and the error is returned so the
// caller can count and log it.
func (r *Runner) ProcessJob(ctx context.Context, job models.Job) error {
	handler, ok := r.handlers[job.Type]
	if !ok {
		// Registry lookup failure is a code/schema mismatch, not a transient
		// fault, but it flows through the same FAILED path for visibility.
		msg := fmt.Sprintf("no handler registered for type %q", job.Type)
		_ = r.queue.MarkFailed(ctx, job.ID, msg)
		return fmt.Errorf("job %s: %s", job.ID, msg)
	}

	hctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := handler(hctx, job)
	if err != nil {
		if mfErr := r.queue.MarkFailed(ctx, job.ID, err.Error()); mfErr != nil {
			log.Printf("mark failed job=%s: %v", job.ID, mfErr)
		}
		telemetry.JobsFailed.Inc()
		return fmt.Errorf("job %s (%s): %w", job.ID, job.Type, err)
	}

	if err := r.queue.MarkCompleted(ctx, job.ID, result); err != nil {
		return fmt.Errorf("mark completed job=%s: %w", job.ID, err)
	}
	telemetry.JobsCompleted.Inc()
	return nil
}

// RunBatch claims up to limit eligible jobs and processes them sequentially.
// Sequential execution bounds external-API concurrency and keeps per-batch
// error accounting simple; handlers may fan out internally. Returns how many
// jobs ran and how many of those failed.
func (r *Runner) RunBatch(ctx context.Context, limit int) (processed, failed int, err error) {
	jobs, err := r.queue.ClaimBatch(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("claim batch: %w", err)
	}

	for _, job := range jobs {
		processed++
		if err := r.ProcessJob(ctx, job); err != nil {
			failed++
			log.Printf("job failed: %v", err)
		}
	}
	return processed, failed, nil
}
