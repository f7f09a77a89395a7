// Package queue is the durable, priority-ordered job store. Job rows in
// Postgres are the single source of truth; claiming is a single conditional
// update so concurrent drains never double-process a job.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"trust-pipeline/internal/models"
)

const (
	// DefaultMaxAttempts bounds automatic retries before a job is dead-lettered.
	DefaultMaxAttempts = 3
	// DefaultRetryBackoff is the minimum delay a requeued job waits before
	// becoming eligible again, so a systematically failing job cannot hot-loop.
	DefaultRetryBackoff = time.Minute
)

// ErrJobNotFound is returned for operations on unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Queue persists and serves jobs.
type Queue struct {
	pool         *pgxpool.Pool
	maxAttempts  int
	retryBackoff time.Duration
}

// New builds a queue over the shared Postgres pool. maxAttempts and backoff
// come from config; zero values take the package defaults.
func New(pool *pgxpool.Pool, maxAttempts int, backoff time.Duration) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Queue{pool: pool, maxAttempts: maxAttempts, retryBackoff: backoff}
}

// EnqueueParams collects inputs for one job. Zero values take the contract
// defaults: priority MEDIUM, scheduled now, the queue's configured attempt
// budget.
type EnqueueParams struct {
	Type        string
	Payload     map[string]any
	Priority    string
	ScheduledAt time.Time
	MaxAttempts int
}

func (p *EnqueueParams) normalize(defaultMaxAttempts int) error {
	if p.Type == "" {
		return errors.New("job type is required")
	}
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now().UTC()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	return nil
}

const jobColumns = `id, type, priority, payload, status, attempts, max_attempts,
	scheduled_at, started_at, completed_at, failed_at, result, error_message, created_at, updated_at`

// Enqueue creates one durable PENDING row. Payload content is never
// validated here; a malformed payload fails at handler time.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (models.Job, error) {
	jobs, err := q.EnqueueBatch(ctx, []EnqueueParams{p})
	if err != nil {
		return models.Job{}, err
	}
	return jobs[0], nil
}

// EnqueueBatch inserts every job in a single transaction; either all rows
// exist afterwards or none do.
func (q *Queue) EnqueueBatch(ctx context.Context, params []EnqueueParams) ([]models.Job, error) {
	if len(params) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	jobs := make([]models.Job, 0, len(params))
	batch := &pgx.Batch{}
	for i := range params {
		p := &params[i]
		if err := p.normalize(q.maxAttempts); err != nil {
			return nil, fmt.Errorf("enqueue job %d: %w", i, err)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		job := models.Job{
			ID:          uuid.New().String(),
			Type:        p.Type,
			Priority:    models.ParsePriority(p.Priority),
			Payload:     p.Payload,
			Status:      models.StatusPending,
			MaxAttempts: p.MaxAttempts,
			ScheduledAt: p.ScheduledAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		batch.Queue(`
			INSERT INTO jobs (id, type, priority, payload, status, attempts, max_attempts, scheduled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
		`, job.ID, job.Type, job.Priority, payloadJSON, job.Status, job.MaxAttempts, job.ScheduledAt, now)
		jobs = append(jobs, job)
	}

	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for range params {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("insert job: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return jobs, nil
}

// DequeueBatch peeks at eligible jobs without claiming them, ordered by
// priority DESC then scheduled_at ASC. Callers that intend to execute must
// use ClaimBatch instead; this exists for inspection and for callers that
// claim individually via MarkProcessing.
func (q *Queue) DequeueBatch(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = $1 AND scheduled_at <= NOW()
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2
	`, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ClaimBatch atomically selects eligible jobs and flips them to PROCESSING,
// stamping started_at and consuming an attempt in the same statement. SKIP
// LOCKED guarantees two overlapping drains never claim the same row. The
// attempt is consumed before the handler runs, so a crash mid-handler still
// counts against max_attempts.
func (q *Queue) ClaimBatch(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = $2 AND scheduled_at <= NOW()
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns+`
	`, models.StatusProcessing, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkProcessing claims a single previously-peeked job. Returns false when
// another claimant won the race or the job is no longer PENDING.
func (q *Queue) MarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted records a successful run and its result document.
func (q *Queue) MarkCompleted(ctx context.Context, id string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, completed_at = NOW(), result = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusCompleted, resultJSON)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

// FailureStatus is the dead-letter rule: a failed run whose attempt count
// has reached the budget is DEAD, otherwise FAILED. The CASE inside
// MarkFailed applies the same comparison in SQL so the row transition and
// this function cannot drift apart.
func FailureStatus(attempts, maxAttempts int) string {
	if attempts >= maxAttempts {
		return models.StatusDead
	}
	return models.StatusFailed
}

// Retryable reports whether RequeueFailed will return a job to PENDING:
// only FAILED rows with attempt budget remaining. DEAD rows need a manual
// Retry.
func Retryable(status string, attempts, maxAttempts int) bool {
	return status == models.StatusFailed && attempts < maxAttempts
}

// MarkFailed records a failed run; dead vs retryable is decided inside the
// update by comparing attempts against max_attempts at call time, per
// FailureStatus. FAILED jobs re-enter PENDING through RequeueFailed
// (automatic) or Retry (manual); DEAD jobs only through Retry.
func (q *Queue) MarkFailed(ctx context.Context, id, errorMessage string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN $2 ELSE $3 END,
		    failed_at = NOW(), error_message = $4, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusDead, models.StatusFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

// RequeueFailed returns every retryable FAILED job to PENDING with the retry
// backoff applied, and reports how many were requeued. The worker host calls
// this on its drain timer. The WHERE clause is Retryable in SQL form: jobs
// that exhausted max_attempts are DEAD already and never touched here.
func (q *Queue) RequeueFailed(ctx context.Context) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, scheduled_at = $2, updated_at = NOW()
		WHERE status = $3 AND attempts < max_attempts
	`, models.StatusPending, q.RetryAt(time.Now()), models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("requeue failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Retry manually requeues a FAILED or DEAD job: status back to PENDING,
// error fields cleared, eligible again after a fixed backoff.
func (q *Queue) Retry(ctx context.Context, id string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_message = NULL, failed_at = NULL, scheduled_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.StatusPending, q.RetryAt(time.Now()), models.StatusFailed, models.StatusDead)
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not retryable: %w", id, ErrJobNotFound)
	}
	return nil
}

// RetryAt computes when a requeued job becomes eligible again.
func (q *Queue) RetryAt(now time.Time) time.Time {
	return now.UTC().Add(q.retryBackoff)
}

// GetJob fetches a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (models.Job, error) {
	rows, err := q.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return models.Job{}, err
	}
	if len(jobs) == 0 {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return jobs[0], nil
}

// ListDead returns dead-lettered jobs for operator inspection, newest first.
func (q *Queue) ListDead(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY failed_at DESC LIMIT $2
	`, models.StatusDead, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Stats reports per-status counts for operational visibility.
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueStats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusCompleted:
			stats.Completed = n
		case models.StatusFailed:
			stats.Failed = n
		case models.StatusDead:
			stats.Dead = n
		}
	}
	return stats, rows.Err()
}

func scanJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var payloadJSON, resultJSON []byte
		var startedAt, completedAt, failedAt pgtype.Timestamptz
		var errMsg pgtype.Text

		err := rows.Scan(&job.ID, &job.Type, &job.Priority, &payloadJSON, &job.Status,
			&job.Attempts, &job.MaxAttempts, &job.ScheduledAt, &startedAt, &completedAt,
			&failedAt, &resultJSON, &errMsg, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
		}
		if startedAt.Valid {
			job.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		if failedAt.Valid {
			job.FailedAt = &failedAt.Time
		}
		if errMsg.Valid {
			job.ErrorMessage = &errMsg.String
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
