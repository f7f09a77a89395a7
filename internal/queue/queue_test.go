package queue

import (
	"testing"
	"time"

	"trust-pipeline/internal/models"
)

func TestEnqueueParamsDefaults(t *testing.T) {
	p := EnqueueParams{Type: models.JobFraudCheck}
	if err := p.normalize(DefaultMaxAttempts); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", p.MaxAttempts)
	}
	if p.Payload == nil {
		t.Fatal("expected non-nil payload")
	}
	if p.ScheduledAt.IsZero() {
		t.Fatal("expected scheduled_at set to now")
	}
	if got := models.ParsePriority(p.Priority); got != models.PriorityMedium {
		t.Fatalf("expected default priority MEDIUM, got %s", models.PriorityName(got))
	}
}

func TestEnqueueParamsRequireType(t *testing.T) {
	p := EnqueueParams{}
	if err := p.normalize(DefaultMaxAttempts); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestConfiguredDefaultsThreadThrough(t *testing.T) {
	q := New(nil, 5, 2*time.Minute)
	if q.maxAttempts != 5 {
		t.Fatalf("expected configured max attempts 5, got %d", q.maxAttempts)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := q.RetryAt(now).Sub(now); got != 2*time.Minute {
		t.Fatalf("expected configured backoff 2m, got %s", got)
	}

	q = New(nil, 0, 0)
	if q.maxAttempts != DefaultMaxAttempts {
		t.Fatalf("expected fallback max attempts %d, got %d", DefaultMaxAttempts, q.maxAttempts)
	}
	if got := q.RetryAt(now).Sub(now); got != DefaultRetryBackoff {
		t.Fatalf("expected fallback backoff %s, got %s", DefaultRetryBackoff, got)
	}
}

func TestRetryAtBackoff(t *testing.T) {
	q := New(nil, 0, 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := q.RetryAt(now)
	if at.Sub(now) < time.Minute {
		t.Fatalf("retry eligible too soon: %s", at.Sub(now))
	}
}

// Walks a maxAttempts=3 job through three claim-and-fail cycles: the first
// two failures are FAILED and eligible for the automatic requeue sweep, the
// third is DEAD and never re-enters PENDING on its own.
func TestFailureLifecycleDeadLetters(t *testing.T) {
	const maxAttempts = 3

	attempts := 0
	for run := 1; run <= maxAttempts; run++ {
		attempts++ // the claim consumes the attempt before the handler runs
		status := FailureStatus(attempts, maxAttempts)
		if run < maxAttempts {
			if status != models.StatusFailed {
				t.Fatalf("run %d: expected FAILED, got %s", run, status)
			}
			if !Retryable(status, attempts, maxAttempts) {
				t.Fatalf("run %d: expected FAILED job to be requeued", run)
			}
			continue
		}
		if status != models.StatusDead {
			t.Fatalf("run %d: expected DEAD, got %s", run, status)
		}
	}

	if Retryable(models.StatusDead, attempts, maxAttempts) {
		t.Fatal("DEAD job must never be requeued automatically")
	}
	// A FAILED row at the budget is a consistency edge, not a retry.
	if Retryable(models.StatusFailed, maxAttempts, maxAttempts) {
		t.Fatal("exhausted job must not be requeued")
	}
	if Retryable(models.StatusPending, 1, maxAttempts) {
		t.Fatal("only FAILED jobs are swept")
	}
}

func TestPriorityRanks(t *testing.T) {
	if models.ParsePriority("HIGH") <= models.ParsePriority("MEDIUM") {
		t.Fatal("HIGH must outrank MEDIUM")
	}
	if models.ParsePriority("MEDIUM") <= models.ParsePriority("LOW") {
		t.Fatal("MEDIUM must outrank LOW")
	}
	if models.PriorityName(models.ParsePriority("LOW")) != "LOW" {
		t.Fatal("LOW round-trip failed")
	}
}
