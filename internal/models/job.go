package models

import (
	"time"
)

// Job lifecycle states persisted in Postgres.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusDead       = "DEAD"
)

// Job types handled by the worker. Every value listed here must have a
// handler registered before the runner starts draining.
const (
	JobHashDigest       = "hash_digest"
	JobFraudCheck       = "fraud_check"
	JobAIInsight        = "ai_insight"
	JobSendEmail        = "send_email"
	JobScreenshotVerify = "screenshot_verify"
	JobGiftExchange     = "gift_exchange"
	JobCatalogSync      = "catalog_sync"
)

// JobTypes returns every known job type.
func JobTypes() []string {
	return []string{
		JobHashDigest,
		JobFraudCheck,
		JobAIInsight,
		JobSendEmail,
		JobScreenshotVerify,
		JobGiftExchange,
		JobCatalogSync,
	}
}

// Priority tiers, stored as smallint so ORDER BY priority DESC needs no CASE ladder.
const (
	PriorityLow    = 0
	PriorityMedium = 1
	PriorityHigh   = 2
)

// PriorityName renders a priority rank for logs and API responses.
func PriorityName(p int) string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityHigh:
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

// ParsePriority maps a tier name to its rank. Unknown names fall back to MEDIUM.
func ParsePriority(name string) int {
	switch name {
	case "LOW":
		return PriorityLow
	case "HIGH":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Job represents one unit of deferred work persisted in Postgres.
type Job struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Priority     int            `json:"priority"`
	Payload      map[string]any `json:"payload"`
	Status       string         `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	FailedAt     *time.Time     `json:"failed_at,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// QueueStats reports job counts per lifecycle state.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
}
