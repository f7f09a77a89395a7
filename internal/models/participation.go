package models

import (
	"time"
)

// Fraud decisions written by the scoring engine.
const (
	DecisionPass   = "PASS"
	DecisionReview = "REVIEW"
	DecisionReject = "REJECT"
)

// Review-workflow statuses. The broader workflow has more states (approval,
// reward issuance); the fraud check only ever writes these three.
const (
	ParticipationSubmitted     = "SUBMITTED"
	ParticipationPendingReview = "PENDING_REVIEW"
	ParticipationManualReview  = "MANUAL_REVIEW"
	ParticipationAutoRejected  = "AUTO_REJECTED"
)

// Fraud signal types, each contributing a fixed weight to the score.
const (
	SignalBannedUser        = "BANNED_USER"
	SignalDuplicateImage    = "DUPLICATE_IMAGE"
	SignalSimilarImage      = "SIMILAR_IMAGE"
	SignalSameDevice        = "SAME_DEVICE"
	SignalRapidSubmission   = "RAPID_SUBMISSION"
	SignalShortFeedback     = "SHORT_FEEDBACK"
	SignalDuplicateFeedback = "DUPLICATE_FEEDBACK"
)

// Participation is the fraud-relevant slice of a tester's campaign submission.
type Participation struct {
	ID            string     `json:"id"`
	CampaignID    string     `json:"campaign_id"`
	UserID        string     `json:"user_id"`
	Feedback      string     `json:"feedback"`
	Status        string     `json:"status"`
	FraudScore    *int       `json:"fraud_score,omitempty"`
	FraudDecision *string    `json:"fraud_decision,omitempty"`
	FraudReasons  []string   `json:"fraud_reasons,omitempty"`
	AITextValid   *bool      `json:"ai_text_valid,omitempty"`
	AITextReason  *string    `json:"ai_text_reason,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ScoredAt      *time.Time `json:"scored_at,omitempty"`
}

// ParticipationAsset is one uploaded screenshot. Digests are null until the
// hash job runs; AI fields are null until the verify job runs.
type ParticipationAsset struct {
	ID              string  `json:"id"`
	ParticipationID string  `json:"participation_id"`
	Slot            int     `json:"slot"`
	StorageKey      string  `json:"storage_key"`
	SHA256          *string `json:"sha256,omitempty"`
	PHash           *string `json:"phash,omitempty"`
	AIVerified      *bool   `json:"ai_verified,omitempty"`
	AIVerifyReason  *string `json:"ai_verify_reason,omitempty"`
}

// FraudSignal is one detected indicator. Rows are append-only; the capped sum
// of a run's signal scores is always recomputable from them.
type FraudSignal struct {
	ID              string         `json:"id"`
	ParticipationID string         `json:"participation_id"`
	SignalType      string         `json:"signal_type"`
	SignalValue     string         `json:"signal_value"`
	Score           int            `json:"score"`
	Details         map[string]any `json:"details,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// User carries the account fields the fraud check reads.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	IsBanned          bool   `json:"is_banned"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// GiftItem is one entry of the external vendor's catalog mirrored locally.
type GiftItem struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	FaceValue int       `json:"face_value"`
	Active    bool      `json:"active"`
	SyncedAt  time.Time `json:"synced_at"`
}

// GiftRedemption tracks one gift-card order for a user. Code is set exactly
// once; the exchange handler short-circuits when it is already present.
type GiftRedemption struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	SKU       string     `json:"sku"`
	Code      *string    `json:"code,omitempty"`
	OrderedAt *time.Time `json:"ordered_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
