// Package fraud computes a weighted, explainable fraud determination for one
// participation. Scoring is deterministic: fixed weights, a single saturating
// cap, and fixed decision thresholds a reviewer can audit. The same pure
// functions back both the production engine and the standalone calculator
// used for pipeline simulation, so the two paths cannot drift.
package fraud

import (
	"trust-pipeline/internal/models"
)

// Signal weights. A participation accumulates at most one signal of each
// type per run; the score is the capped sum of whichever apply.
const (
	WeightBannedUser        = 100
	WeightDuplicateImage    = 50
	WeightSimilarImage      = 25
	WeightSameDevice        = 20
	WeightRapidSubmission   = 15
	WeightShortFeedback     = 10
	WeightDuplicateFeedback = 30
)

// Trigger thresholds for the statistical detectors.
const (
	// MinFeedbackLength is the shortest feedback that avoids SHORT_FEEDBACK.
	MinFeedbackLength = 50
	// MaxDeviceParticipations is the largest trailing-7-day count of
	// participations on one device fingerprint that avoids SAME_DEVICE.
	MaxDeviceParticipations = 3
	// MaxHourlySubmissions is the largest trailing-1-hour submission count
	// that avoids RAPID_SUBMISSION.
	MaxHourlySubmissions = 5
)

// Decision thresholds over the clamped score.
const (
	RejectThreshold = 70
	ReviewThreshold = 40
)

// Score sums the signals' weights and clamps to [0, 100]. The cap saturates
// once over the sum, never per signal.
func Score(signals []models.FraudSignal) int {
	total := 0
	for _, s := range signals {
		total += s.Score
	}
	if total > 100 {
		return 100
	}
	if total < 0 {
		return 0
	}
	return total
}

// Decide maps a clamped score to the three-way decision:
// score >= 70 REJECT, 40 <= score < 70 REVIEW, score < 40 PASS.
func Decide(score int) string {
	switch {
	case score >= RejectThreshold:
		return models.DecisionReject
	case score >= ReviewThreshold:
		return models.DecisionReview
	default:
		return models.DecisionPass
	}
}

// StatusFor maps a decision to the review-workflow status it writes. Even a
// PASS still awaits human approval; scoring pre-filters, it never approves.
func StatusFor(decision string) string {
	switch decision {
	case models.DecisionReject:
		return models.ParticipationAutoRejected
	case models.DecisionReview:
		return models.ParticipationManualReview
	default:
		return models.ParticipationPendingReview
	}
}

// Reasons returns the signal type names, in signal order, for the
// denormalized fraud_reasons display field.
func Reasons(signals []models.FraudSignal) []string {
	reasons := make([]string, 0, len(signals))
	for _, s := range signals {
		reasons = append(reasons, s.SignalType)
	}
	return reasons
}
