package fraud

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"trust-pipeline/internal/models"
	"trust-pipeline/internal/similarity"
)

// Reader is the store slice the collector needs.
type Reader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListAssets(ctx context.Context, participationID string) ([]models.ParticipationAsset, error)
	CountDeviceParticipations(ctx context.Context, fingerprint string, since time.Time) (int, error)
	CountUserParticipations(ctx context.Context, userID string, since time.Time) (int, error)
	FindDuplicateFeedback(ctx context.Context, feedback, excludeParticipationID string) (string, bool, error)
}

// Matcher is the similarity-index slice the collector needs.
type Matcher interface {
	FindExact(ctx context.Context, digest, excludeAssetID string) ([]similarity.Match, error)
	FindSimilar(ctx context.Context, phash, excludeAssetID, userID string) ([]similarity.Match, error)
}

// Collector evaluates every trigger condition independently and returns the
// signals that fired. Any detector error aborts the whole run: a decision
// over incomplete signals is worse than a delayed one.
type Collector struct {
	reader  Reader
	matcher Matcher
}

// NewCollector wires a collector.
func NewCollector(reader Reader, matcher Matcher) *Collector {
	return &Collector{reader: reader, matcher: matcher}
}

// Collect gathers the fraud signals for one loaded participation.
func (c *Collector) Collect(ctx context.Context, p models.Participation) ([]models.FraudSignal, error) {
	user, err := c.reader.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	assets, err := c.reader.ListAssets(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	var signals []models.FraudSignal

	if user.IsBanned {
		signals = append(signals, signal(p.ID, models.SignalBannedUser, user.ID, WeightBannedUser, nil))
	}

	dupSig, err := c.duplicateImage(ctx, p.ID, assets)
	if err != nil {
		return nil, err
	}
	if dupSig != nil {
		signals = append(signals, *dupSig)
	}

	simSig, err := c.similarImage(ctx, p.ID, assets)
	if err != nil {
		return nil, err
	}
	if simSig != nil {
		signals = append(signals, *simSig)
	}

	if user.DeviceFingerprint != "" {
		n, err := c.reader.CountDeviceParticipations(ctx, user.DeviceFingerprint, time.Now().Add(-7*24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("device reuse check: %w", err)
		}
		if n > MaxDeviceParticipations {
			signals = append(signals, signal(p.ID, models.SignalSameDevice, user.DeviceFingerprint, WeightSameDevice,
				map[string]any{"participations_7d": n}))
		}
	}

	recent, err := c.reader.CountUserParticipations(ctx, p.UserID, time.Now().Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("velocity check: %w", err)
	}
	if recent > MaxHourlySubmissions {
		signals = append(signals, signal(p.ID, models.SignalRapidSubmission, p.UserID, WeightRapidSubmission,
			map[string]any{"submissions_1h": recent}))
	}

	// Character count, not bytes: non-ASCII feedback must not dodge the
	// trigger just because its encoding is wider.
	if utf8.RuneCountInString(p.Feedback) < MinFeedbackLength {
		signals = append(signals, signal(p.ID, models.SignalShortFeedback, "", WeightShortFeedback,
			map[string]any{"length": utf8.RuneCountInString(p.Feedback)}))
	}

	if p.Feedback != "" {
		dupID, found, err := c.reader.FindDuplicateFeedback(ctx, p.Feedback, p.ID)
		if err != nil {
			return nil, fmt.Errorf("duplicate feedback check: %w", err)
		}
		if found {
			signals = append(signals, signal(p.ID, models.SignalDuplicateFeedback, dupID, WeightDuplicateFeedback, nil))
		}
	}

	return signals, nil
}

// duplicateImage reports at most one DUPLICATE_IMAGE signal, scoped to the
// first asset with a byte-identical match anywhere in history.
func (c *Collector) duplicateImage(ctx context.Context, participationID string, assets []models.ParticipationAsset) (*models.FraudSignal, error) {
	for _, a := range assets {
		if a.SHA256 == nil {
			continue
		}
		matches, err := c.matcher.FindExact(ctx, *a.SHA256, a.ID)
		if err != nil {
			return nil, fmt.Errorf("duplicate image check: %w", err)
		}
		if len(matches) > 0 {
			s := signal(participationID, models.SignalDuplicateImage, matches[0].AssetID, WeightDuplicateImage,
				map[string]any{
					"asset_id":              a.ID,
					"matched_participation": matches[0].ParticipationID,
				})
			return &s, nil
		}
	}
	return nil, nil
}

// similarImage reports at most one SIMILAR_IMAGE signal, scoped to the first
// asset with a perceptual match within the Hamming threshold.
func (c *Collector) similarImage(ctx context.Context, participationID string, assets []models.ParticipationAsset) (*models.FraudSignal, error) {
	for _, a := range assets {
		if a.PHash == nil {
			continue
		}
		matches, err := c.matcher.FindSimilar(ctx, *a.PHash, a.ID, "")
		if err != nil {
			return nil, fmt.Errorf("similar image check: %w", err)
		}
		if len(matches) > 0 {
			s := signal(participationID, models.SignalSimilarImage, matches[0].AssetID, WeightSimilarImage,
				map[string]any{
					"asset_id":              a.ID,
					"matched_participation": matches[0].ParticipationID,
					"hamming_distance":      matches[0].Distance,
				})
			return &s, nil
		}
	}
	return nil, nil
}

func signal(participationID, signalType, value string, weight int, details map[string]any) models.FraudSignal {
	return models.FraudSignal{
		ParticipationID: participationID,
		SignalType:      signalType,
		SignalValue:     value,
		Score:           weight,
		Details:         details,
	}
}
