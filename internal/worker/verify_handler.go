package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trust-pipeline/internal/ai"
	"trust-pipeline/internal/models"
	"trust-pipeline/internal/telemetry"
)

type verificationStore interface {
	GetParticipation(ctx context.Context, id string) (models.Participation, error)
	ListAssets(ctx context.Context, participationID string) ([]models.ParticipationAsset, error)
	SetAssetVerification(ctx context.Context, assetID string, valid bool, reason string) error
	SetTextQuality(ctx context.Context, participationID string, valid bool, reason string) error
}

// Signer mints short-lived URLs for handing stored images to the AI service.
type Signer interface {
	CreateSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type verifier interface {
	VerifyScreenshot(ctx context.Context, req ai.ScreenshotRequest) (ai.Verification, error)
	VerifyText(ctx context.Context, text string) (ai.Verification, error)
}

// Limiter gates calls to one rate-limited third-party service; the bucket
// knows which service it guards.
type Limiter interface {
	Allow(ctx context.Context) (bool, float64, error)
}

// VerifyHandler asks the AI collaborator whether each screenshot matches the
// mission and whether the feedback is substantive, then persists the
// verdicts. The flags are read-only inputs for the human review UI; the
// fraud weight table deliberately does not consume them.
type VerifyHandler struct {
	store     verificationStore
	signer    Signer
	ai        verifier
	limiter   Limiter
	signedTTL time.Duration
}

type verifyJobPayload struct {
	ParticipationID string `json:"participation_id"`
	Mission         string `json:"mission,omitempty"`
}

// NewVerifyHandler wires the handler. limiter may be nil in tests.
func NewVerifyHandler(store verificationStore, signer Signer, client verifier, limiter Limiter, signedTTL time.Duration) *VerifyHandler {
	if signedTTL == 0 {
		signedTTL = 15 * time.Minute
	}
	return &VerifyHandler{store: store, signer: signer, ai: client, limiter: limiter, signedTTL: signedTTL}
}

// Handle verifies every asset plus the feedback text.
func (h *VerifyHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload verifyJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.ParticipationID == "" {
		return nil, errors.New("participation_id is required")
	}

	p, err := h.store.GetParticipation(ctx, payload.ParticipationID)
	if err != nil {
		return nil, err
	}
	assets, err := h.store.ListAssets(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	verified := 0
	for _, asset := range assets {
		if err := h.acquire(ctx); err != nil {
			return nil, err
		}
		url, err := h.signer.CreateSignedURL(ctx, asset.StorageKey, h.signedTTL)
		if err != nil {
			return nil, fmt.Errorf("sign asset %s: %w", asset.ID, err)
		}
		verdict, err := h.ai.VerifyScreenshot(ctx, ai.ScreenshotRequest{
			ImageURL: url,
			Mission:  payload.Mission,
		})
		if err != nil {
			return nil, fmt.Errorf("verify asset %s: %w", asset.ID, err)
		}
		if err := h.store.SetAssetVerification(ctx, asset.ID, verdict.Valid, verdict.Reason); err != nil {
			return nil, err
		}
		verified++
	}

	if p.Feedback != "" {
		if err := h.acquire(ctx); err != nil {
			return nil, err
		}
		verdict, err := h.ai.VerifyText(ctx, p.Feedback)
		if err != nil {
			return nil, fmt.Errorf("verify feedback: %w", err)
		}
		if err := h.store.SetTextQuality(ctx, p.ID, verdict.Valid, verdict.Reason); err != nil {
			return nil, err
		}
	}

	return map[string]any{"participation_id": p.ID, "assets_verified": verified}, nil
}

func (h *VerifyHandler) acquire(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	allowed, _, err := h.limiter.Allow(ctx)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		telemetry.RateLimitWaits.Inc()
		// Fail the attempt; the retry backoff spaces out the next try.
		return errors.New("ai rate limit exhausted")
	}
	return nil
}
