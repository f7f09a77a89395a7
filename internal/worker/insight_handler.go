package worker

import (
	"context"
	"errors"
	"fmt"

	"trust-pipeline/internal/models"
	"trust-pipeline/internal/telemetry"
)

type insightStore interface {
	ListCampaignFeedback(ctx context.Context, campaignID string, limit int) ([]string, error)
	SetCampaignInsight(ctx context.Context, campaignID, insight string) error
}

type summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
}

// feedbackSampleSize bounds the prompt handed to the summarizer.
const feedbackSampleSize = 100

// InsightHandler condenses a campaign's recent feedback into one summary
// paragraph for the advertiser dashboard.
type InsightHandler struct {
	store   insightStore
	ai      summarizer
	limiter Limiter
}

type insightJobPayload struct {
	CampaignID string `json:"campaign_id"`
}

// NewInsightHandler wires the handler.
func NewInsightHandler(store insightStore, client summarizer, limiter Limiter) *InsightHandler {
	return &InsightHandler{store: store, ai: client, limiter: limiter}
}

// Handle generates and stores the campaign insight.
func (h *InsightHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload insightJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.CampaignID == "" {
		return nil, errors.New("campaign_id is required")
	}

	texts, err := h.store.ListCampaignFeedback(ctx, payload.CampaignID, feedbackSampleSize)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return map[string]any{"campaign_id": payload.CampaignID, "skipped": "no feedback"}, nil
	}

	if h.limiter != nil {
		allowed, _, err := h.limiter.Allow(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			telemetry.RateLimitWaits.Inc()
			return nil, errors.New("ai rate limit exhausted")
		}
	}

	summary, err := h.ai.Summarize(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("summarize campaign %s: %w", payload.CampaignID, err)
	}
	if err := h.store.SetCampaignInsight(ctx, payload.CampaignID, summary); err != nil {
		return nil, err
	}

	return map[string]any{"campaign_id": payload.CampaignID, "feedback_count": len(texts)}, nil
}
