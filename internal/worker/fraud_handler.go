package worker

import (
	"context"
	"errors"

	"trust-pipeline/internal/fraud"
	"trust-pipeline/internal/models"
	"trust-pipeline/internal/telemetry"
)

type fraudEngine interface {
	Run(ctx context.Context, participationID string) (fraud.Result, error)
}

// FraudHandler runs the scoring engine for one participation. All
// persistence happens inside the engine's transaction; a failure here leaves
// the participation unscored and the job retries per queue policy.
type FraudHandler struct {
	engine fraudEngine
}

type fraudJobPayload struct {
	ParticipationID string `json:"participation_id"`
}

// NewFraudHandler wires the handler.
func NewFraudHandler(engine fraudEngine) *FraudHandler {
	return &FraudHandler{engine: engine}
}

// Handle scores the participation.
func (h *FraudHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload fraudJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.ParticipationID == "" {
		return nil, errors.New("participation_id is required")
	}

	result, err := h.engine.Run(ctx, payload.ParticipationID)
	if err != nil {
		return nil, err
	}

	telemetry.FraudScoreHist.Observe(float64(result.Score))
	return map[string]any{
		"participation_id": result.ParticipationID,
		"score":            result.Score,
		"decision":         result.Decision,
		"signals":          len(result.Signals),
	}, nil
}
