package worker

import (
	"context"
	"errors"
	"fmt"

	"trust-pipeline/internal/mailer"
	"trust-pipeline/internal/models"
	"trust-pipeline/internal/telemetry"
)

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// EmailHandler delivers one transactional email. Producers enqueue this job
// only after the action that warrants it has committed; the send is the last
// step here and a COMPLETED job is never re-run, which is what keeps reward
// emails from going out twice.
type EmailHandler struct {
	mailer  mailSender
	limiter Limiter
}

type emailJobPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// NewEmailHandler wires the handler.
func NewEmailHandler(sender mailSender, limiter Limiter) *EmailHandler {
	return &EmailHandler{mailer: sender, limiter: limiter}
}

// Handle sends the message.
func (h *EmailHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload emailJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.To == "" || payload.Subject == "" {
		return nil, errors.New("to and subject are required")
	}

	if h.limiter != nil {
		allowed, _, err := h.limiter.Allow(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			telemetry.RateLimitWaits.Inc()
			return nil, errors.New("mailer rate limit exhausted")
		}
	}

	if err := h.mailer.Send(ctx, mailer.Message{To: payload.To, Subject: payload.Subject, HTML: payload.HTML}); err != nil {
		return nil, err
	}
	return map[string]any{"to": payload.To}, nil
}
