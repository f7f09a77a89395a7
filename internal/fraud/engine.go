package fraud

import (
	"context"
	"fmt"

	"trust-pipeline/internal/models"
)

// Persister is the store slice the engine writes through.
type Persister interface {
	GetParticipation(ctx context.Context, id string) (models.Participation, error)
	ApplyFraudResult(ctx context.Context, participationID string, signals []models.FraudSignal, score int, decision, status string, reasons []string) error
}

// Result is one completed scoring run.
type Result struct {
	ParticipationID string               `json:"participation_id"`
	Score           int                  `json:"score"`
	Decision        string               `json:"decision"`
	Status          string               `json:"status"`
	Signals         []models.FraudSignal `json:"signals"`
}

// Engine runs the full check: collect signals, score, decide, then persist
// everything in one transaction. Rescoring a participation inserts a fresh,
// independent signal set and overwrites the score and decision; runs are not
// deduplicated.
type Engine struct {
	store     Persister
	collector *Collector
}

// NewEngine wires the scoring engine.
func NewEngine(store Persister, collector *Collector) *Engine {
	return &Engine{store: store, collector: collector}
}

// Run scores one participation. On any error nothing is persisted and the
// participation stays unscored, indistinguishable from one still queued.
func (e *Engine) Run(ctx context.Context, participationID string) (Result, error) {
	p, err := e.store.GetParticipation(ctx, participationID)
	if err != nil {
		return Result{}, fmt.Errorf("load participation: %w", err)
	}

	signals, err := e.collector.Collect(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("collect signals: %w", err)
	}

	score := Score(signals)
	decision := Decide(score)
	status := StatusFor(decision)
	reasons := Reasons(signals)

	if err := e.store.ApplyFraudResult(ctx, p.ID, signals, score, decision, status, reasons); err != nil {
		return Result{}, fmt.Errorf("persist fraud result: %w", err)
	}

	return Result{
		ParticipationID: p.ID,
		Score:           score,
		Decision:        decision,
		Status:          status,
		Signals:         signals,
	}, nil
}
