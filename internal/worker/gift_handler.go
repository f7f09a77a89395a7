package worker

import (
	"context"
	"errors"
	"fmt"

	"trust-pipeline/internal/giftcard"
	"trust-pipeline/internal/models"
)

type redemptionStore interface {
	GetRedemption(ctx context.Context, id string) (models.GiftRedemption, error)
	CompleteRedemption(ctx context.Context, id, code string) (bool, error)
}

type giftVendor interface {
	PlaceOrder(ctx context.Context, sku, referenceID string) (giftcard.Order, error)
}

// GiftHandler orders a gift-card code for a completed redemption. A retry
// that finds the code already recorded short-circuits, and the vendor
// deduplicates orders on the redemption id, so at-least-once execution
// cannot double-purchase.
type GiftHandler struct {
	store  redemptionStore
	vendor giftVendor
}

type giftJobPayload struct {
	RedemptionID string `json:"redemption_id"`
}

// NewGiftHandler wires the handler.
func NewGiftHandler(store redemptionStore, vendor giftVendor) *GiftHandler {
	return &GiftHandler{store: store, vendor: vendor}
}

// Handle orders and records the code.
func (h *GiftHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload giftJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.RedemptionID == "" {
		return nil, errors.New("redemption_id is required")
	}

	redemption, err := h.store.GetRedemption(ctx, payload.RedemptionID)
	if err != nil {
		return nil, err
	}
	if redemption.Code != nil {
		return map[string]any{"redemption_id": redemption.ID, "already_completed": true}, nil
	}

	order, err := h.vendor.PlaceOrder(ctx, redemption.SKU, redemption.ID)
	if err != nil {
		return nil, fmt.Errorf("order sku %s: %w", redemption.SKU, err)
	}

	completed, err := h.store.CompleteRedemption(ctx, redemption.ID, order.Code)
	if err != nil {
		return nil, err
	}
	if !completed {
		// A concurrent retry recorded a code first; the vendor deduplicated
		// the order, so nothing was double-billed.
		return map[string]any{"redemption_id": redemption.ID, "already_completed": true}, nil
	}

	return map[string]any{"redemption_id": redemption.ID, "sku": redemption.SKU}, nil
}
