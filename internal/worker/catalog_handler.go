package worker

import (
	"context"
	"fmt"
	"time"

	"trust-pipeline/internal/giftcard"
	"trust-pipeline/internal/models"
)

type catalogStore interface {
	UpsertGiftItems(ctx context.Context, items []models.GiftItem) error
}

type catalogSource interface {
	Catalog(ctx context.Context) ([]giftcard.Item, error)
}

// CatalogHandler mirrors the vendor's gift-card catalog into Postgres so the
// storefront never reads the vendor API on the request path.
type CatalogHandler struct {
	store  catalogStore
	vendor catalogSource
}

// NewCatalogHandler wires the handler.
func NewCatalogHandler(store catalogStore, vendor catalogSource) *CatalogHandler {
	return &CatalogHandler{store: store, vendor: vendor}
}

// Handle pulls and upserts the full catalog. The job carries no payload.
func (h *CatalogHandler) Handle(ctx context.Context, _ models.Job) (map[string]any, error) {
	items, err := h.vendor.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	giftItems := make([]models.GiftItem, 0, len(items))
	now := time.Now().UTC()
	for _, item := range items {
		giftItems = append(giftItems, models.GiftItem{
			SKU:       item.SKU,
			Name:      item.Name,
			FaceValue: item.FaceValue,
			Active:    true,
			SyncedAt:  now,
		})
	}

	if err := h.store.UpsertGiftItems(ctx, giftItems); err != nil {
		return nil, err
	}
	return map[string]any{"items": len(giftItems)}, nil
}
