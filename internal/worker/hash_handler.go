package worker

import (
	"context"
	"errors"
	"fmt"

	"trust-pipeline/internal/hasher"
	"trust-pipeline/internal/models"
)

type assetDigestStore interface {
	GetAsset(ctx context.Context, id string) (models.ParticipationAsset, error)
	UpdateAssetDigests(ctx context.Context, assetID, sha256, phash string) error
}

// Downloader fetches raw bytes from the object store.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// HashHandler computes both fingerprints for one uploaded screenshot and
// writes them back to the asset row. Recomputation is idempotent, so running
// more than once under at-least-once delivery is harmless.
type HashHandler struct {
	store   assetDigestStore
	objects Downloader
}

type hashJobPayload struct {
	AssetID string `json:"asset_id"`
}

// NewHashHandler wires the handler.
func NewHashHandler(store assetDigestStore, objects Downloader) *HashHandler {
	return &HashHandler{store: store, objects: objects}
}

// Handle downloads the asset and persists sha256 + phash.
func (h *HashHandler) Handle(ctx context.Context, job models.Job) (map[string]any, error) {
	var payload hashJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.AssetID == "" {
		return nil, errors.New("asset_id is required")
	}

	asset, err := h.store.GetAsset(ctx, payload.AssetID)
	if err != nil {
		return nil, err
	}

	data, err := h.objects.Download(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", asset.StorageKey, err)
	}

	sha := hasher.SHA256Hex(data)
	phash, err := hasher.PerceptualHash(data)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash: %w", err)
	}

	if err := h.store.UpdateAssetDigests(ctx, asset.ID, sha, phash); err != nil {
		return nil, err
	}

	return map[string]any{"asset_id": asset.ID, "sha256": sha, "phash": phash}, nil
}
