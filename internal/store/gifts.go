package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"trust-pipeline/internal/models"
)

// UpsertGiftItems replaces the mirrored vendor catalog in one transaction.
// Items missing from the feed are deactivated, not deleted, so existing
// redemptions keep a valid SKU reference.
func (s *Store) UpsertGiftItems(ctx context.Context, items []models.GiftItem) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE gift_items SET active = FALSE`); err != nil {
		return fmt.Errorf("deactivate gift items: %w", err)
	}
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO gift_items (sku, name, face_value, active, synced_at)
			VALUES ($1, $2, $3, TRUE, $4)
			ON CONFLICT (sku) DO UPDATE
			SET name = EXCLUDED.name, face_value = EXCLUDED.face_value, active = TRUE, synced_at = EXCLUDED.synced_at
		`, item.SKU, item.Name, item.FaceValue, now)
		if err != nil {
			return fmt.Errorf("upsert gift item %s: %w", item.SKU, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog sync: %w", err)
	}
	return nil
}

// GetRedemption fetches one gift-card redemption.
func (s *Store) GetRedemption(ctx context.Context, id string) (models.GiftRedemption, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, sku, code, ordered_at, created_at
		FROM gift_redemptions WHERE id = $1
	`, id)

	var r models.GiftRedemption
	var code pgtype.Text
	var orderedAt pgtype.Timestamptz
	err := row.Scan(&r.ID, &r.UserID, &r.SKU, &code, &orderedAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.GiftRedemption{}, fmt.Errorf("redemption %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.GiftRedemption{}, fmt.Errorf("scan redemption: %w", err)
	}
	r.Code = textPtr(code)
	if orderedAt.Valid {
		r.OrderedAt = &orderedAt.Time
	}
	return r, nil
}

// CompleteRedemption records the vendor code, only if none was recorded yet.
// Returns false when the redemption was already completed, which lets a
// retried gift-exchange job detect a finished order.
func (s *Store) CompleteRedemption(ctx context.Context, id, code string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE gift_redemptions SET code = $2, ordered_at = NOW()
		WHERE id = $1 AND code IS NULL
	`, id, code)
	if err != nil {
		return false, fmt.Errorf("complete redemption: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
