package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"trust-pipeline/internal/models"
)

// ErrNotFound is returned when a referenced entity does not exist. Handlers
// surface it as a job failure like any other error; the design does not
// distinguish poisonous payloads from transient faults automatically.
var ErrNotFound = errors.New("not found")

// GetParticipation fetches one participation row.
func (s *Store) GetParticipation(ctx context.Context, id string) (models.Participation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, user_id, feedback, status, fraud_score, fraud_decision, fraud_reasons,
		       ai_text_valid, ai_text_reason, submitted_at, scored_at
		FROM participations WHERE id = $1
	`, id)

	var p models.Participation
	var score pgtype.Int4
	var decision, textReason pgtype.Text
	var textValid pgtype.Bool
	var scoredAt pgtype.Timestamptz

	err := row.Scan(&p.ID, &p.CampaignID, &p.UserID, &p.Feedback, &p.Status, &score, &decision,
		&p.FraudReasons, &textValid, &textReason, &p.SubmittedAt, &scoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Participation{}, fmt.Errorf("participation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Participation{}, fmt.Errorf("scan participation: %w", err)
	}

	p.FraudScore = intPtr(score)
	p.FraudDecision = textPtr(decision)
	p.AITextValid = boolPtr(textValid)
	p.AITextReason = textPtr(textReason)
	if scoredAt.Valid {
		p.ScoredAt = &scoredAt.Time
	}
	return p, nil
}

// GetUser fetches the account fields the fraud check reads.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, is_banned, COALESCE(device_fingerprint, '')
		FROM users WHERE id = $1
	`, id)

	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.IsBanned, &u.DeviceFingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// ListAssets returns a participation's uploaded screenshots ordered by slot.
func (s *Store) ListAssets(ctx context.Context, participationID string) ([]models.ParticipationAsset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participation_id, slot, storage_key, sha256, phash, ai_verified, ai_verify_reason
		FROM participation_assets WHERE participation_id = $1 ORDER BY slot
	`, participationID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.ParticipationAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetAsset fetches one asset row.
func (s *Store) GetAsset(ctx context.Context, id string) (models.ParticipationAsset, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, participation_id, slot, storage_key, sha256, phash, ai_verified, ai_verify_reason
		FROM participation_assets WHERE id = $1
	`, id)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ParticipationAsset{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return a, err
}

func scanAsset(row pgx.Row) (models.ParticipationAsset, error) {
	var a models.ParticipationAsset
	var sha, phash, reason pgtype.Text
	var verified pgtype.Bool
	if err := row.Scan(&a.ID, &a.ParticipationID, &a.Slot, &a.StorageKey, &sha, &phash, &verified, &reason); err != nil {
		return models.ParticipationAsset{}, err
	}
	a.SHA256 = textPtr(sha)
	a.PHash = textPtr(phash)
	a.AIVerified = boolPtr(verified)
	a.AIVerifyReason = textPtr(reason)
	return a, nil
}

// UpdateAssetDigests writes both fingerprints back to the asset row.
func (s *Store) UpdateAssetDigests(ctx context.Context, assetID, sha256, phash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participation_assets SET sha256 = $2, phash = $3 WHERE id = $1
	`, assetID, sha256, phash)
	if err != nil {
		return fmt.Errorf("update digests: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	return nil
}

// SetAssetVerification records the AI vision verdict for one screenshot.
// Read-only for scoring; the review UI displays it.
func (s *Store) SetAssetVerification(ctx context.Context, assetID string, valid bool, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE participation_assets SET ai_verified = $2, ai_verify_reason = $3 WHERE id = $1
	`, assetID, valid, reason)
	return err
}

// SetTextQuality records the AI text-quality verdict on the participation.
func (s *Store) SetTextQuality(ctx context.Context, participationID string, valid bool, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE participations SET ai_text_valid = $2, ai_text_reason = $3 WHERE id = $1
	`, participationID, valid, reason)
	return err
}

// AssetsBySHA256 finds byte-identical uploads anywhere in history, excluding
// the asset itself.
func (s *Store) AssetsBySHA256(ctx context.Context, digest, excludeAssetID string) ([]models.ParticipationAsset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participation_id, slot, storage_key, sha256, phash, ai_verified, ai_verify_reason
		FROM participation_assets WHERE sha256 = $1 AND id <> $2
	`, digest, excludeAssetID)
	if err != nil {
		return nil, fmt.Errorf("query assets by sha256: %w", err)
	}
	defer rows.Close()

	var assets []models.ParticipationAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// PerceptualDigest is the slice of an asset the similarity scan reads.
type PerceptualDigest struct {
	AssetID         string
	ParticipationID string
	PHash           string
}

// AllPerceptualHashes returns every stored perceptual digest except the
// asset's own, optionally scoped to one user's participations.
func (s *Store) AllPerceptualHashes(ctx context.Context, excludeAssetID, userID string) ([]PerceptualDigest, error) {
	query := `
		SELECT a.id, a.participation_id, a.phash
		FROM participation_assets a
		WHERE a.phash IS NOT NULL AND a.id <> $1
	`
	args := []any{excludeAssetID}
	if userID != "" {
		query += ` AND a.participation_id IN (SELECT id FROM participations WHERE user_id = $2)`
		args = append(args, userID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query phashes: %w", err)
	}
	defer rows.Close()

	var digests []PerceptualDigest
	for rows.Next() {
		var d PerceptualDigest
		if err := rows.Scan(&d.AssetID, &d.ParticipationID, &d.PHash); err != nil {
			return nil, fmt.Errorf("scan phash: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// CountDeviceParticipations counts participations whose submitter shares the
// device fingerprint within the window.
func (s *Store) CountDeviceParticipations(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM participations p
		JOIN users u ON u.id = p.user_id
		WHERE u.device_fingerprint = $1 AND p.submitted_at >= $2
	`, fingerprint, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count device participations: %w", err)
	}
	return n, nil
}

// CountUserParticipations counts one user's submissions within the window.
func (s *Store) CountUserParticipations(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM participations WHERE user_id = $1 AND submitted_at >= $2
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user participations: %w", err)
	}
	return n, nil
}

// FindDuplicateFeedback returns the id of another participation whose
// feedback is byte-identical, if any.
func (s *Store) FindDuplicateFeedback(ctx context.Context, feedback, excludeParticipationID string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM participations WHERE feedback = $1 AND id <> $2 LIMIT 1
	`, feedback, excludeParticipationID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find duplicate feedback: %w", err)
	}
	return id, true, nil
}

// ApplyFraudResult persists one scoring run: every signal row plus the
// participation's score, decision, reasons and workflow status, all in a
// single transaction. Nothing is visible if any piece fails.
func (s *Store) ApplyFraudResult(ctx context.Context, participationID string, signals []models.FraudSignal, score int, decision, status string, reasons []string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op after commit

	now := time.Now().UTC()
	for _, sig := range signals {
		details, err := json.Marshal(sig.Details)
		if err != nil {
			return fmt.Errorf("marshal signal details: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO fraud_signals (id, participation_id, signal_type, signal_value, score, details, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), participationID, sig.SignalType, sig.SignalValue, sig.Score, details, now)
		if err != nil {
			return fmt.Errorf("insert signal %s: %w", sig.SignalType, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE participations
		SET fraud_score = $2, fraud_decision = $3, fraud_reasons = $4, status = $5, scored_at = $6
		WHERE id = $1
	`, participationID, score, decision, reasons, status, now)
	if err != nil {
		return fmt.Errorf("update participation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participation %s: %w", participationID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fraud result: %w", err)
	}
	return nil
}

// ListSignals returns the append-only signal history for a participation.
func (s *Store) ListSignals(ctx context.Context, participationID string) ([]models.FraudSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participation_id, signal_type, signal_value, score, details, created_at
		FROM fraud_signals WHERE participation_id = $1 ORDER BY created_at
	`, participationID)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.FraudSignal
	for rows.Next() {
		var sig models.FraudSignal
		var details []byte
		if err := rows.Scan(&sig.ID, &sig.ParticipationID, &sig.SignalType, &sig.SignalValue, &sig.Score, &details, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &sig.Details); err != nil {
				return nil, fmt.Errorf("unmarshal signal details: %w", err)
			}
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ListCampaignFeedback returns the non-empty feedback texts for a campaign,
// newest first, bounded for prompt-size reasons.
func (s *Store) ListCampaignFeedback(ctx context.Context, campaignID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT feedback FROM participations
		WHERE campaign_id = $1 AND feedback <> ''
		ORDER BY submitted_at DESC LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("query campaign feedback: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// SetCampaignInsight stores the generated feedback summary on the campaign.
func (s *Store) SetCampaignInsight(ctx context.Context, campaignID, insight string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET insight = $2, insight_generated_at = NOW() WHERE id = $1
	`, campaignID, insight)
	if err != nil {
		return fmt.Errorf("update campaign insight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return nil
}
