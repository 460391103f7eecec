package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/wellvoice/internal/models"
)

// GetVoiceSettings returns the owner's saved settings, or nil if none were saved.
func (db *DB) GetVoiceSettings(ctx context.Context, ownerID string) (*models.VoiceSettings, error) {
	query := `
		SELECT enabled, voice_id, stability, similarity_boost
		FROM voice_settings
		WHERE owner_id = $1
	`

	s := &models.VoiceSettings{}
	err := db.QueryRowContext(ctx, query, ownerID).Scan(
		&s.Enabled, &s.VoiceID, &s.Stability, &s.SimilarityBoost,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice settings: %w", err)
	}

	return s, nil
}

// UpsertVoiceSettings saves the owner's settings.
func (db *DB) UpsertVoiceSettings(ctx context.Context, ownerID string, s models.VoiceSettings) error {
	query := `
		INSERT INTO voice_settings (owner_id, enabled, voice_id, stability, similarity_boost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			voice_id = EXCLUDED.voice_id,
			stability = EXCLUDED.stability,
			similarity_boost = EXCLUDED.similarity_boost,
			updated_at = NOW()
	`

	_, err := db.ExecContext(ctx, query, ownerID, s.Enabled, s.VoiceID, s.Stability, s.SimilarityBoost)
	if err != nil {
		return fmt.Errorf("failed to upsert voice settings: %w", err)
	}

	return nil
}
