package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/wellvoice/internal/models"
)

// GetCacheEntry returns the unexpired entry for (ownerID, key), or nil on a miss.
func (db *DB) GetCacheEntry(ctx context.Context, ownerID, key string, now time.Time) (*models.CacheEntry, error) {
	query := `
		SELECT owner_id, cache_key, payload, created_at, expires_at
		FROM voice_cache
		WHERE owner_id = $1 AND cache_key = $2 AND expires_at >= $3
	`

	entry := &models.CacheEntry{}
	err := db.QueryRowContext(ctx, query, ownerID, key, now).Scan(
		&entry.OwnerID, &entry.Key, &entry.Payload,
		&entry.CreatedAt, &entry.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// UpsertCacheEntry writes entry in a single statement against the unique
// (owner_id, cache_key) index. A concurrent writer for the same pair wins or
// loses whole; there is no read-then-branch.
func (db *DB) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO voice_cache (owner_id, cache_key, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, cache_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := db.ExecContext(
		ctx, query,
		entry.OwnerID, entry.Key, entry.Payload, entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// DeleteExpiredCacheEntries removes rows whose expires_at has passed.
func (db *DB) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM voice_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rows, nil
}
