package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteBackend is the on-disk cache used by the local voicectl client.
// Timestamps are stored as unix milliseconds.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens or creates the cache database at path and migrates it.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// One writer at a time; concurrent upserts queue on the pool instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	b := &SQLiteBackend{db: db, path: path}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("[Cache] SQLite cache opened: %s", path)
	return b, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) Path() string {
	return b.path
}

func (b *SQLiteBackend) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS voice_cache (
			owner_id TEXT NOT NULL,
			cache_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS voice_cache_owner_key_idx ON voice_cache (owner_id, cache_key)`,
		`CREATE INDEX IF NOT EXISTS voice_cache_expires_at_idx ON voice_cache (expires_at)`,
		`CREATE TABLE IF NOT EXISTS voice_settings (
			owner_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL,
			voice_id TEXT NOT NULL,
			stability REAL NOT NULL,
			similarity_boost REAL NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			return fmt.Errorf("failed to migrate sqlite cache: %w", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) GetCacheEntry(ctx context.Context, ownerID, key string, now time.Time) (*models.CacheEntry, error) {
	query := `
		SELECT owner_id, cache_key, payload, created_at, expires_at
		FROM voice_cache
		WHERE owner_id = ? AND cache_key = ? AND expires_at >= ?
	`

	var entry models.CacheEntry
	var createdAt, expiresAt int64
	err := b.db.QueryRowContext(ctx, query, ownerID, key, now.UnixMilli()).Scan(
		&entry.OwnerID, &entry.Key, &entry.Payload, &createdAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.CreatedAt = time.UnixMilli(createdAt)
	entry.ExpiresAt = time.UnixMilli(expiresAt)
	return &entry, nil
}

func (b *SQLiteBackend) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO voice_cache (owner_id, cache_key, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, cache_key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err := b.db.ExecContext(ctx, query,
		entry.OwnerID, entry.Key, entry.Payload,
		entry.CreatedAt.UnixMilli(), entry.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM voice_cache WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}

// GetVoiceSettings returns the owner's saved settings, or nil if none were saved.
func (b *SQLiteBackend) GetVoiceSettings(ctx context.Context, ownerID string) (*models.VoiceSettings, error) {
	s := &models.VoiceSettings{}
	err := b.db.QueryRowContext(ctx,
		`SELECT enabled, voice_id, stability, similarity_boost FROM voice_settings WHERE owner_id = ?`,
		ownerID,
	).Scan(&s.Enabled, &s.VoiceID, &s.Stability, &s.SimilarityBoost)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice settings: %w", err)
	}
	return s, nil
}

// UpsertVoiceSettings saves the owner's settings.
func (b *SQLiteBackend) UpsertVoiceSettings(ctx context.Context, ownerID string, s models.VoiceSettings) error {
	query := `
		INSERT INTO voice_settings (owner_id, enabled, voice_id, stability, similarity_boost)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			enabled = excluded.enabled,
			voice_id = excluded.voice_id,
			stability = excluded.stability,
			similarity_boost = excluded.similarity_boost
	`
	if _, err := b.db.ExecContext(ctx, query, ownerID, s.Enabled, s.VoiceID, s.Stability, s.SimilarityBoost); err != nil {
		return fmt.Errorf("failed to upsert voice settings: %w", err)
	}
	return nil
}
