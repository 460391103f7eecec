package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool shared by the cache and settings stores.
type DB struct {
	*sql.DB
}

// New opens databaseURL and verifies the connection.
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// migrations are idempotent. The unique index on (owner_id, cache_key) is what
// makes UpsertCacheEntry atomic; it must exist before the first write.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS voice_cache (
		owner_id UUID NOT NULL,
		cache_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS voice_cache_owner_key_idx ON voice_cache (owner_id, cache_key)`,
	`CREATE INDEX IF NOT EXISTS voice_cache_expires_at_idx ON voice_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS voice_settings (
		owner_id UUID PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		voice_id TEXT NOT NULL,
		stability DOUBLE PRECISION NOT NULL CHECK (stability >= 0 AND stability <= 1),
		similarity_boost DOUBLE PRECISION NOT NULL CHECK (similarity_boost >= 0 AND similarity_boost <= 1),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the voice tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
