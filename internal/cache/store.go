package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/models"
)

// ErrTransient wraps any backend read or write failure.
var ErrTransient = errors.New("transient cache error")

// Backend is the persistence underneath Store. Implementations must upsert
// atomically on (owner, key) and return (nil, nil) for a miss.
type Backend interface {
	GetCacheEntry(ctx context.Context, ownerID, key string, now time.Time) (*models.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
}

// Store is the per-owner audio cache. Lookup and Store never return backend
// errors: caching is best-effort and a failure degrades to a miss.
type Store struct {
	backend    Backend
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore wraps backend. A non-positive defaultTTL means 30 days.
func NewStore(backend Backend, defaultTTL time.Duration, opts ...Option) *Store {
	if defaultTTL <= 0 {
		defaultTTL = models.DefaultCacheTTL
	}
	s := &Store{
		backend:    backend,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultTTL returns the ttl used when Store is given none.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Lookup returns the valid entry for (ownerID, key), if any. Anonymous
// callers never reach the backend.
func (s *Store) Lookup(ctx context.Context, ownerID, key string) (*models.CacheEntry, bool) {
	if ownerID == "" || s.backend == nil {
		return nil, false
	}

	now := s.now()
	entry, err := s.backend.GetCacheEntry(ctx, ownerID, key, now)
	if err != nil {
		logger.Warnf("[Cache] Lookup failed (owner=%s, key=%s): %v", ownerID, key, transient("lookup", err))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	// Backends filter on expiry too; this guards against one that does not.
	if entry.OwnerID != ownerID || entry.Expired(now) {
		return nil, false
	}

	return entry, true
}

// Store upserts payload under (ownerID, key). Failures are logged only.
func (s *Store) Store(ctx context.Context, ownerID, key, payload string, ttl time.Duration) {
	if ownerID == "" || s.backend == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	entry := &models.CacheEntry{
		OwnerID:   ownerID,
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.backend.UpsertCacheEntry(ctx, entry); err != nil {
		logger.Warnf("[Cache] Store failed (owner=%s, key=%s): %v", ownerID, key, transient("store", err))
		return
	}
	logger.Debugf("[Cache] Stored %s for owner %s (%d chars, expires %s)",
		key, ownerID, len(payload), entry.ExpiresAt.Format(time.RFC3339))
}

// PurgeExpired physically removes expired entries.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if s.backend == nil {
		return 0, nil
	}
	n, err := s.backend.DeleteExpiredCacheEntries(ctx, s.now())
	if err != nil {
		return 0, transient("purge", err)
	}
	return n, nil
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (s *Store) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.Warnf("[Cache] Purge failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("[Cache] Purged %d expired entries", n)
			}
		}
	}
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}
