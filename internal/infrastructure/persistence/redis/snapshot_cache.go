package redis

import (
	"context"
	"errors"
	"time"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

// SnapshotCache implements profile.SnapshotCache on top of the generic Cache.
// Snapshots are whole serialized profiles with a short TTL; the write path
// refreshes them after every persisted mutation.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// Set stores a profile snapshot with the given TTL.
func (s *SnapshotCache) Set(ctx context.Context, p *profile.UserProfile, ttl time.Duration) error {
	if p == nil {
		return ErrCacheNilValue
	}
	return s.cache.Set(ctx, ProfileKey(p.ID), p, ttl)
}

// Get returns the cached snapshot or (nil, nil) on a miss.
func (s *SnapshotCache) Get(ctx context.Context, id string) (*profile.UserProfile, error) {
	var p profile.UserProfile
	err := s.cache.Get(ctx, ProfileKey(id), &p)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Invalidate removes the snapshot after a mutation.
func (s *SnapshotCache) Invalidate(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, ProfileKey(id))
}
