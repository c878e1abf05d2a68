package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := NewCacheFromClient(client)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func newSnapshotProfile(t *testing.T, id string) *profile.UserProfile {
	t.Helper()

	p, err := profile.NewProfile(profile.NewProfileParams{
		ID:  id,
		Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	p.TokenBalance = 120
	p.TokenLifetimeEarned = 120
	p.StreakDays = 3
	p.BestStreakDays = 5

	mc, err := profile.NewModuleCompletion("intro-to-t4g", 90, p.CreatedAt)
	require.NoError(t, err)
	require.NoError(t, p.RecordModuleCompletion(mc))
	require.NoError(t, p.UnlockAchievement("first-steps", p.CreatedAt))
	require.NoError(t, p.AwardBadge("badge-first-steps", p.CreatedAt))

	return p
}

func TestSnapshotCache_SetGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	snapshots := NewSnapshotCache(cache)
	ctx := context.Background()

	p := newSnapshotProfile(t, "user-1")
	require.NoError(t, snapshots.Set(ctx, p, time.Minute))

	got, err := snapshots.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.TokenBalance, got.TokenBalance)
	assert.Equal(t, p.StreakDays, got.StreakDays)
	assert.Equal(t, p.BestStreakDays, got.BestStreakDays)
	assert.True(t, got.HasCompletedModule("intro-to-t4g"))
	assert.True(t, got.HasAchievement("first-steps"))
	assert.Equal(t, p.Badges, got.Badges)
}

func TestSnapshotCache_MissReturnsNilNil(t *testing.T) {
	cache, _ := newTestCache(t)
	snapshots := NewSnapshotCache(cache)

	got, err := snapshots.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	snapshots := NewSnapshotCache(cache)
	ctx := context.Background()

	p := newSnapshotProfile(t, "user-2")
	require.NoError(t, snapshots.Set(ctx, p, time.Minute))
	require.NoError(t, snapshots.Invalidate(ctx, "user-2"))

	got, err := snapshots.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotCache_ExpiresAfterTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	snapshots := NewSnapshotCache(cache)
	ctx := context.Background()

	p := newSnapshotProfile(t, "user-3")
	require.NoError(t, snapshots.Set(ctx, p, 30*time.Second))

	mr.FastForward(31 * time.Second)

	got, err := snapshots.Get(ctx, "user-3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotCache_SetNilProfile(t *testing.T) {
	cache, _ := newTestCache(t)
	snapshots := NewSnapshotCache(cache)

	err := snapshots.Set(context.Background(), nil, time.Minute)
	assert.ErrorIs(t, err, ErrCacheNilValue)
}

func TestCache_SetNXLock(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, LockKey("reconcile"), "worker-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, LockKey("reconcile"), "worker-2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
