package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestEventBus_PublishReachesSubscriber(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var received []shared.Event
	err := bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		received = append(received, e)
		return nil
	})
	require.NoError(t, err)

	event := shared.NewLevelUpEvent("user-1", 1, 2, 150)
	require.NoError(t, bus.Publish(event))

	require.Len(t, received, 1)
	assert.Equal(t, shared.EventLevelUp, received[0].EventType())
	assert.Equal(t, "user-1", received[0].AggregateID())
}

func TestEventBus_TypeFiltering(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var levelUps, streaks int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		levelUps++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakBroken, func(shared.Event) error {
		streaks++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 2, 3, 450)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user-1", 5, 3)))

	assert.Equal(t, 2, levelUps)
	assert.Equal(t, 1, streaks)
}

func TestEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen = append(seen, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user-1", 5, 3)))

	assert.Equal(t, []shared.EventType{shared.EventLevelUp, shared.EventStreakBroken}, seen)
}

func TestEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		EnableMetrics:  true,
	})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", i, i+1, 150)))
	}

	// Close waits for in-flight handlers
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestEventBus_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var secondCalled bool
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		return assert.AnError
	}))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		secondCalled = true
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))
	assert.True(t, secondCalled)
}

func TestEventBus_MetricsRecorded(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return assert.AnError }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
	assert.GreaterOrEqual(t, snap.AverageHandlerDuration, time.Duration(0))
}
