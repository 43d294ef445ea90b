package messaging

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-quest/progression-engine/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestInMemoryEventBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var got []shared.Event
	err := bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)

	event := shared.NewXPGainedEvent("user-1", 40, 140, "quest", "key-1")
	require.NoError(t, bus.Publish(event))

	require.Len(t, got, 1)
	assert.Equal(t, shared.EventXPGained, got[0].EventType())
	assert.Equal(t, "user-1", got[0].AggregateID())
}

func TestInMemoryEventBus_TypeFiltering(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	levelUps := 0
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		levelUps++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 40, 140, "quest", "key-1")))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 5)))

	assert.Equal(t, 1, levelUps)
}

func TestInMemoryEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen = append(seen, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 40, 140, "quest", "key-1")))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 5)))

	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, seen)
}

func TestInMemoryEventBus_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventXPGained, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewXPGainedEvent("user-1", 40, 140, "quest", "key-1"))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventXPGained, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Close is idempotent.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_AsyncHandlersCompleteBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		EnableMetrics:  true,
	})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 1, int64(i), "quest", fmt.Sprintf("key-%d", i))))
	}

	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestInMemoryEventBus_MetricsTrackOutcomes(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error {
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("user-1", 40, 140, "quest", "key-1")))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 5)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 1e-9)
}
