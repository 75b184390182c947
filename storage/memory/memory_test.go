package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/hubuum-bff/storage"
	"github.com/jmcleod/hubuum-bff/storage/storetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := New(time.Hour, WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })

	storetest.Run(t, storetest.Harness{
		Store:   store,
		TTL:     time.Hour,
		Advance: clock.Advance,
	})
}

func TestMemoryStore_LazyEviction(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := New(time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "a", storage.Record{Token: "t"}))
	assert.Equal(t, 1, store.Len())

	clock.Advance(2 * time.Minute)
	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len(), "expired entry should be removed on read")
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := New(time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "old", storage.Record{Token: "t1"}))
	clock.Advance(30 * time.Second)
	require.NoError(t, store.Create(ctx, "new", storage.Record{Token: "t2"}))
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, ok, err := store.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_SweepLoopStopsOnClose(t *testing.T) {
	store := New(time.Millisecond, WithSweepInterval(5*time.Millisecond))
	require.NoError(t, store.Create(context.Background(), "a", storage.Record{Token: "t"}))

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Close must be idempotent")
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := New(time.Hour)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Touch(ctx, "shared", storage.Record{Token: "tok"})
				_, _, _ = store.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()
	rec, ok, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok", rec.Token)
}
