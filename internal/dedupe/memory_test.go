package dedupe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swapguard/internal/logtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestMemory(ttl time.Duration) (*Memory, *fakeNow) {
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory(logtest.New(), ttl, 0)
	m.now = clock.Now
	return m, clock
}

// ========== Memory Tests ==========

func TestMemory_FirstSeenThenDuplicate(t *testing.T) {
	m, _ := newTestMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	seen, err := m.Seen(ctx, "1:0xabc:1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = m.Seen(ctx, "1:0xabc:1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, _ = m.Seen(ctx, "1:0xabc:2")
	assert.False(t, seen)
}

func TestMemory_Expiration(t *testing.T) {
	m, clock := newTestMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	_, _ = m.Seen(ctx, "id")
	clock.Advance(59 * time.Second)
	seen, _ := m.Seen(ctx, "id")
	assert.True(t, seen)

	clock.Advance(time.Minute)
	seen, _ = m.Seen(ctx, "id")
	assert.False(t, seen, "expired id is reinserted")
}

func TestMemory_Sweep(t *testing.T) {
	m, clock := newTestMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = m.Seen(ctx, fmt.Sprintf("old-%d", i))
	}
	clock.Advance(2 * time.Minute)
	_, _ = m.Seen(ctx, "fresh")

	assert.Equal(t, 5, m.sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemory_JanitorRuns(t *testing.T) {
	m := NewMemory(logtest.New(), 10*time.Millisecond, 5*time.Millisecond)
	defer m.Close()

	_, _ = m.Seen(context.Background(), "a")

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemory_CloseIsIdempotent(t *testing.T) {
	m := NewMemory(logtest.New(), time.Second, time.Millisecond)
	m.Close()
	m.Close()
}

func TestMemory_ConcurrentSameID(t *testing.T) {
	m, _ := newTestMemory(time.Minute)
	defer m.Close()

	const workers = 64
	var first, dup int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			seen, err := m.Seen(context.Background(), "same-id")
			assert.NoError(t, err)
			if seen {
				atomic.AddInt64(&dup, 1)
			} else {
				atomic.AddInt64(&first, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(workers-1), dup)
}
