// ABOUTME: Tests for the event id de-duplication cache
// ABOUTME: Covers duplicate detection, expiry, capacity eviction, and concurrent observers

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache, *fakeClock) {
	t.Helper()
	c := New(ttl, size)
	t.Cleanup(c.Close)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c.mu.Lock()
	c.now = clock.Now
	c.mu.Unlock()
	return c, clock
}

func TestObserve_FirstThenDuplicate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Observe("$event1"))
	assert.True(t, c.Observe("$event1"))
	assert.False(t, c.Observe("$event2"))
	assert.Equal(t, 2, c.Len())
}

func TestObserve_AfterTTL(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	require.False(t, c.Observe("$event1"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Observe("$event1"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Observe("$event1"), "expired key counts as new")
	assert.True(t, c.Observe("$event1"))
}

func TestObserve_EvictsOldest(t *testing.T) {
	c, clock := newTestCache(t, time.Hour, 3)

	for i := 1; i <= 3; i++ {
		c.Observe(fmt.Sprintf("k%d", i))
		clock.Advance(time.Second)
	}
	c.Observe("k4")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Observe("k1"), "k1 should have been evicted")
	assert.True(t, c.Observe("k4"))
}

func TestExpire(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Observe("old1")
	c.Observe("old2")
	clock.Advance(45 * time.Second)
	c.Observe("fresh")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 2, c.Expire())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Observe("fresh"))
}

func TestNew_Defaults(t *testing.T) {
	c := New(0, 0)
	defer c.Close()
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, DefaultMaxSize, c.maxSize)
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestObserve_ConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 100)

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Observe("$same") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}
