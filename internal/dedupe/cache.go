// ABOUTME: Bounded, expiring set of recently observed event ids
// ABOUTME: Guards the Matrix bridge against handling a redelivered event twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the bridge.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 4096
)

type entry struct {
	key  string
	seen time.Time
}

// Cache is a thread-safe set of keys that forgets entries after a TTL and
// evicts the oldest entry once MaxSize keys are held.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts a janitor that drops expired keys every
// ttl/2. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.janitor(ttl / 2)
	return c
}

// Observe records key and reports whether it had already been observed within
// the TTL. The first observation returns false.
func (c *Cache) Observe(key string) (duplicate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seen) < c.ttl {
			return true
		}
		// Expired: treat as new and move to the back.
		e.seen = now
		c.order.MoveToBack(el)
		return false
	}

	for len(c.index) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seen: now})
	return false
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Expire drops every key older than the TTL and returns how many were removed.
func (c *Cache) Expire() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.seen) < c.ttl {
			// Entries are kept in observation order, the rest are newer.
			break
		}
		next := el.Next()
		c.removeLocked(el)
		removed++
		el = next
	}
	return removed
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}

func (c *Cache) janitor(every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Expire()
		case <-c.done:
			return
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
