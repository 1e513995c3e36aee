// Package cache memoizes recommendation results with a TTL and a bounded size.
package cache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/osusume/internal/models"
)

const (
	// DefaultTTL is used when Put is given a non-positive ttl.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxSize bounds the number of entries.
	DefaultMaxSize = 100
)

type entry[V any] struct {
	key     string
	value   V
	created time.Time
	expires time.Time
}

// Cache is a TTL cache bounded by entry count. When full, the entry created first is evicted,
// regardless of how recently it was read. Reads take a shared lock; writes are exclusive.
type Cache[V any] struct {
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = oldest created

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// WithMaxSize sets the entry limit.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithDefaultTTL sets the ttl applied when Put receives ttl <= 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{maxSize: DefaultMaxSize, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		maxSize:    o.maxSize,
		defaultTTL: o.ttl,
		now:        o.now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key. An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()

	c.mu.RLock()
	elem, ok := c.entries[key]
	if ok {
		e := elem.Value.(*entry[V])
		if now.Before(e.expires) {
			c.mu.RUnlock()
			c.hits.Add(1)
			return e.value, true
		}
	}
	c.mu.RUnlock()
	c.misses.Add(1)
	if !ok {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another writer may have replaced the entry since the read lock was released.
	if elem, ok := c.entries[key]; ok && !now.Before(elem.Value.(*entry[V]).expires) {
		c.remove(elem)
	}
	return zero, false
}

// Put stores value under key for ttl (the default ttl when ttl <= 0). Replacing a key
// counts as a new creation.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	e := &entry[V]{key: key, value: value, created: now, expires: now.Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
	for c.order.Len() >= c.maxSize {
		c.remove(c.order.Front())
		c.evictions.Add(1)
	}
	c.entries[key] = c.order.PushBack(e)
}

// Invalidate removes key and reports whether it was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if ok {
		c.remove(elem)
	}
	return ok
}

// InvalidatePrefix removes every key starting with prefix and returns how many were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.remove(elem)
			n++
		}
	}
	return n
}

// Clear removes every entry and returns how many were removed.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.order.Len()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return n
}

// Len returns the number of stored entries, expired ones included until they are read.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() models.CacheStats {
	return models.CacheStats{
		Size:      c.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// remove must be called with the write lock held.
func (c *Cache[V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry[V]).key)
}

// Key builds "<scope>/<id>/<fingerprint of params>". All keys for one entity share the
// "<scope>/<id>/" prefix.
func Key(scope string, id int64, params ...any) string {
	return fmt.Sprintf("%s/%d/%s", scope, id, Fingerprint(params...))
}

// Prefix returns the key prefix shared by every Key(scope, id, ...).
func Prefix(scope string, id int64) string {
	return fmt.Sprintf("%s/%d/", scope, id)
}

// Fingerprint is the hex md5 of the params' default formatting joined by "|".
func Fingerprint(params ...any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprint(p)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
