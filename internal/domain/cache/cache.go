// Package cache implements the Response Cache (spec.md §4.C): a TTL-bounded
// store of shaped tool-call results keyed by qualified tool name and
// canonicalized arguments, with single-flight coalescing of concurrent
// identical calls. The eviction and background-cleanup idiom is grounded on
// the teacher's MemoryRateLimiter (map + mutex + cleanup ticker + sync.Once
// stop); the single-flight coordination uses golang.org/x/sync/singleflight
// rather than a hand-rolled wait-group-per-key, since that is the ecosystem's
// standard tool for this exact problem.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is a single cached response with its expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is the Response Cache. Zero value is not usable; use New.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	hits   uint64
	misses uint64

	cleanupInterval time.Duration
	stopOnce        sync.Once
	stopCh          chan struct{}
}

// New creates a Cache and starts its background eviction loop.
// cleanupInterval controls how often expired entries are swept; callers
// should call Close when done to stop the background goroutine.
func New(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &Cache{
		entries:         make(map[string]entry),
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key canonicalizes a qualified tool name and its (already-overridden)
// arguments into a stable cache key: SHA-256 of the qualified tool name
// concatenated with the recursively key-sorted JSON encoding of args. Two
// semantically identical argument maps always produce the same key
// regardless of map iteration order.
func Key(qualifiedTool string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(qualifiedTool))
	h.Write([]byte{0})
	h.Write(canonicalJSON(args))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON renders v as JSON with every object's keys sorted, so that
// map iteration order never affects the resulting bytes.
func canonicalJSON(v any) []byte {
	out, _ := json.Marshal(sortValue(v))
	return out
}

func sortValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyValue, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, keyValue{Key: k, Value: sortValue(val[k])})
		}
		return orderedObject(ordered)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortValue(item)
		}
		return out
	default:
		return val
	}
}

type keyValue struct {
	Key   string
	Value any
}

// orderedObject marshals to a JSON object preserving insertion order, which
// sortValue has already sorted by key.
type orderedObject []keyValue

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, kv := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, _ := json.Marshal(kv.Key)
		buf = append(buf, k...)
		buf = append(buf, ':')
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Builder produces the value to cache on a miss. It is invoked at most once
// per key across any number of concurrent GetOrCompute calls racing on that
// key (Invariant I3 / Property P4).
type Builder func() (any, error)

// GetOrCompute returns the cached value for key if present and unexpired;
// otherwise it invokes builder exactly once (coalescing concurrent callers
// for the same key via singleflight) and stores the result under ttl.
//
// A builder error is never cached: callers racing on a failing key will each
// see the shared error for that in-flight call, but the next call after it
// resolves gets a fresh attempt.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, builder Builder) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		val, err := builder()
		if err != nil {
			return nil, err
		}
		c.store(key, val, ttl)
		return val, nil
	})
	return v, err
}

// Peek returns the cached value for key without triggering single-flight
// computation on a miss, e.g. for a read that must not pay the cost of
// starting a builder.
func (c *Cache) Peek(key string) (any, bool) {
	return c.lookup(key)
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

func (c *Cache) store(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns cumulative hit/miss counters for observability.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the current number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Close stops the background cleanup goroutine. Idempotent.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
