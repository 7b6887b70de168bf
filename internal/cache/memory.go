package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process Store backed by ristretto with per-entry TTL.
// Entries are evicted by TTL or by cost pressure, whichever comes first;
// eviction only degrades the cache-hit rate, never correctness.
type Memory struct {
	cache *ristretto.Cache[string, []byte]
}

// MemoryConfig configures the in-memory store
type MemoryConfig struct {
	// MaxCostBytes bounds the total cached payload size (default 32MB)
	MaxCostBytes int64
}

// NewMemory creates an in-memory TTL store
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	maxCost := cfg.MaxCostBytes
	if maxCost == 0 {
		maxCost = 32 << 20
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Counters track access frequency; 10x expected entries is the
		// ristretto guidance
		NumCounters: 1e6,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cache: %w", err)
	}

	return &Memory{cache: c}, nil
}

// Get implements Store
func (m *Memory) Get(_ context.Context, ns Namespace, key string) ([]byte, bool) {
	return m.cache.Get(namespacedKey(ns, key))
}

// Set implements Store. The write is flushed before returning so a Set
// followed by a Get on the same entry observes the value; callers needing
// fire-and-forget semantics go through Writer instead of calling this on
// the request path.
func (m *Memory) Set(_ context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if !m.cache.SetWithTTL(namespacedKey(ns, key), value, int64(len(value)), ttl) {
		return fmt.Errorf("cache rejected entry %s", namespacedKey(ns, key))
	}
	m.cache.Wait()
	return nil
}

// Close releases cache resources
func (m *Memory) Close() {
	m.cache.Close()
}

// Null is a Store that misses on every Get and discards every Set. It backs
// deployments running without a cache and tests that exercise the miss path.
type Null struct{}

// NewNull creates a no-op store
func NewNull() *Null {
	return &Null{}
}

// Get implements Store
func (*Null) Get(context.Context, Namespace, string) ([]byte, bool) {
	return nil, false
}

// Set implements Store
func (*Null) Set(context.Context, Namespace, string, []byte, time.Duration) error {
	return nil
}
