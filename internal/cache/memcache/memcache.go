// Package memcache is the in-process, map-backed Store implementation,
// for tests and single-process deployments. Modeled on
// internal/storage/memory/resources.go's plain mutex-guarded map,
// adapted to the cache.Store contract.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/cubedlayer/cubed/internal/cache"
)

func init() {
	cache.Register("memory", func(_ context.Context, _ string) (cache.Store, error) {
		return New(), nil
	})
}

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Memcache is an in-process cache.Store. Safe for concurrent use.
type Memcache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Memcache.
func New() *Memcache {
	return &Memcache{entries: make(map[string]entry)}
}

func (m *Memcache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memcache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte{}, value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

var _ cache.Store = (*Memcache)(nil)
