package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coocood/freecache"
)

// DefaultMemoryBytes is the default memory budget of a MemoryStore
const DefaultMemoryBytes = 64 << 20

// MemoryStore is an in-process Store bounded by a byte budget. Entries expire
// after the TTL (second resolution); when the budget is full the oldest
// entries are overwritten first.
type MemoryStore struct {
	mu     sync.RWMutex
	cache  *freecache.Cache
	ttl    int // seconds
	closed bool
}

// NewMemoryStore creates a store holding at most maxBytes of entries
func NewMemoryStore(ttl time.Duration, maxBytes int) *MemoryStore {
	return newMemoryStore(ttl, maxBytes, nil)
}

func newMemoryStore(ttl time.Duration, maxBytes int, timer freecache.Timer) *MemoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryBytes
	}

	var c *freecache.Cache
	if timer != nil {
		c = freecache.NewCacheCustomTimer(maxBytes, timer)
	} else {
		c = freecache.NewCache(maxBytes)
	}

	return &MemoryStore{
		cache: c,
		ttl:   int(math.Ceil(ttl.Seconds())),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Entry{}, ErrStoreClosed
	}

	data, err := m.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("memory cache get failed: %w", err)
	}
	return Decode(data)
}

func (m *MemoryStore) Set(ctx context.Context, key string, e Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}

	if err := m.cache.Set([]byte(key), data, m.ttl); err != nil {
		return fmt.Errorf("memory cache set failed (%d bytes): %w", len(data), err)
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Len returns the number of held entries, expired ones not yet overwritten
// included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0
	}
	return int(m.cache.EntryCount())
}

// Evicted returns how many live entries were overwritten to make room
func (m *MemoryStore) Evicted() int64 {
	return m.cache.EvacuateCount()
}

// Close drops all entries
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.Clear()
	return nil
}
