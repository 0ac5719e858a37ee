package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	raw       []byte
	timestamp time.Time
}

// MemoryStats describes the in-memory store's contents and hit rate. A zero
// TTLSeconds means entries never expire.
type MemoryStats struct {
	Entries    int   `json:"entries"`
	Hits       int   `json:"hits"`
	Misses     int   `json:"misses"`
	TTLSeconds int64 `json:"ttl_seconds"`
}

// MemoryStore is a TTL and size bounded map of results. Expired entries are
// dropped by a background sweep and on read; when the store grows past its
// limit the oldest entries are evicted first.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	hits       int
	misses     int

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates a store and starts its cleanup loop. A zero
// cleanupInterval disables the loop.
func NewMemoryStore(ttl time.Duration, maxEntries int, cleanupInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.periodicCleanup(cleanupInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *MemoryStore) periodicCleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return m.ttl > 0 && m.now().Sub(e.timestamp) > m.ttl
}

// Cleanup removes expired entries and enforces the size limit
func (m *MemoryStore) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, key)
		}
	}
	m.evictLocked()
}

func (m *MemoryStore) evictLocked() {
	if m.maxEntries <= 0 || len(m.entries) <= m.maxEntries {
		return
	}

	type keyed struct {
		key string
		ts  time.Time
	}
	entries := make([]keyed, 0, len(m.entries))
	for key, entry := range m.entries {
		entries = append(entries, keyed{key, entry.timestamp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ts.Before(entries[j].ts)
	})

	for _, e := range entries[:len(entries)-m.maxEntries] {
		delete(m.entries, e.key)
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if ok && m.expired(entry) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		m.misses++
		return nil, ErrNotFound
	}
	m.hits++
	return append([]byte(nil), entry.raw...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{raw: append([]byte(nil), raw...), timestamp: m.now()}
	m.evictLocked()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Stats returns a snapshot of the store's counters
func (m *MemoryStore) Stats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MemoryStats{
		Entries:    len(m.entries),
		Hits:       m.hits,
		Misses:     m.misses,
		TTLSeconds: int64(m.ttl / time.Second),
	}
}

// Close stops the cleanup loop and waits for it to exit
func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}
