package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryBackend is used when Redis is not configured.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) live(key string) (memoryEntry, bool) {
	e, ok := b.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !b.now().Before(e.expiresAt) {
		delete(b.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (b *MemoryBackend) Get(_ context.Context, key string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	rec := e.rec
	rec.Body = append([]byte(nil), e.rec.Body...)
	return &rec, nil
}

func (b *MemoryBackend) Reserve(_ context.Context, rec Record, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live(rec.Key); ok {
		return false, nil
	}
	b.entries[rec.Key] = memoryEntry{rec: rec, expiresAt: b.now().Add(ttl)}
	return true, nil
}

func (b *MemoryBackend) Put(_ context.Context, rec Record, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec.Body = append([]byte(nil), rec.Body...)
	b.entries[rec.Key] = memoryEntry{rec: rec, expiresAt: b.now().Add(ttl)}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}
