package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a mutex-guarded in-process Provider honouring TTLs.
// It backs local development and tests; expiry is checked lazily on read.
type MemoryProvider struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// SetClock overrides the time source used for expiry checks.
func (p *MemoryProvider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now != nil {
		p.now = now
	}
}

// Get fetches bytes by key, returning ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && p.now().After(item.expiresAt) {
		delete(p.items, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores bytes with the provided TTL. Zero TTL means no expiry.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: p.expiry(ttl)}
	return nil
}

// SetNX stores the value only if the key does not exist (or has expired).
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if item, ok := p.items[key]; ok {
		if item.expiresAt.IsZero() || p.now().Before(item.expiresAt) {
			return false, nil
		}
	}
	p.items[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: p.expiry(ttl)}
	return true, nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, key)
	return nil
}

// Close is a no-op for the in-memory provider.
func (p *MemoryProvider) Close() error { return nil }

func (p *MemoryProvider) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return p.now().Add(ttl)
}
