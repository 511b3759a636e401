package wincache

import (
	"context"
	"sync/atomic"
	"time"
)

type memEntry struct {
	entry   *Entry
	gen     uint64
	expires time.Time
}

// MemoryBackend keeps the entry in process. Readers and writers only touch
// atomics, so neither ever blocks the other.
type MemoryBackend struct {
	cur atomic.Pointer[memEntry]
	gen atomic.Uint64
	now func() time.Time
}

// NewMemoryBackend creates an in-process backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{now: time.Now}
}

// Get implements Backend
func (m *MemoryBackend) Get(ctx context.Context) (*Entry, uint64, error) {
	gen := m.gen.Load()
	e := m.cur.Load()
	if e == nil || e.gen != gen || m.now().After(e.expires) {
		return nil, gen, nil
	}
	return e.entry, gen, nil
}

// Put implements Backend
func (m *MemoryBackend) Put(ctx context.Context, entry *Entry, gen uint64, ttl time.Duration) (bool, error) {
	if m.gen.Load() != gen {
		return false, nil
	}
	// an invalidation racing this store bumps gen, so Get will ignore the entry
	m.cur.Store(&memEntry{entry: entry, gen: gen, expires: m.now().Add(ttl)})
	return true, nil
}

// Invalidate implements Backend
func (m *MemoryBackend) Invalidate(ctx context.Context) error {
	m.gen.Add(1)
	m.cur.Store(nil)
	return nil
}
