package metrics

import (
	"context"
	"errors"
	"io"
	"sync"
)

type modelKey struct {
	metric     string
	checkpoint string
}

type modelEntry struct {
	once    sync.Once
	backend Backend
	err     error
}

// Models caches loaded backends per (metric, checkpoint). A backend is
// loaded once and reused for every later call in the process; a failed load
// is forgotten so the next call tries again.
type Models struct {
	mu      sync.Mutex
	entries map[modelKey]*modelEntry
}

// NewModels returns an empty cache.
func NewModels() *Models {
	return &Models{entries: map[modelKey]*modelEntry{}}
}

// Get returns the backend for d at checkpoint, loading it on first use.
func (m *Models) Get(ctx context.Context, d Descriptor, checkpoint string) (Backend, error) {
	key := modelKey{metric: d.ID, checkpoint: checkpoint}
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &modelEntry{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.backend, e.err = d.Loader(ctx, checkpoint)
	})
	if e.err != nil {
		m.mu.Lock()
		if m.entries[key] == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, e.err
	}
	return e.backend, nil
}

// Len returns the number of loaded backends.
func (m *Models) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close releases every cached backend that implements io.Closer.
func (m *Models) Close() error {
	m.mu.Lock()
	entries := m.entries
	m.entries = map[modelKey]*modelEntry{}
	m.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if c, ok := e.backend.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
