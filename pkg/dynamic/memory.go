package dynamic

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps Dynamic Values in a map. It is safe for concurrent use.
type MemoryStore struct {
	guard

	mu     sync.RWMutex
	values map[string]*Value
	logger *slog.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default().With("component", "dynamic.memory")
	}
	return &MemoryStore{
		values: make(map[string]*Value),
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the value called name.
func (m *MemoryStore) Get(_ context.Context, name string) (*Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	copied := *v
	return &copied, nil
}

// Set creates or replaces a value.
func (m *MemoryStore) Set(_ context.Context, name string, value any) (*Value, error) {
	v, err := newValue(name, value, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.values[name] = v
	m.mu.Unlock()

	m.logger.Debug("dynamic value set", "name", name, "type", v.Type)
	copied := *v
	return &copied, nil
}

// Delete removes a value unless it is still referenced.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[name]; !ok {
		return &NotFoundError{Name: name}
	}
	if err := m.checkUnreferenced(name); err != nil {
		return err
	}
	delete(m.values, name)

	m.logger.Debug("dynamic value deleted", "name", name)
	return nil
}

// List returns every value ordered by name.
func (m *MemoryStore) List(_ context.Context) ([]*Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Value, 0, len(m.values))
	for _, v := range m.values {
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
