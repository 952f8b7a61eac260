package properties

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	scope  string
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory(scope string) *Memory {
	return &Memory{
		scope:  scope,
		values: make(map[string]string),
	}
}

func (m *Memory) key(key string) string {
	return m.scope + "\x00" + key
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[m.key(key)]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[m.key(key)] = value
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, m.key(key))
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
