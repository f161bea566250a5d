package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is a non-persistent Store, used by tests and the `memory` backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]json.RawMessage)}
}

// Write saves a value with the given key.
func (m *Memory) Write(_ context.Context, namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]json.RawMessage)
		m.data[namespace] = ns
	}
	ns[key] = data
	return nil
}

// Read retrieves a value by key.
func (m *Memory) Read(_ context.Context, namespace, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(value))
	copy(out, value)
	return out, nil
}
