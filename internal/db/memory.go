package db

import (
	"context"
	"sync"
)

// Memory is an in-process backend. A non-zero limit caps the total number
// of stored bytes, which makes quota failures reproducible.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	limit   int
	used    int
}

func NewMemory(limit int) *Memory {
	return &Memory{
		entries: make(map[string][]byte),
		limit:   limit,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used - len(m.entries[key]) + len(value)
	if m.limit > 0 && used > m.limit {
		return ErrQuotaExceeded
	}
	m.entries[key] = append([]byte{}, value...)
	m.used = used
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= len(m.entries[key])
	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
