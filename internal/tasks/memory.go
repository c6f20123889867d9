package tasks

import (
	"context"
	"sync"
)

// Memory is a Backend kept in process memory.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte

	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data[key] = append([]byte(nil), blob...)
	return nil
}

// Put stores raw bytes, bypassing SaveErr.
func (m *Memory) Put(key string, blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), blob...)
}
