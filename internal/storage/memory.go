package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len reports how many keys are held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// MemoryBackend partitions Memory stores per device and per tab. It is used
// when no Redis endpoint is configured and in tests.
type MemoryBackend struct {
	mu    sync.Mutex
	local map[string]*Memory
	tabs  map[string]*Memory
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		local: make(map[string]*Memory),
		tabs:  make(map[string]*Memory),
	}
}

func (b *MemoryBackend) Local(deviceID string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	return partition(b.local, deviceID)
}

func (b *MemoryBackend) Tab(deviceID, tabID string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	return partition(b.tabs, deviceID+"\x00"+tabID)
}

func partition(parts map[string]*Memory, id string) *Memory {
	store, ok := parts[id]
	if !ok {
		store = NewMemory()
		parts[id] = store
	}
	return store
}
