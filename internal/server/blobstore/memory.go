package blobstore

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
)

// MemoryStore is an in-process Store. The hooks, when set, run before the
// matching operation and abort it with their error.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	PutHook    func(key string) error
	DeleteHook func(key string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.PutHook != nil {
		if err := m.PutHook(key); err != nil {
			return err
		}
	}
	b := make([]byte, len(body))
	copy(b, body)

	m.mu.Lock()
	m.objects[key] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.DeleteHook != nil {
		if err := m.DeleteHook(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Has reports whether key is stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
