package objectstore

import (
	"bytes"
	"context"
	"sync"
)

type memoryObject struct {
	data []byte
	meta Object
}

// MemoryStore keeps objects in process memory. Used in tests and dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	obj := &memoryObject{
		data: bytes.Clone(data),
		meta: Object{
			Key:         key,
			Size:        int64(len(data)),
			ContentType: contentType,
			Checksum:    Checksum(data),
		},
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	meta := obj.meta
	return &meta, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, *Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, ErrObjectNotFound
	}
	meta := obj.meta
	return bytes.Clone(obj.data), &meta, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
