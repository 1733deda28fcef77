package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Backend for testing.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	calls   MockCalls

	// PutErr, when set, is returned by every Put.
	PutErr error
}

// MockCalls tracks method invocations for test verification.
type MockCalls struct {
	Put    int
	Get    int
	Exists int
	Delete int
	List   int
}

// NewMockStore creates a new in-memory object store.
func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string]*Object)}
}

// Put stores a copy of obj.
func (m *MockStore) Put(_ context.Context, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Put++
	if m.PutErr != nil {
		return m.PutErr
	}

	stored := *obj
	stored.Data = append([]byte(nil), obj.Data...)
	if stored.Metadata.CreatedAt.IsZero() {
		stored.Metadata.CreatedAt = time.Now()
	}
	m.objects[obj.Key] = &stored
	return nil
}

// Get returns a copy of the object stored under key.
func (m *MockStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Get++

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound{Key: key}
	}
	out := *obj
	out.Data = append([]byte(nil), obj.Data...)
	return &out, nil
}

// Exists checks if an object is stored under key.
func (m *MockStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Exists++

	_, ok := m.objects[key]
	return ok, nil
}

// Delete removes an object.
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Delete++

	if _, ok := m.objects[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.objects, key)
	return nil
}

// List returns the keys starting with prefix, sorted.
func (m *MockStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.List++

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Calls returns a snapshot of the invocation counters.
func (m *MockStore) Calls() MockCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Len returns the number of stored objects.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
