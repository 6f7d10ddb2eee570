package executor

import "sync"

// DataMap is the key-value map shared by the trunk and workers of a query.
// Safe for concurrent use by multiple goroutines.
type DataMap struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewDataMap creates an empty map.
func NewDataMap() *DataMap {
	return &DataMap{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (m *DataMap) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *DataMap) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Put stores value under key, replacing any previous value.
func (m *DataMap) Put(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// PutIfAbsent stores value under key unless the key is present, and reports
// whether it stored.
func (m *DataMap) PutIfAbsent(key string, value any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false
	}
	m.values[key] = value
	return true
}

// Remove deletes key.
func (m *DataMap) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Snapshot returns a copy of the map contents.
func (m *DataMap) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
