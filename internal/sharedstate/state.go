// Package sharedstate implements the process-wide key/value map agents use
// to publish and read belief state (§4.2). Values are stored as opaque
// blobs; callers marshal/unmarshal their own types. Writes are
// last-writer-wins and reads may observe stale values — no caller requires
// read-modify-write atomicity.
package sharedstate

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no TTL
}

// Map is a concurrency-safe, flat key to opaque-blob store.
type Map struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]entry)}
}

// Set stores value under key with no expiry, overwriting any prior value.
func (m *Map) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: append([]byte(nil), value...)}
}

// SetWithTTL stores value under key, expiring it after ttl. No component
// relies on TTL for correctness; the producers' shared-state mirrors are
// written with Set, without a TTL.
func (m *Map) SetWithTTL(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: time.Now().Add(ttl)}
}

// Get returns the value for key and whether it was present and unexpired.
func (m *Map) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Delete removes key, if present.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// KeysByPrefix returns all non-expired keys beginning with prefix. Used by
// the archiver to scan "policy:*" (§4.12).
func (m *Map) KeysByPrefix(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
