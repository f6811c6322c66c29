package chain

import (
	"bytes"
	"sort"
	"sync"
)

// KVStore is the durable backing store of the ledger.
type KVStore interface {
	// Get returns nil, nil when the key is absent.
	Get(key []byte) ([]byte, error)
	// Write applies all entries atomically. A nil value deletes the key.
	Write(entries map[string][]byte) error
	// Iterate visits keys in [lower, upper) in ascending order until fn
	// returns false.
	Iterate(lower, upper []byte, fn func(key, value []byte) bool) error
	Close() error
}

// MemKV is an in-memory KVStore for tests and ephemeral devnets.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemKV) Write(entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		if v == nil {
			delete(m.data, k)
			continue
		}
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemKV) Iterate(lower, upper []byte, fn func(key, value []byte) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		kb := []byte(k)
		if bytes.Compare(kb, lower) < 0 || bytes.Compare(kb, upper) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = append([]byte(nil), m.data[k]...)
	}
	m.mu.Unlock()

	for i, k := range keys {
		if !fn([]byte(k), vals[i]) {
			return nil
		}
	}
	return nil
}

func (m *MemKV) Close() error { return nil }

var _ KVStore = (*MemKV)(nil)
