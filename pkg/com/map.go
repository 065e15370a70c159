package com

import (
	"errors"
	"sync"
)

// Map defines a concurrent-safe map structure.
// Keys with the zero value are never found.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

var ErrNotFound = errors.New("not found")

func NewMap[K comparable, V any]() *Map[K, V] { return &Map[K, V]{m: make(map[K]V, 10)} }

func (m *Map[_, _]) Len() int { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) }

func (m *Map[K, V]) Put(key K, v V) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[K]V, 10)
	}
	m.m[key] = v
	m.mu.Unlock()
}

// PutIfAbsent stores v only when the key is free and reports whether it did.
func (m *Map[K, V]) PutIfAbsent(key K, v V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m == nil {
		m.m = make(map[K]V, 10)
	}
	if _, ok := m.m[key]; ok {
		return false
	}
	m.m[key] = v
	return true
}

// Pop atomically extracts and removes a value by its key.
// Of all concurrent callers with the same key only one gets ok.
func (m *Map[K, V]) Pop(key K) (v V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = m.m[key]; ok {
		delete(m.m, key)
	}
	return
}

// Find searches for the first match by a specified key value,
// returns ErrNotFound otherwise.
func (m *Map[K, V]) Find(key K) (v V, err error) {
	var empty K
	if key == empty {
		return v, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.m[key]; ok {
		return c, nil
	}
	return v, ErrNotFound
}

// ForEach processes every element with the provided callback function.
// The callback must not call back into the map.
func (m *Map[K, V]) ForEach(fn func(k K, v V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		fn(k, v)
	}
}

// Drain removes all the elements and returns them.
func (m *Map[K, V]) Drain() []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]V, 0, len(m.m))
	for k, v := range m.m {
		out = append(out, v)
		delete(m.m, k)
	}
	return out
}

// Values returns a snapshot of all the elements.
func (m *Map[K, V]) Values() []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	return out
}
