package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *Memory) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.m[key] = slices.Clone(value)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return ErrNotFound
	}
	delete(s.m, key)
	return nil
}

func (s *Memory) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Memory) Close() error { return nil }
