// Package store provides TokenStore implementations: in-memory, JSON file,
// and Redis.
package store

import (
	"context"
	"sync"

	authkit "github.com/edupoints/authkit-go"
)

// Memory is an ephemeral in-process store. Intended for tests and for
// clients that deliberately forget the session on exit.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

var _ authkit.TokenStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key], nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
