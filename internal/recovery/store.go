// Package recovery persists the "recovery needed" flag the connection
// monitor raises when its retry budget runs out, so a context restarted
// after a terminal failure knows to resynchronize before serving.
package recovery

import (
	"context"
	"sync"
)

// MemoryStore is the in-process fallback used when no Redis address is
// configured, and the double in tests. The flag does not survive a
// restart, which is acceptable for a single dev context.
type MemoryStore struct {
	mu     sync.Mutex
	needed bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) MarkNeeded(context.Context) error {
	s.mu.Lock()
	s.needed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.needed = false
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Needed(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needed, nil
}
