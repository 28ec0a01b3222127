package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	ctx       *Context
	expiresAt time.Time
}

// MemoryStore implements Store using an in-memory map with TTL-based expiration.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates a new in-memory context store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get returns the live context of userID. Returns nil, nil if not found or expired.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[userID]
	if !ok || !time.Now().Before(e.expiresAt) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return e.ctx.Clone(), nil
}

// Put replaces the context of c.UserID and restarts its TTL.
func (s *MemoryStore) Put(_ context.Context, c *Context) error {
	if c == nil || c.UserID == "" {
		return fmt.Errorf("putting context: user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c.Clone()
	stored.UpdatedAt = time.Now()
	s.entries[c.UserID] = memoryEntry{ctx: stored, expiresAt: stored.UpdatedAt.Add(s.ttl)}
	return nil
}

// Delete removes the context of userID.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, userID)
	return nil
}

// Cleanup removes expired contexts.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	return nil
}

// Len returns the number of stored contexts, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired contexts. The goroutine is stopped when Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Cleanup(ctx)
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *MemoryStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
