// Package usersettings persists the per-user subscription record that follow
// and unfollow events update.
package usersettings

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Settings is the durable per-user record. It is never deleted on unfollow so
// that preferences survive a later re-follow.
type Settings struct {
	UserID     string    `json:"userId"`
	Subscribed bool      `json:"subscribed"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists Settings. SetSubscribed must be an atomic per-user upsert.
type Store interface {
	// Get returns the settings of userID, or nil, nil if none exist.
	Get(ctx context.Context, userID string) (*Settings, error)

	// SetSubscribed creates the record if absent, otherwise updates its
	// subscription flag, and returns the stored record.
	SetSubscribed(ctx context.Context, userID string, subscribed bool) (*Settings, error)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]Settings)}
}

// Get returns the settings of userID, or nil, nil if none exist.
func (m *MemoryStore) Get(_ context.Context, userID string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[userID]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return &s, nil
}

// SetSubscribed upserts the subscription flag of userID.
func (m *MemoryStore) SetSubscribed(_ context.Context, userID string, subscribed bool) (*Settings, error) {
	if userID == "" {
		return nil, fmt.Errorf("setting subscription: user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s, ok := m.settings[userID]
	if !ok {
		s = Settings{UserID: userID, CreatedAt: now}
	}
	s.Subscribed = subscribed
	s.UpdatedAt = now
	m.settings[userID] = s
	return &s, nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
