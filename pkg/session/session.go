// Package session holds the live search session of each chat user.
// The Context record is what a LIFF hand-off token is checked against: a token
// is only honoured while its session id matches the user's current Context.
package session

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Context is the short-lived conversation context of one user.
type Context struct {
	// SessionID identifies the current search/report thread.
	SessionID string `json:"sessionId"`

	// UserID is the chat platform user that owns the context.
	UserID string `json:"userId"`

	// State is the interaction step the conversation is waiting on.
	State string `json:"state"`

	// Data holds whatever the next turn needs to reference
	// (e.g. the text being fact-checked).
	Data map[string]any `json:"data,omitempty"`

	// IssuedAt is when the session was started.
	IssuedAt time.Time `json:"issuedAt"`

	// UpdatedAt is the most recent write.
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewContext starts a fresh session for userID.
func NewContext(userID, state string, data map[string]any) *Context {
	now := time.Now()
	return &Context{
		SessionID: NewSessionID(),
		UserID:    userID,
		State:     state,
		Data:      data,
		IssuedAt:  now,
		UpdatedAt: now,
	}
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Clone returns a copy that does not share the Data map.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Data != nil {
		out.Data = make(map[string]any, len(c.Data))
		maps.Copy(out.Data, c.Data)
	}
	return &out
}

// Store defines persistence for user contexts. Implementations must make Put
// atomic per user.
type Store interface {
	// Get returns the live context of userID. Returns nil, nil if there is
	// none or it has expired.
	Get(ctx context.Context, userID string) (*Context, error)

	// Put replaces the context of c.UserID and restarts its TTL.
	Put(ctx context.Context, c *Context) error

	// Delete removes the context of userID.
	Delete(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}
