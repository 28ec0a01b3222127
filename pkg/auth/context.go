// Package auth authenticates backend requests made from the LIFF web view.
// A request carries the hand-off token as a bearer credential; it is accepted
// only while the token's session is still the user's live session.
package auth

import (
	"context"
	"time"

	"github.com/txn2/factcheck-bot/pkg/session"
)

// contextKey is a private type for context keys.
type contextKey int

const (
	tokenContextKey contextKey = iota
	identityContextKey
)

// Identity is the authenticated caller of a backend request.
type Identity struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	AuthType  string    `json:"auth_type"` // "liff"

	// Session is the live context the token was matched against.
	Session *session.Context `json:"-"`
}

// WithIdentity adds an identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// GetIdentity retrieves the identity from the context.
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return id
	}
	return nil
}

// WithToken adds a raw bearer token to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the raw bearer token from the context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(tokenContextKey).(string); ok {
		return t
	}
	return ""
}
