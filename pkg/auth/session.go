package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/txn2/factcheck-bot/pkg/metrics"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/token"
)

// InvalidAuthMessage is the error message clients see for any rejected token.
// The web view matches on it to tell a superseded session apart.
const InvalidAuthMessage = "Invalid authentication header"

// ErrInvalidAuthHeader is returned when a request carries no token, a bad
// token, an expired token, or a token for a session that is no longer live.
var ErrInvalidAuthHeader = errors.New("invalid authentication header")

// AuthTypeLIFF marks identities authenticated with a hand-off token.
const AuthTypeLIFF = "liff"

// Authenticator resolves the caller of a request from its context.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Identity, error)
}

// SessionAuthenticator accepts hand-off tokens whose session is still live.
type SessionAuthenticator struct {
	codec    *token.Codec
	sessions session.Store
}

// NewSessionAuthenticator creates a SessionAuthenticator.
func NewSessionAuthenticator(codec *token.Codec, sessions session.Store) (*SessionAuthenticator, error) {
	if codec == nil {
		return nil, fmt.Errorf("session authenticator requires a token codec")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session authenticator requires a session store")
	}
	return &SessionAuthenticator{codec: codec, sessions: sessions}, nil
}

// Authenticate validates the bearer token found in ctx. Errors wrapping
// ErrInvalidAuthHeader are caller mistakes; any other error is a store failure.
func (a *SessionAuthenticator) Authenticate(ctx context.Context) (*Identity, error) {
	id, err := a.authenticate(ctx)
	if err == nil || errors.Is(err, ErrInvalidAuthHeader) {
		metrics.ObserveSessionAuth(err == nil)
	}
	return id, err
}

func (a *SessionAuthenticator) authenticate(ctx context.Context) (*Identity, error) {
	raw := GetToken(ctx)
	if raw == "" {
		return nil, fmt.Errorf("%w: no token", ErrInvalidAuthHeader)
	}

	p, err := a.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthHeader, err)
	}
	if p.Expired(a.codec.Now()) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidAuthHeader)
	}

	live, err := a.sessions.Get(ctx, p.Subject)
	if err != nil {
		return nil, fmt.Errorf("loading live session: %w", err)
	}
	if live == nil || live.SessionID != p.SessionID {
		return nil, fmt.Errorf("%w: session superseded", ErrInvalidAuthHeader)
	}

	return &Identity{
		UserID:    p.Subject,
		SessionID: p.SessionID,
		ExpiresAt: p.ExpiresAt,
		AuthType:  AuthTypeLIFF,
		Session:   live,
	}, nil
}

// Verify interface compliance.
var _ Authenticator = (*SessionAuthenticator)(nil)
