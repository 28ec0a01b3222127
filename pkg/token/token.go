// Package token issues and decodes the signed hand-off token that carries a
// chat search session into the LIFF web view.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is how long an issued token stays valid. It is fixed; callers cannot
// choose their own lifetime.
const TTL = 24 * time.Hour

var (
	// ErrFormat is returned when a token is not a well-formed hand-off token.
	ErrFormat = errors.New("token: malformed")

	// ErrSignature is returned when a well-formed token fails signature verification.
	ErrSignature = errors.New("token: signature mismatch")
)

// Payload is the decoded content of a hand-off token.
type Payload struct {
	SessionID string
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the payload is no longer valid at now.
func (p *Payload) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// claims is the wire form of Payload: {"sessionId", "sub", "exp"}.
type claims struct {
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// Config configures a Codec.
type Config struct {
	// SigningKey is the HMAC key used for HS256 signatures.
	SigningKey []byte

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Codec issues and decodes hand-off tokens.
type Codec struct {
	key    []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec creates a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("token signing key is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		key: cfg.SigningKey,
		now: now,
		// Expiry is checked by callers, never by the parser.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue signs a token binding sessionID to userID, valid for TTL.
func (c *Codec) Issue(sessionID, userID string) (string, error) {
	if sessionID == "" || userID == "" {
		return "", fmt.Errorf("issuing token: session id and user id are required")
	}
	cl := claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(c.now().Add(TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and shape of a token and returns its payload.
// It does not check expiry.
func (c *Codec) Decode(tokenString string) (*Payload, error) {
	var cl claims
	_, err := c.parser.ParseWithClaims(tokenString, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return toPayload(&cl)
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Peek reads the payload of a token without verifying its signature. It is
// meant for holders that have no key, such as the web view, and must never be
// used to authorize anything.
func Peek(tokenString string) (*Payload, error) {
	var cl claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &cl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return toPayload(&cl)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
}

func toPayload(cl *claims) (*Payload, error) {
	if cl.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sessionId", ErrFormat)
	}
	if cl.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrFormat)
	}
	if cl.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrFormat)
	}
	return &Payload{
		SessionID: cl.SessionID,
		Subject:   cl.Subject,
		ExpiresAt: cl.ExpiresAt.Time,
	}, nil
}
