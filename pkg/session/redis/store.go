// Package redis provides Redis storage for user contexts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/factcheck-bot/pkg/session"
)

const defaultKeyPrefix = "factcheck:context:"

// Client is the subset of the go-redis API the store needs.
// *goredis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Config configures the Redis context store.
type Config struct {
	TTL       time.Duration
	KeyPrefix string
}

// Store implements session.Store on Redis. Each user's context is a single
// JSON value whose key expires with the context.
type Store struct {
	client Client
	ttl    time.Duration
	prefix string
}

// New creates a Redis context store. The caller owns the client.
func New(client Client, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, ttl: cfg.TTL, prefix: prefix}
}

// Get returns the live context of userID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, userID string) (*session.Context, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("reading user context: %w", err)
	}

	var c session.Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding user context: %w", err)
	}
	return &c, nil
}

// Put replaces the context of c.UserID and restarts its TTL.
func (s *Store) Put(ctx context.Context, c *session.Context) error {
	if c == nil || c.UserID == "" {
		return fmt.Errorf("putting user context: user id is required")
	}

	stored := c.Clone()
	stored.UpdatedAt = time.Now()
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshaling user context: %w", err)
	}

	if err := s.client.Set(ctx, s.key(c.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing user context: %w", err)
	}
	return nil
}

// Delete removes the context of userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("deleting user context: %w", err)
	}
	return nil
}

// Close is a no-op; the client is closed by its owner.
func (*Store) Close() error {
	return nil
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
