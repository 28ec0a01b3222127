// Package postgres provides PostgreSQL storage for user contexts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/factcheck-bot/pkg/session"
)

// Store implements session.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures the PostgreSQL context store.
type Config struct {
	TTL time.Duration
}

// New creates a new PostgreSQL context store.
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db:  db,
		ttl: cfg.TTL,
	}
}

// Get returns the live context of userID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, userID string) (*session.Context, error) {
	query := `
		SELECT user_id, session_id, state, data, issued_at, updated_at
		FROM user_contexts
		WHERE user_id = $1 AND expires_at > NOW()
	`
	var c session.Context
	var dataJSON []byte

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&c.UserID, &c.SessionID, &c.State, &dataJSON, &c.IssuedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user context: %w", err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &c.Data); err != nil {
			return nil, fmt.Errorf("decoding user context data: %w", err)
		}
	}
	return &c, nil
}

// Put upserts the context of c.UserID and restarts its TTL.
func (s *Store) Put(ctx context.Context, c *session.Context) error {
	if c == nil || c.UserID == "" {
		return fmt.Errorf("putting user context: user id is required")
	}

	dataJSON, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("marshaling user context data: %w", err)
	}

	query := `
		INSERT INTO user_contexts (user_id, session_id, state, data, issued_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW() + $6::interval)
		ON CONFLICT (user_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			issued_at = EXCLUDED.issued_at,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err = s.db.ExecContext(ctx, query,
		c.UserID, c.SessionID, c.State, dataJSON, c.IssuedAt, s.interval(),
	)
	if err != nil {
		return fmt.Errorf("upserting user context: %w", err)
	}
	return nil
}

// Delete removes the context of userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_contexts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user context: %w", err)
	}
	return nil
}

// Cleanup removes expired contexts.
func (s *Store) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_contexts WHERE expires_at <= NOW()`)
	if err != nil {
		return fmt.Errorf("cleaning up user contexts: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired contexts. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
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
				if err := s.Cleanup(ctx); err != nil {
					slog.Warn("user context cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

func (s *Store) interval() string {
	return fmt.Sprintf("%d seconds", int(s.ttl.Seconds()))
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
