// Package postgres provides PostgreSQL storage for user settings.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/factcheck-bot/pkg/usersettings"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var settingsColumns = []string{"user_id", "subscribed", "created_at", "updated_at"}

// Store implements usersettings.Store using PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL user settings store.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get returns the settings of userID, or nil, nil if none exist.
func (s *Store) Get(ctx context.Context, userID string) (*usersettings.Settings, error) {
	query, args, err := psq.Select(settingsColumns...).
		From("user_settings").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building settings query: %w", err)
	}

	var us usersettings.Settings
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&us.UserID, &us.Subscribed, &us.CreatedAt, &us.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user settings: %w", err)
	}
	return &us, nil
}

// SetSubscribed upserts the subscription flag of userID in one statement, so
// concurrent follow/unfollow events for the same user never create duplicates.
func (s *Store) SetSubscribed(ctx context.Context, userID string, subscribed bool) (*usersettings.Settings, error) {
	if userID == "" {
		return nil, fmt.Errorf("setting subscription: user id is required")
	}

	now := s.now().UTC()
	query, args, err := psq.Insert("user_settings").
		Columns(settingsColumns...).
		Values(userID, subscribed, now, now).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET subscribed = EXCLUDED.subscribed, updated_at = EXCLUDED.updated_at").
		Suffix("RETURNING user_id, subscribed, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building settings upsert: %w", err)
	}

	var us usersettings.Settings
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&us.UserID, &us.Subscribed, &us.CreatedAt, &us.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting user settings: %w", err)
	}
	return &us, nil
}

// Verify interface compliance.
var _ usersettings.Store = (*Store)(nil)
