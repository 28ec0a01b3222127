package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "U4af4980629"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := New(db)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	return store, mock
}

func TestSetSubscribed_Upsert(t *testing.T) {
	store, mock := newMockStore(t)
	fixed := store.now()
	created := fixed.Add(-time.Hour)

	mock.ExpectQuery("INSERT INTO user_settings .+ ON CONFLICT \\(user_id\\) DO UPDATE .+ RETURNING").
		WithArgs(testUser, false, fixed, fixed).
		WillReturnRows(sqlmock.NewRows(settingsColumns).AddRow(testUser, false, created, fixed))

	got, err := store.SetSubscribed(context.Background(), testUser, false)
	require.NoError(t, err)
	assert.Equal(t, testUser, got.UserID)
	assert.False(t, got.Subscribed)
	assert.Equal(t, created, got.CreatedAt, "existing record keeps its creation time")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSubscribed_RequiresUser(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.SetSubscribed(context.Background(), "", true)
	assert.Error(t, err)
}

func TestSetSubscribed_DBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO user_settings").WillReturnError(errors.New("connection refused"))

	_, err := store.SetSubscribed(context.Background(), testUser, true)
	assert.ErrorContains(t, err, "upserting user settings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Found(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT user_id, subscribed, created_at, updated_at FROM user_settings WHERE user_id = \\$1").
		WithArgs(testUser).
		WillReturnRows(sqlmock.NewRows(settingsColumns).AddRow(testUser, true, now, now))

	got, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Subscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM user_settings").WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(settingsColumns))

	got, err := store.Get(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_DBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM user_settings").WillReturnError(errors.New("db down"))

	_, err := store.Get(context.Background(), testUser)
	assert.ErrorContains(t, err, "scanning user settings")
}
