package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/factcheck-bot/pkg/session"
)

const (
	testTTL  = 10 * time.Minute
	testUser = "U4af4980629"
)

// fakeClient keeps values in a map and records Set calls.
type fakeClient struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestPutAndGet(t *testing.T) {
	client := newFakeClient()
	store := New(client, Config{TTL: testTTL})
	ctx := context.Background()

	c := session.NewContext(testUser, "ASKING_ARTICLE_SOURCE", map[string]any{"searchedText": "hi"})
	require.NoError(t, store.Put(ctx, c))

	key := defaultKeyPrefix + testUser
	assert.Equal(t, testTTL, client.ttls[key], "Put should set the TTL")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(client.values[key], &raw))
	assert.Equal(t, c.SessionID, raw["sessionId"])

	got, err := store.Get(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.SessionID, got.SessionID)
	assert.Equal(t, "ASKING_ARTICLE_SOURCE", got.State)
	assert.Equal(t, "hi", got.Data["searchedText"])
}

func TestGet_Missing(t *testing.T) {
	store := New(newFakeClient(), Config{TTL: testTTL})

	got, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_CorruptValue(t *testing.T) {
	client := newFakeClient()
	client.values[defaultKeyPrefix+testUser] = []byte("{not json")
	store := New(client, Config{TTL: testTTL})

	_, err := store.Get(context.Background(), testUser)
	assert.ErrorContains(t, err, "decoding user context")
}

func TestErrorsAreWrapped(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("connection refused")
	store := New(client, Config{TTL: testTTL})
	ctx := context.Background()

	_, err := store.Get(ctx, testUser)
	assert.ErrorContains(t, err, "reading user context")

	err = store.Put(ctx, session.NewContext(testUser, "S", nil))
	assert.ErrorContains(t, err, "writing user context")

	err = store.Delete(ctx, testUser)
	assert.ErrorContains(t, err, "deleting user context")
}

func TestPut_RequiresUser(t *testing.T) {
	store := New(newFakeClient(), Config{TTL: testTTL})
	assert.Error(t, store.Put(context.Background(), &session.Context{}))
}

func TestDelete(t *testing.T) {
	client := newFakeClient()
	store := New(client, Config{TTL: testTTL, KeyPrefix: "test:"})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, session.NewContext(testUser, "S", nil)))
	require.Contains(t, client.values, "test:"+testUser)

	require.NoError(t, store.Delete(ctx, testUser))
	got, err := store.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, store.Close())
}
