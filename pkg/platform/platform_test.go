package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditpg "github.com/txn2/factcheck-bot/pkg/audit/postgres"
	apihttp "github.com/txn2/factcheck-bot/pkg/http"
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
	sessionpg "github.com/txn2/factcheck-bot/pkg/session/postgres"
	sessionredis "github.com/txn2/factcheck-bot/pkg/session/redis"
	settingspg "github.com/txn2/factcheck-bot/pkg/usersettings/postgres"
	"github.com/txn2/factcheck-bot/pkg/webhook"
)

const platformTestUser = "U4af4980629"

type recordingReplier struct {
	mu      sync.Mutex
	batches [][]line.Message
}

func (r *recordingReplier) Reply(_ context.Context, _ string, messages []line.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, messages)
	return nil
}

func (r *recordingReplier) last() []line.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func newTestPlatform(t *testing.T, mutate func(*Config), opts ...Option) (*Platform, *recordingReplier) {
	t.Helper()
	cfg := validTestConfig()
	if mutate != nil {
		mutate(cfg)
	}
	replier := &recordingReplier{}
	opts = append([]Option{WithConfig(cfg), WithReplier(replier)}, opts...)
	p, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, replier
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New()
	assert.ErrorContains(t, err, "config is required")
}

func TestNew_MemoryBackends(t *testing.T) {
	p, _ := newTestPlatform(t, nil)

	assert.IsType(t, &session.MemoryStore{}, p.Sessions())
	assert.Nil(t, p.DB())
	assert.Nil(t, p.AuditLogger(), "audit is disabled by default")
	assert.NotNil(t, p.Ingress())
	assert.NotNil(t, p.GraphQL())
	assert.NotNil(t, p.Codec())
	assert.NotNil(t, p.Links())
	assert.NotNil(t, p.Settings())
	assert.NotNil(t, p.Health())
	assert.NotNil(t, p.Logger())
}

func TestNew_BuildsReplyClientFromConfig(t *testing.T) {
	p, err := New(WithConfig(validTestConfig()))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.IsType(t, &line.ReplyClient{}, p.replier)
}

func TestNew_BackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"redis sessions without redis", func(c *Config) { c.Session.Backend = BackendRedis }, "requires redis.addr"},
		{"postgres sessions without database", func(c *Config) { c.Session.Backend = BackendPostgres }, "session backend postgres requires database.dsn"},
		{"postgres audit without database", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Backend = BackendPostgres
		}, "audit backend postgres requires database.dsn"},
		{"unknown session backend", func(c *Config) { c.Session.Backend = "etcd" }, `unknown session backend "etcd"`},
		{"missing access token", func(c *Config) { c.LINE.ChannelAccessToken = "" }, "access token is required"},
		{"missing liff url", func(c *Config) { c.LIFF.URL = "" }, "liff base url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			_, err := New(WithConfig(cfg))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew_RedisSessions(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	defer func() { _ = rdb.Close() }()

	p, _ := newTestPlatform(t, func(c *Config) { c.Session.Backend = BackendRedis }, WithRedis(rdb))
	assert.IsType(t, &sessionredis.Store{}, p.Sessions())
}

func TestNew_PostgresBackends(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, _ := newTestPlatform(t, func(c *Config) {
		c.Session.Backend = BackendPostgres
		c.Audit.Enabled = true
		c.Audit.Backend = BackendPostgres
	}, WithDB(db))

	assert.Same(t, db, p.DB())
	assert.IsType(t, &sessionpg.Store{}, p.Sessions())
	assert.IsType(t, &settingspg.Store{}, p.Settings())
	assert.IsType(t, &auditpg.Store{}, p.AuditLogger())

	mock.ExpectPing()
	deps, ok := p.Health().CheckDependencies(context.Background())
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"postgres": "ok"}, deps)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	deps, ok = p.Health().CheckDependencies(context.Background())
	assert.False(t, ok)
	assert.Contains(t, deps["postgres"], "connection refused")
}

func TestNew_SlogAudit(t *testing.T) {
	p, _ := newTestPlatform(t, func(c *Config) { c.Audit.Enabled = true })
	assert.NotNil(t, p.AuditLogger())
}

func TestStartStop(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()

	assert.False(t, p.Health().IsReady())
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.Health().IsReady())

	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, "draining", p.Health().State())

	_, err := p.Ingress().Dispatch(ctx, nil)
	assert.ErrorIs(t, err, webhook.ErrShuttingDown, "ingress stops with the platform")
}

func TestStart_MigrationFailure(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	p, _ := newTestPlatform(t, func(c *Config) { c.Database.AutoMigrate = true }, WithDB(db))

	err = p.Start(context.Background())
	assert.ErrorContains(t, err, "starting migrations")
	assert.False(t, p.Health().IsReady())
}

// TestHandOff follows one user from a chat message to the LIFF session query:
// the link in the reply carries a token that the query endpoint accepts until
// the user starts another search.
func TestHandOff(t *testing.T) {
	p, replier := newTestPlatform(t, nil)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Stop(ctx) }()

	gql := httptest.NewServer(apihttp.OptionalAuth()(p.GraphQL()))
	defer gql.Close()

	send := func(text string) string {
		t.Helper()
		batch, err := p.Ingress().Dispatch(ctx, []webhook.Event{{
			Type:       webhook.TypeMessage,
			ReplyToken: "rt",
			Source:     webhook.Source{Type: "user", UserID: platformTestUser},
			Message:    &webhook.Message{ID: "1", Type: "text", Text: text},
		}})
		require.NoError(t, err)
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, batch.Wait(waitCtx))

		msgs := replier.last()
		require.NotEmpty(t, msgs)
		buttons, ok := msgs[0].(*line.TemplateMessage)
		require.True(t, ok)
		link, err := url.Parse(buttons.Template.Actions[0].URI)
		require.NoError(t, err)
		assert.Equal(t, "/liff/index.html", link.Path)
		return link.Query().Get("token")
	}

	query := func(tok string) map[string]any {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, gql.URL,
			strings.NewReader(`{"query":"{ context { state data { sessionId searchedText } } }"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := gql.Client().Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	first := send("Drinking hot water cures flu")
	payload, err := p.Codec().Decode(first)
	require.NoError(t, err)
	assert.Equal(t, platformTestUser, payload.Subject)

	body := query(first)
	require.Nil(t, body["errors"])
	data := body["data"].(map[string]any)["context"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, payload.SessionID, data["sessionId"])
	assert.Equal(t, "Drinking hot water cures flu", data["searchedText"])

	second := send("Another rumor")
	assert.NotNil(t, query(second)["data"].(map[string]any)["context"])

	stale := query(first)
	assert.Nil(t, stale["data"])
	assert.Equal(t, []any{map[string]any{"message": "Invalid authentication header"}}, stale["errors"])
}
