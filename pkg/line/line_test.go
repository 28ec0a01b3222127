package line

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "channel-secret"

func TestMessageJSON(t *testing.T) {
	msg := NewButtons("Where did you get it?", "Tell us where you got the message",
		URIAction("Provide source", "https://liff.line.me/123/liff/index.html?p=source&token=t"),
		PostbackAction("Skip", `{"input":"skip"}`, "Skip"),
	)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "template", got["type"])

	tmpl := got["template"].(map[string]any)
	assert.Equal(t, "buttons", tmpl["type"])
	actions := tmpl["actions"].([]any)
	require.Len(t, actions, 2)

	uri := actions[0].(map[string]any)
	assert.Equal(t, "uri", uri["type"])
	assert.NotContains(t, uri, "data")

	pb := actions[1].(map[string]any)
	assert.Equal(t, "postback", pb["type"])
	assert.Equal(t, "Skip", pb["displayText"])
}

func TestTextWithQuickReply(t *testing.T) {
	msg := NewText("pick one").WithQuickReply(PostbackAction("A", "a", "A"))
	assert.Equal(t, "text", msg.MessageType())
	require.NotNil(t, msg.QuickReply)
	require.Len(t, msg.QuickReply.Items, 1)
	assert.Equal(t, "action", msg.QuickReply.Items[0].Type)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := Sign(testSecret, body)

	assert.True(t, ValidateSignature(testSecret, body, sig))
	assert.False(t, ValidateSignature("other", body, sig))
	assert.False(t, ValidateSignature(testSecret, []byte(`{"events":[{}]}`), sig))
	assert.False(t, ValidateSignature(testSecret, body, "%%%not-base64"))
	assert.False(t, ValidateSignature(testSecret, body, ""))
}

func TestSignatureMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})
	var logs bytes.Buffer
	h := SignatureMiddleware(testSecret, slog.New(slog.NewTextHandler(&logs, nil)))(next)
	body := `{"events":[{"type":"follow"}]}`

	t.Run("valid", func(t *testing.T) {
		seen = ""
		req := httptest.NewRequest(http.MethodPost, "/callback/", strings.NewReader(body))
		req.Header.Set(SignatureHeader, Sign(testSecret, []byte(body)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, seen, "body is restored for the next handler")
	})

	t.Run("invalid", func(t *testing.T) {
		seen = ""
		req := httptest.NewRequest(http.MethodPost, "/callback/", strings.NewReader(body))
		req.Header.Set(SignatureHeader, Sign("wrong", []byte(body)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, seen, "rejected requests never reach the ingress")
		assert.Contains(t, logs.String(), "webhook signature rejected")
	})
}

func TestNewReplyClient_RequiresToken(t *testing.T) {
	_, err := NewReplyClient(ClientConfig{})
	assert.Error(t, err)
}

func TestReply(t *testing.T) {
	var got replyRequestJSON
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, replyPath, r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewReplyClient(ClientConfig{APIBase: srv.URL, AccessToken: "access", RateLimit: 100})
	require.NoError(t, err)

	err = c.Reply(context.Background(), "reply-token", []Message{NewText("hello")})
	require.NoError(t, err)
	assert.Equal(t, "reply-token", got.ReplyToken)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0]["text"])
}

type replyRequestJSON struct {
	ReplyToken string           `json:"replyToken"`
	Messages   []map[string]any `json:"messages"`
}

func TestReply_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	c, err := NewReplyClient(ClientConfig{APIBase: srv.URL, AccessToken: "access"})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorContains(t, c.Reply(ctx, "", []Message{NewText("x")}), "reply token is required")
	assert.ErrorContains(t, c.Reply(ctx, "rt", nil), "no messages")

	many := make([]Message, 6)
	for i := range many {
		many[i] = NewText("x")
	}
	assert.ErrorContains(t, c.Reply(ctx, "rt", many), "exceeds limit")

	err = c.Reply(ctx, "rt", []Message{NewText("x")})
	assert.ErrorContains(t, err, "reply request failed: 400")
	assert.ErrorContains(t, err, "Invalid reply token")
}
