package continuity

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/factcheck-bot/pkg/token"
)

const (
	testSession = "5f1c1a3e-0000-4000-8000-000000000001"
	testUser    = "U4af4980629"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingHost records every host side effect in order.
type recordingHost struct {
	mu       sync.Mutex
	calls    []string
	alerts   []string
	closes   int
	inClient bool
}

func (h *recordingHost) Alert(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "alert")
	h.alerts = append(h.alerts, message)
}

func (h *recordingHost) CloseWindow() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "close")
	h.closes++
}

func (h *recordingHost) IsInClient() bool { return h.inClient }

// stubQuerier returns a canned response and counts calls.
type stubQuerier struct {
	resp   *QueryResponse
	err    error
	calls  int
	tokens []string
	wait   bool
}

func (q *stubQuerier) QuerySession(ctx context.Context, tok string) (*QueryResponse, error) {
	q.calls++
	q.tokens = append(q.tokens, tok)
	if q.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return q.resp, q.err
}

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) Report(_ context.Context, _ string, err error) {
	r.errs = append(r.errs, err)
}

func issueAt(t *testing.T, issuedAt time.Time) string {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		SigningKey: []byte("test-secret"),
		Now:        func() time.Time { return issuedAt },
	})
	require.NoError(t, err)
	tok, err := codec.Issue(testSession, testUser)
	require.NoError(t, err)
	return tok
}

func newGuard(t *testing.T, q SessionQuerier) (*Guard, *recordingHost, *recordingReporter) {
	t.Helper()
	host := &recordingHost{inClient: true}
	rep := &recordingReporter{}
	g, err := New(Config{
		Querier:      q,
		Host:         host,
		Reporter:     rep,
		QueryTimeout: 50 * time.Millisecond,
		Now:          func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return g, host, rep
}

func params(tok string) url.Values {
	return url.Values{TokenParam: []string{tok}, "p": []string{"source"}}
}

func decodeResponse(t *testing.T, body string) *QueryResponse {
	t.Helper()
	var r QueryResponse
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	return &r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Host: &recordingHost{}})
	assert.Error(t, err)

	_, err = New(Config{Querier: &stubQuerier{}})
	assert.Error(t, err)

	g, err := New(Config{Querier: &stubQuerier{}, Host: &recordingHost{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultQueryTimeout, g.timeout)
}

func TestCheck_NoToken(t *testing.T) {
	q := &stubQuerier{}
	g, host, _ := newGuard(t, q)

	res := g.Check(context.Background(), url.Values{"p": []string{"source"}})

	assert.Equal(t, NoToken, res.Outcome)
	assert.Equal(t, "Cannot get token from URL", res.Message)
	assert.Equal(t, 0, q.calls, "no backend call without a token")
	assert.Equal(t, []string{"alert", "close"}, host.calls)
	assert.Equal(t, []string{MsgNoToken}, host.alerts)
}

func TestCheck_UnreadableTokenIsNoToken(t *testing.T) {
	q := &stubQuerier{}
	g, host, _ := newGuard(t, q)

	res := g.Check(context.Background(), params("not-a-token"))

	assert.Equal(t, NoToken, res.Outcome)
	assert.Equal(t, 0, q.calls)
	assert.Equal(t, 1, host.closes)
}

func TestCheck_Expired(t *testing.T) {
	tests := []struct {
		name     string
		issuedAt time.Time
	}{
		{"expired long ago", testNow.Add(-48 * time.Hour)},
		{"exp equals now", testNow.Add(-token.TTL)},
		{"one second past", testNow.Add(-token.TTL - time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &stubQuerier{}
			g, host, _ := newGuard(t, q)

			res := g.Check(context.Background(), params(issueAt(t, tt.issuedAt)))

			assert.Equal(t, Expired, res.Outcome)
			assert.Equal(t, "Sorry, the button is expired.", res.Message)
			assert.Equal(t, 0, q.calls, "expired tokens never reach the backend")
			assert.Equal(t, []string{"alert", "close"}, host.calls)
		})
	}
}

func TestCheck_SessionSuperseded(t *testing.T) {
	q := &stubQuerier{resp: decodeResponse(t,
		`{"data":null,"errors":[{"message":"Invalid authentication header"}]}`)}
	g, host, rep := newGuard(t, q)

	tok := issueAt(t, testNow.Add(-time.Hour))
	res := g.Check(context.Background(), params(tok))

	assert.Equal(t, SessionSuperseded, res.Outcome)
	assert.Equal(t, "This button was for previous search and is now expired.", res.Message)
	assert.Equal(t, 1, q.calls)
	assert.Equal(t, []string{tok}, q.tokens)
	assert.Equal(t, []string{"alert", "close"}, host.calls)
	assert.Empty(t, rep.errs, "superseded sessions are expected user errors")
}

func TestCheck_UnexpectedShapes(t *testing.T) {
	bodies := []string{
		`{"data":null}`,
		`{"data":{"context":null}}`,
		`{"data":{"context":{"data":null}}}`,
		`{"data":{"context":{"data":{"sessionId":null}}}}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			q := &stubQuerier{resp: decodeResponse(t, body)}
			g, host, rep := newGuard(t, q)

			res := g.Check(context.Background(), params(issueAt(t, testNow.Add(-time.Minute))))

			assert.Equal(t, UnexpectedShape, res.Outcome)
			assert.Equal(t, "Unexpected error, no search session data is retrieved.", res.Message)
			assert.Equal(t, 1, q.calls)
			assert.Equal(t, []string{"alert", "close"}, host.calls)
			assert.Equal(t, 1, host.closes)
			require.Len(t, rep.errs, 1)
			assert.ErrorIs(t, rep.errs[0], ErrUnexpectedShape)
		})
	}
}

func TestCheck_TransportErrorIsUnexpectedShape(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	g, host, rep := newGuard(t, q)

	res := g.Check(context.Background(), params(issueAt(t, testNow)))

	assert.Equal(t, UnexpectedShape, res.Outcome)
	assert.Equal(t, 1, q.calls, "no retry")
	assert.Equal(t, 1, host.closes)
	assert.Len(t, rep.errs, 1)
}

func TestCheck_TimeoutIsUnexpectedShape(t *testing.T) {
	q := &stubQuerier{wait: true}
	g, host, _ := newGuard(t, q)

	res := g.Check(context.Background(), params(issueAt(t, testNow)))

	assert.Equal(t, UnexpectedShape, res.Outcome)
	assert.Equal(t, 1, host.closes)
}

func TestCheck_Confirmed(t *testing.T) {
	q := &stubQuerier{resp: decodeResponse(t,
		`{"data":{"context":{"data":{"sessionId":"`+testSession+`"}}}}`)}
	g, host, rep := newGuard(t, q)

	res := g.Check(context.Background(), params(issueAt(t, testNow.Add(-time.Hour))))

	assert.True(t, res.OK())
	assert.Equal(t, testSession, res.SessionID)
	assert.Empty(t, res.Message)
	assert.Empty(t, host.calls, "confirmed checks neither alert nor close")
	assert.Empty(t, rep.errs)
}

func TestIsDuringRedirect(t *testing.T) {
	assert.True(t, IsDuringRedirect(url.Values{"liff.state": []string{"?p=source"}}))
	assert.True(t, IsDuringRedirect(url.Values{"liff.state": []string{""}}))
	assert.False(t, IsDuringRedirect(url.Values{"token": []string{"x"}}))
}

func TestAssertInClient(t *testing.T) {
	inClient := &recordingHost{inClient: true}
	assert.True(t, AssertInClient(inClient, false))
	assert.Empty(t, inClient.calls)

	desktop := &recordingHost{}
	assert.False(t, AssertInClient(desktop, false))
	assert.Equal(t, []string{"alert", "close"}, desktop.calls)
	assert.Equal(t, []string{MsgDesktop}, desktop.alerts)

	debug := &recordingHost{}
	assert.True(t, AssertInClient(debug, true))
	assert.Empty(t, debug.calls)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "confirmed", Confirmed.String())
	assert.Equal(t, "session_superseded", SessionSuperseded.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
	assert.Empty(t, Confirmed.Message())
}
