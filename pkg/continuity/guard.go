// Package continuity confirms that a web-view hand-off token still belongs to
// the user's live search session before the LIFF page proceeds.
//
// A check runs in three phases: extract the token from the launch parameters,
// reject it locally if it has expired, then ask the backend for the session
// bound to the token. Every outcome except Confirmed alerts the user and closes
// the window, once each.
package continuity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/txn2/factcheck-bot/pkg/metrics"
	"github.com/txn2/factcheck-bot/pkg/token"
)

// TokenParam is the launch query key that carries the hand-off token.
const TokenParam = "token"

// DefaultQueryTimeout bounds the backend confirmation call.
const DefaultQueryTimeout = 10 * time.Second

// User-facing messages, one per failing outcome.
const (
	MsgNoToken           = "Cannot get token from URL"
	MsgExpired           = "Sorry, the button is expired."
	MsgSessionSuperseded = "This button was for previous search and is now expired."
	MsgUnexpectedShape   = "Unexpected error, no search session data is retrieved."
)

// invalidAuthMessage is the backend error that marks a superseded session.
const invalidAuthMessage = "Invalid authentication header"

// telemetrySource tags reports sent by the guard.
const telemetrySource = "continuity"

// ErrUnexpectedShape is reported to telemetry when the backend answers without
// a session id.
var ErrUnexpectedShape = errors.New("continuity: backend response has no session id")

// Outcome is the terminal result of one check.
type Outcome int

const (
	// Confirmed means the token matches the live session.
	Confirmed Outcome = iota
	// NoToken means the launch parameters carry no usable token.
	NoToken
	// Expired means the token's exp is not after now.
	Expired
	// SessionSuperseded means the backend rejected the token.
	SessionSuperseded
	// UnexpectedShape means the backend answered outside its contract.
	UnexpectedShape
)

// String returns the snake_case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case NoToken:
		return "no_token"
	case Expired:
		return "expired"
	case SessionSuperseded:
		return "session_superseded"
	case UnexpectedShape:
		return "unexpected_shape"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Message returns the alert text of the outcome, empty for Confirmed.
func (o Outcome) Message() string {
	switch o {
	case NoToken:
		return MsgNoToken
	case Expired:
		return MsgExpired
	case SessionSuperseded:
		return MsgSessionSuperseded
	case UnexpectedShape:
		return MsgUnexpectedShape
	default:
		return ""
	}
}

// Result is what Check hands back to the page.
type Result struct {
	Outcome   Outcome
	SessionID string
	Message   string
}

// OK reports whether the page may continue.
func (r Result) OK() bool {
	return r.Outcome == Confirmed
}

// Host is the web-view shell.
type Host interface {
	Alert(message string)
	CloseWindow()
	IsInClient() bool
}

// SessionQuerier asks the backend which session a token is bound to.
type SessionQuerier interface {
	QuerySession(ctx context.Context, token string) (*QueryResponse, error)
}

// Reporter receives backend contract violations.
type Reporter interface {
	Report(ctx context.Context, source string, err error)
}

// Config configures a Guard.
type Config struct {
	Querier      SessionQuerier
	Host         Host
	Reporter     Reporter
	QueryTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Guard runs continuity checks.
type Guard struct {
	querier  SessionQuerier
	host     Host
	reporter Reporter
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Guard.
func New(cfg Config) (*Guard, error) {
	if cfg.Querier == nil {
		return nil, fmt.Errorf("continuity guard requires a session querier")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("continuity guard requires a host")
	}
	g := &Guard{
		querier:  cfg.Querier,
		host:     cfg.Host,
		reporter: cfg.Reporter,
		timeout:  cfg.QueryTimeout,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = DefaultQueryTimeout
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Check runs one continuity check against launchParams.
func (g *Guard) Check(ctx context.Context, launchParams url.Values) Result {
	res := g.check(ctx, launchParams)
	metrics.ObserveContinuity(res.Outcome.String())
	if res.Outcome != Confirmed {
		g.host.Alert(res.Message)
		g.host.CloseWindow()
	}
	return res
}

func (g *Guard) check(ctx context.Context, launchParams url.Values) Result {
	raw := launchParams.Get(TokenParam)
	if raw == "" {
		return fail(NoToken)
	}

	payload, err := token.Peek(raw)
	if err != nil {
		g.logger.DebugContext(ctx, "unreadable hand-off token", "error", err)
		return fail(NoToken)
	}
	if payload.Expired(g.now()) {
		return fail(Expired)
	}

	qctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.querier.QuerySession(qctx, raw)
	if err != nil {
		g.report(ctx, fmt.Errorf("querying session: %w", err))
		return fail(UnexpectedShape)
	}
	if resp.hasError(invalidAuthMessage) {
		return fail(SessionSuperseded)
	}

	sessionID, ok := resp.sessionID()
	if !ok {
		g.report(ctx, fmt.Errorf("%w: user %s", ErrUnexpectedShape, payload.Subject))
		return fail(UnexpectedShape)
	}
	return Result{Outcome: Confirmed, SessionID: sessionID}
}

func (g *Guard) report(ctx context.Context, err error) {
	g.logger.WarnContext(ctx, "session continuity check failed", "error", err)
	if g.reporter != nil {
		g.reporter.Report(ctx, telemetrySource, err)
	}
}

func fail(o Outcome) Result {
	return Result{Outcome: o, Message: o.Message()}
}

// IsDuringRedirect reports whether the page was opened mid-way through a LIFF
// login redirect, in which case the token is not yet in the URL.
func IsDuringRedirect(launchParams url.Values) bool {
	_, ok := launchParams["liff.state"]
	return ok
}

// MsgDesktop is shown when the page is opened outside the LINE client.
const MsgDesktop = "Sorry, the function is not applicable on desktop.\nPlease proceed on your mobile phone. 📲 "

// AssertInClient alerts and closes the window when the page runs outside the
// LINE client. Debug mode skips the check. It reports whether the page may
// continue.
func AssertInClient(host Host, debug bool) bool {
	if debug || host.IsInClient() {
		return true
	}
	host.Alert(MsgDesktop)
	host.CloseWindow()
	return false
}

// QueryResponse is the backend reply to the session query.
type QueryResponse struct {
	Data   *QueryData   `json:"data"`
	Errors []QueryError `json:"errors,omitempty"`
}

// QueryData is the data member of QueryResponse.
type QueryData struct {
	Context *ContextField `json:"context"`
}

// ContextField is the user context container.
type ContextField struct {
	Data *SessionData `json:"data"`
}

// SessionData carries the live session id.
type SessionData struct {
	SessionID *string `json:"sessionId"`
}

// QueryError is one GraphQL error.
type QueryError struct {
	Message string `json:"message"`
}

func (r *QueryResponse) hasError(message string) bool {
	if r == nil {
		return false
	}
	for _, e := range r.Errors {
		if strings.Contains(e.Message, message) {
			return true
		}
	}
	return false
}

func (r *QueryResponse) sessionID() (string, bool) {
	if r == nil || r.Data == nil || r.Data.Context == nil || r.Data.Context.Data == nil {
		return "", false
	}
	id := r.Data.Context.Data.SessionID
	if id == nil || *id == "" {
		return "", false
	}
	return *id, true
}
