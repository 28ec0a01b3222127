// Package conversation is the per-user state machine behind the webhook:
// follow and unfollow update the subscription record, messages and postbacks
// go to a ContentHandler whose verdict becomes a reply, and every message or
// postback rewrites the user's live context.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/usersettings"
	"github.com/txn2/factcheck-bot/pkg/webhook"
)

// Replier sends reply messages.
type Replier interface {
	Reply(ctx context.Context, replyToken string, messages []line.Message) error
}

// ContentHandler decides how to answer a message or postback. live is the
// user's current context, nil when there is none. A returned error is an
// infrastructure failure, not a user mistake.
type ContentHandler interface {
	HandleContent(ctx context.Context, ev webhook.Event, live *session.Context) (Result, error)
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Settings usersettings.Store
	Sessions session.Store
	Content  ContentHandler
	Replier  Replier
	Logger   *slog.Logger
}

// Router implements webhook.Handler.
type Router struct {
	settings usersettings.Store
	sessions session.Store
	content  ContentHandler
	replier  Replier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	switch {
	case cfg.Settings == nil:
		return nil, fmt.Errorf("conversation router requires a settings store")
	case cfg.Sessions == nil:
		return nil, fmt.Errorf("conversation router requires a session store")
	case cfg.Content == nil:
		return nil, fmt.Errorf("conversation router requires a content handler")
	case cfg.Replier == nil:
		return nil, fmt.Errorf("conversation router requires a replier")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		settings: cfg.Settings,
		sessions: cfg.Sessions,
		content:  cfg.Content,
		replier:  cfg.Replier,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Handle routes one event by type.
func (r *Router) Handle(ctx context.Context, ev webhook.Event) (webhook.Outcome, error) {
	userID := ev.Source.UserID

	switch ev.Type {
	case webhook.TypeFollow:
		return r.subscribe(ctx, userID, true)
	case webhook.TypeUnfollow:
		return r.subscribe(ctx, userID, false)
	case webhook.TypeMessage, webhook.TypePostback:
		if userID == "" {
			return webhook.Outcome{Result: webhook.Ignored}, nil
		}
		return r.converse(ctx, ev)
	default:
		return webhook.Outcome{Result: webhook.Ignored}, nil
	}
}

func (r *Router) subscribe(ctx context.Context, userID string, subscribed bool) (webhook.Outcome, error) {
	if userID == "" {
		return webhook.Outcome{Result: webhook.Ignored}, nil
	}
	if _, err := r.settings.SetSubscribed(ctx, userID, subscribed); err != nil {
		return webhook.Outcome{}, fmt.Errorf("updating subscription: %w", err)
	}
	r.logger.InfoContext(ctx, "subscription changed", "user_id", userID, "subscribed", subscribed)
	return webhook.Outcome{Result: webhook.Handled}, nil
}

func (r *Router) converse(ctx context.Context, ev webhook.Event) (webhook.Outcome, error) {
	userID := ev.Source.UserID

	live, err := r.sessions.Get(ctx, userID)
	if err != nil {
		return webhook.Outcome{}, fmt.Errorf("loading user context: %w", err)
	}

	res, err := r.content.HandleContent(ctx, ev, live)
	var be BusinessError
	if errors.As(err, &be) {
		res, err = be, nil
	}
	if err != nil {
		return webhook.Outcome{}, fmt.Errorf("handling %s: %w", ev.Type, err)
	}

	switch res := res.(type) {
	case BusinessError:
		r.logger.InfoContext(ctx, "business error", "user_id", userID, "instruction", res.Instruction)
		next, err := r.store(ctx, userID, live, nil)
		if err != nil {
			return webhook.Outcome{}, err
		}
		if err := r.reply(ctx, ev, []line.Message{line.NewText(res.Instruction)}); err != nil {
			return webhook.Outcome{}, err
		}
		return webhook.Outcome{Result: webhook.Recovered, SessionID: next.SessionID}, nil

	case Reply:
		next, err := r.store(ctx, userID, live, res.Context)
		if err != nil {
			return webhook.Outcome{}, err
		}
		if err := r.reply(ctx, ev, res.Messages); err != nil {
			return webhook.Outcome{}, err
		}
		return webhook.Outcome{Result: webhook.Handled, SessionID: next.SessionID}, nil

	default:
		next, err := r.store(ctx, userID, live, nil)
		if err != nil {
			return webhook.Outcome{}, err
		}
		return webhook.Outcome{Result: webhook.Ignored, SessionID: next.SessionID}, nil
	}
}

// store writes the user's context after every message or postback: next when
// the handler produced one, otherwise live with a new UpdatedAt, otherwise a
// fresh session.
func (r *Router) store(ctx context.Context, userID string, live, next *session.Context) (*session.Context, error) {
	switch {
	case next != nil:
	case live != nil:
		next = live.Clone()
		next.UpdatedAt = r.now()
	default:
		next = session.NewContext(userID, "", nil)
	}
	next.UserID = userID
	if err := r.sessions.Put(ctx, next); err != nil {
		return nil, fmt.Errorf("storing user context: %w", err)
	}
	return next, nil
}

func (r *Router) reply(ctx context.Context, ev webhook.Event, messages []line.Message) error {
	if len(messages) == 0 || ev.ReplyToken == "" {
		return nil
	}
	if err := r.replier.Reply(ctx, ev.ReplyToken, messages); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ webhook.Handler = (*Router)(nil)
