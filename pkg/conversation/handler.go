package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/txn2/factcheck-bot/pkg/liff"
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/webhook"
)

// Conversation states.
const (
	StateAskingArticleSubmissionConsent = "ASKING_ARTICLE_SUBMISSION_CONSENT"
	StateAskingArticleSource            = "ASKING_ARTICLE_SOURCE"
	StateAskingReason                   = "ASKING_REASON"
	StateSuggestOtherFactCheckers       = "SUGGEST_OTHER_FACT_CHECKERS"
)

// Instructions given back to users for business errors.
const (
	MsgStaleSession  = "You are currently searching for another message, buttons from previous search sessions do not work now."
	MsgInvalidSource = "Please tell us where you have received the message using the options we provided."
)

const (
	msgSendText        = "Please send me the text of the message you want to fact-check."
	msgNotInDatabase   = "Currently we don't have this message in our database. If you think it is probably a rumor, submit it for volunteers to fact-check."
	msgAskSource       = "Where did you receive this message?"
	msgAskReason       = "Thanks. Please tell us why you think the message is suspicious."
	msgOtherCheckers   = "We suggest forwarding the message to the following fact-checkers instead. They have 1-on-1 Q&A service to respond to your questions."
	msgUnknownPostback = "This button is not available now."
)

// dataSearchedText and dataArticleSource are keys of session.Context.Data.
const (
	dataSearchedText  = "searchedText"
	dataArticleSource = "articleSource"
)

// SourceOption is one answer to "where did you receive this message".
// Messages from sources that are not Valid go to other fact-checkers.
type SourceOption struct {
	Label string
	Valid bool
}

// ArticleSourceOptions lists the accepted answers in display order.
var ArticleSourceOptions = []SourceOption{
	{Label: "LINE group chat", Valid: true},
	{Label: "LINE private chat", Valid: true},
	{Label: "Other messaging app", Valid: true},
	{Label: "Social media", Valid: false},
	{Label: "Websites", Valid: false},
}

// ArticleSourceFromLabel returns the option whose label is label.
func ArticleSourceFromLabel(label string) (SourceOption, error) {
	for _, o := range ArticleSourceOptions {
		if o.Label == label {
			return o, nil
		}
	}
	return SourceOption{}, BusinessError{Instruction: MsgInvalidSource}
}

// manualFactCheckers are suggested when the bot cannot take a message.
var manualFactCheckers = []struct{ label, uri string }{
	{"MyGoPen", "https://line.me/R/ti/p/%40mygopen"},
	{"Rumtoast", "https://line.me/R/ti/p/%40rumtoast"},
}

// LinkBuilder creates LIFF links carrying a hand-off token.
type LinkBuilder interface {
	URL(page liff.Page, userID, sessionID string) (string, error)
}

// DefaultHandler is the built-in ContentHandler: free text starts a search
// session and offers submission, postbacks walk the source and reason steps.
type DefaultHandler struct {
	links  LinkBuilder
	now    func() time.Time
	logger *slog.Logger
}

// NewDefaultHandler creates a DefaultHandler.
func NewDefaultHandler(links LinkBuilder, logger *slog.Logger) (*DefaultHandler, error) {
	if links == nil {
		return nil, fmt.Errorf("default content handler requires a link builder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultHandler{links: links, now: time.Now, logger: logger}, nil
}

// HandleContent implements ContentHandler.
func (h *DefaultHandler) HandleContent(ctx context.Context, ev webhook.Event, live *session.Context) (Result, error) {
	switch ev.Type {
	case webhook.TypePostback:
		return h.postback(ctx, ev, live)
	case webhook.TypeMessage:
		if ev.Message != nil && ev.Message.Type == "text" && strings.TrimSpace(ev.Message.Text) != "" {
			return h.startSearch(ev.Source.UserID, ev.Message.Text)
		}
		return h.askForText(live), nil
	default:
		return nil, nil
	}
}

func (h *DefaultHandler) startSearch(userID, text string) (Result, error) {
	c := session.NewContext(userID, StateAskingArticleSubmissionConsent, map[string]any{
		dataSearchedText: text,
	})

	link, err := h.links.URL(liff.PageSource, userID, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("building source link: %w", err)
	}

	buttons := line.NewButtons(msgNotInDatabase, msgNotInDatabase,
		line.URIAction("Submit to database", link),
		CreatePostbackAction("Don't submit", "no", "Don't submit", c.SessionID, StateAskingArticleSubmissionConsent),
	)

	sourceButtons := make([]line.Action, 0, len(ArticleSourceOptions))
	for _, o := range ArticleSourceOptions {
		sourceButtons = append(sourceButtons,
			CreatePostbackAction(o.Label, o.Label, o.Label, c.SessionID, StateAskingArticleSource))
	}

	return Reply{
		Messages: []line.Message{
			buttons,
			line.NewText(msgAskSource).WithQuickReply(sourceButtons...),
		},
		Context: c,
	}, nil
}

func (h *DefaultHandler) askForText(live *session.Context) Result {
	var refreshed *session.Context
	if live != nil {
		refreshed = live.Clone()
		refreshed.UpdatedAt = h.now()
	}
	return Reply{Messages: []line.Message{line.NewText(msgSendText)}, Context: refreshed}
}

func (h *DefaultHandler) postback(ctx context.Context, ev webhook.Event, live *session.Context) (Result, error) {
	if ev.Postback == nil {
		return nil, nil
	}
	data, err := ParsePostbackData(ev.Postback.Data)
	if err != nil {
		h.logger.DebugContext(ctx, "ignoring unreadable postback", "user_id", ev.Source.UserID, "error", err)
		return BusinessError{Instruction: MsgStaleSession}, nil
	}
	if live == nil || data.SessionID != live.SessionID {
		return BusinessError{Instruction: MsgStaleSession}, nil
	}

	switch data.State {
	case StateAskingArticleSubmissionConsent:
		return h.declineSubmission(live), nil
	case StateAskingArticleSource:
		return h.chooseSource(live, data.Input)
	default:
		return Reply{Messages: []line.Message{line.NewText(msgUnknownPostback)}}, nil
	}
}

func (h *DefaultHandler) declineSubmission(live *session.Context) Result {
	next := h.advance(live, StateSuggestOtherFactCheckers, nil)
	return Reply{Messages: []line.Message{otherFactCheckersReply()}, Context: next}
}

func (h *DefaultHandler) chooseSource(live *session.Context, label string) (Result, error) {
	option, err := ArticleSourceFromLabel(label)
	if err != nil {
		return nil, err
	}
	if !option.Valid {
		next := h.advance(live, StateSuggestOtherFactCheckers, map[string]any{dataArticleSource: option.Label})
		return Reply{Messages: []line.Message{otherFactCheckersReply()}, Context: next}, nil
	}

	link, err := h.links.URL(liff.PageReason, live.UserID, live.SessionID)
	if err != nil {
		return nil, fmt.Errorf("building reason link: %w", err)
	}
	next := h.advance(live, StateAskingReason, map[string]any{dataArticleSource: option.Label})
	return Reply{
		Messages: []line.Message{line.NewButtons(msgAskReason, msgAskReason, line.URIAction("Provide more info", link))},
		Context:  next,
	}, nil
}

// advance moves live to state within the same session, merging data.
func (h *DefaultHandler) advance(live *session.Context, state string, data map[string]any) *session.Context {
	next := live.Clone()
	next.State = state
	next.UpdatedAt = h.now()
	if len(data) > 0 {
		if next.Data == nil {
			next.Data = make(map[string]any, len(data))
		}
		maps.Copy(next.Data, data)
	}
	return next
}

func otherFactCheckersReply() line.Message {
	actions := make([]line.Action, 0, len(manualFactCheckers))
	for _, fc := range manualFactCheckers {
		actions = append(actions, line.URIAction(fc.label, fc.uri))
	}
	return line.NewButtons(msgOtherCheckers, msgOtherCheckers, actions...)
}

// Verify interface compliance.
var _ ContentHandler = (*DefaultHandler)(nil)
