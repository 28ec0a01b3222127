package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/factcheck-bot/pkg/liff"
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/webhook"
)

type linkCall struct {
	page      liff.Page
	userID    string
	sessionID string
}

type fakeLinks struct {
	calls []linkCall
	err   error
}

func (f *fakeLinks) URL(page liff.Page, userID, sessionID string) (string, error) {
	f.calls = append(f.calls, linkCall{page, userID, sessionID})
	if f.err != nil {
		return "", f.err
	}
	return "https://liff.example/liff/index.html?p=" + string(page) + "&token=t", nil
}

func newHandler(t *testing.T) (*DefaultHandler, *fakeLinks) {
	t.Helper()
	links := &fakeLinks{}
	h, err := NewDefaultHandler(links, nil)
	require.NoError(t, err)
	return h, links
}

func textEvent(text string) webhook.Event {
	return webhook.Event{
		Type:       webhook.TypeMessage,
		ReplyToken: "rt",
		Source:     webhook.Source{Type: "user", UserID: routerUser},
		Message:    &webhook.Message{ID: "1", Type: "text", Text: text},
	}
}

func postbackEvent(t *testing.T, d PostbackData) webhook.Event {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	return webhook.Event{
		Type:       webhook.TypePostback,
		ReplyToken: "rt",
		Source:     webhook.Source{Type: "user", UserID: routerUser},
		Postback:   &webhook.Postback{Data: string(raw)},
	}
}

func TestNewDefaultHandler_RequiresLinks(t *testing.T) {
	_, err := NewDefaultHandler(nil, nil)
	assert.Error(t, err)
}

func TestCreatePostbackAction(t *testing.T) {
	a := CreatePostbackAction("LINE group chat", "LINE group chat", "LINE group chat", "sess-1", StateAskingArticleSource)

	assert.Equal(t, "postback", a.Type)
	assert.Equal(t, "LINE group chat", a.DisplayText)

	var data map[string]string
	require.NoError(t, json.Unmarshal([]byte(a.Data), &data))
	assert.Equal(t, map[string]string{
		"input":     "LINE group chat",
		"sessionId": "sess-1",
		"state":     StateAskingArticleSource,
	}, data)
}

func TestArticleSourceFromLabel(t *testing.T) {
	o, err := ArticleSourceFromLabel("LINE private chat")
	require.NoError(t, err)
	assert.True(t, o.Valid)

	_, err = ArticleSourceFromLabel("carrier pigeon")
	var be BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "Please tell us where you have received the message using the options we provided.", be.Instruction)
}

func TestText_StartsSearchSession(t *testing.T) {
	h, links := newHandler(t)
	old := session.NewContext(routerUser, StateAskingReason, nil)

	res, err := h.HandleContent(context.Background(), textEvent("Drinking hot water cures flu"), old)
	require.NoError(t, err)

	reply, ok := res.(Reply)
	require.True(t, ok)
	require.NotNil(t, reply.Context)
	assert.NotEqual(t, old.SessionID, reply.Context.SessionID, "new text starts a new session")
	assert.Equal(t, StateAskingArticleSubmissionConsent, reply.Context.State)
	assert.Equal(t, "Drinking hot water cures flu", reply.Context.Data["searchedText"])

	require.Len(t, links.calls, 1)
	assert.Equal(t, linkCall{liff.PageSource, routerUser, reply.Context.SessionID}, links.calls[0])

	require.Len(t, reply.Messages, 2)
	buttons, ok := reply.Messages[0].(*line.TemplateMessage)
	require.True(t, ok)
	assert.Equal(t, "uri", buttons.Template.Actions[0].Type)
	assert.Contains(t, buttons.Template.Actions[0].URI, "p=source")

	quick, ok := reply.Messages[1].(*line.TextMessage)
	require.True(t, ok)
	require.NotNil(t, quick.QuickReply)
	assert.Len(t, quick.QuickReply.Items, len(ArticleSourceOptions))
	d, err := ParsePostbackData(quick.QuickReply.Items[0].Action.Data)
	require.NoError(t, err)
	assert.Equal(t, reply.Context.SessionID, d.SessionID)
	assert.Equal(t, StateAskingArticleSource, d.State)
}

func TestText_LinkError(t *testing.T) {
	h, links := newHandler(t)
	links.err = errors.New("no signing key")

	_, err := h.HandleContent(context.Background(), textEvent("hello"), nil)
	assert.ErrorContains(t, err, "building source link")
}

func TestNonText_AsksForText(t *testing.T) {
	h, _ := newHandler(t)
	sticker := webhook.Event{
		Type:    webhook.TypeMessage,
		Source:  webhook.Source{UserID: routerUser},
		Message: &webhook.Message{ID: "2", Type: "sticker", PackageID: "1", StickerID: "1"},
	}

	t.Run("without live context", func(t *testing.T) {
		res, err := h.HandleContent(context.Background(), sticker, nil)
		require.NoError(t, err)
		reply := res.(Reply)
		assert.Nil(t, reply.Context)
		assert.Equal(t, msgSendText, reply.Messages[0].(*line.TextMessage).Text)
	})

	t.Run("keeps live session", func(t *testing.T) {
		live := session.NewContext(routerUser, StateAskingArticleSource, nil)
		res, err := h.HandleContent(context.Background(), sticker, live)
		require.NoError(t, err)
		reply := res.(Reply)
		require.NotNil(t, reply.Context)
		assert.Equal(t, live.SessionID, reply.Context.SessionID)
	})
}

func TestPostback_StaleSession(t *testing.T) {
	h, _ := newHandler(t)
	live := session.NewContext(routerUser, StateAskingArticleSubmissionConsent, nil)

	tests := []struct {
		name string
		live *session.Context
		ev   webhook.Event
	}{
		{"other session", live, postbackEvent(t, PostbackData{Input: "LINE group chat", SessionID: "old", State: StateAskingArticleSource})},
		{"no live context", nil, postbackEvent(t, PostbackData{Input: "x", SessionID: live.SessionID, State: StateAskingArticleSource})},
		{"unreadable data", live, webhook.Event{Type: webhook.TypePostback, Postback: &webhook.Postback{Data: "action=buy"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.HandleContent(context.Background(), tt.ev, tt.live)
			require.NoError(t, err)
			assert.Equal(t, BusinessError{Instruction: MsgStaleSession}, res)
		})
	}
}

func TestPostback_ValidSource(t *testing.T) {
	h, links := newHandler(t)
	live := session.NewContext(routerUser, StateAskingArticleSubmissionConsent, map[string]any{"searchedText": "hi"})

	res, err := h.HandleContent(context.Background(), postbackEvent(t, PostbackData{
		Input: "LINE group chat", SessionID: live.SessionID, State: StateAskingArticleSource,
	}), live)
	require.NoError(t, err)

	reply := res.(Reply)
	require.NotNil(t, reply.Context)
	assert.Equal(t, live.SessionID, reply.Context.SessionID)
	assert.Equal(t, StateAskingReason, reply.Context.State)
	assert.Equal(t, "LINE group chat", reply.Context.Data["articleSource"])
	assert.Equal(t, "hi", reply.Context.Data["searchedText"])
	assert.Nil(t, live.Data["articleSource"], "live context is not mutated")

	require.Len(t, links.calls, 1)
	assert.Equal(t, liff.PageReason, links.calls[0].page)
}

func TestPostback_InvalidSourceLabel(t *testing.T) {
	h, _ := newHandler(t)
	live := session.NewContext(routerUser, StateAskingArticleSubmissionConsent, nil)

	_, err := h.HandleContent(context.Background(), postbackEvent(t, PostbackData{
		Input: "Fax", SessionID: live.SessionID, State: StateAskingArticleSource,
	}), live)

	var be BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, MsgInvalidSource, be.Instruction)
}

func TestPostback_UntrustedSourceSuggestsOthers(t *testing.T) {
	h, links := newHandler(t)
	live := session.NewContext(routerUser, StateAskingArticleSubmissionConsent, nil)

	res, err := h.HandleContent(context.Background(), postbackEvent(t, PostbackData{
		Input: "Websites", SessionID: live.SessionID, State: StateAskingArticleSource,
	}), live)
	require.NoError(t, err)

	reply := res.(Reply)
	assert.Equal(t, StateSuggestOtherFactCheckers, reply.Context.State)
	assert.Empty(t, links.calls)
	tmpl := reply.Messages[0].(*line.TemplateMessage)
	assert.Len(t, tmpl.Template.Actions, len(manualFactCheckers))
}

func TestPostback_DeclineSubmission(t *testing.T) {
	h, _ := newHandler(t)
	live := session.NewContext(routerUser, StateAskingArticleSubmissionConsent, nil)

	res, err := h.HandleContent(context.Background(), postbackEvent(t, PostbackData{
		Input: "no", SessionID: live.SessionID, State: StateAskingArticleSubmissionConsent,
	}), live)
	require.NoError(t, err)
	assert.Equal(t, StateSuggestOtherFactCheckers, res.(Reply).Context.State)
}

func TestPostback_UnknownState(t *testing.T) {
	h, _ := newHandler(t)
	live := session.NewContext(routerUser, StateAskingReason, nil)

	res, err := h.HandleContent(context.Background(), postbackEvent(t, PostbackData{
		Input: "x", SessionID: live.SessionID, State: "NOPE",
	}), live)
	require.NoError(t, err)
	reply := res.(Reply)
	assert.Nil(t, reply.Context)
	assert.Equal(t, msgUnknownPostback, reply.Messages[0].(*line.TextMessage).Text)
}

func TestUnsupportedContentType(t *testing.T) {
	h, _ := newHandler(t)
	res, err := h.HandleContent(context.Background(), webhook.Event{Type: "join"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
}
