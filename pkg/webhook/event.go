// Package webhook accepts LINE webhook deliveries, acknowledges them at once
// and hands every event to a Handler in the background.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types the bot reacts to.
const (
	TypeFollow   = "follow"
	TypeUnfollow = "unfollow"
	TypeMessage  = "message"
	TypePostback = "postback"
)

// knownTypes bounds the metric label set to the documented LINE event types.
var knownTypes = map[string]bool{
	TypeFollow: true, TypeUnfollow: true, TypeMessage: true, TypePostback: true,
	"join": true, "leave": true, "memberJoined": true, "memberLeft": true,
	"beacon": true, "accountLink": true, "things": true, "unsend": true,
	"videoPlayComplete": true,
}

// Payload is the body of a webhook delivery. Events stay raw so one malformed
// event cannot fail the whole delivery.
type Payload struct {
	Destination string            `json:"destination"`
	Events      []json.RawMessage `json:"events"`
}

// Event is one inbound platform event. Type may be empty.
type Event struct {
	Type       string    `json:"type"`
	Mode       string    `json:"mode,omitempty"`
	Timestamp  int64     `json:"timestamp"`
	ReplyToken string    `json:"replyToken,omitempty"`
	Source     Source    `json:"source"`
	Message    *Message  `json:"message,omitempty"`
	Postback   *Postback `json:"postback,omitempty"`

	// decodeErr is set when the raw event did not match the schema. Such an
	// event is audited but never reaches the Handler.
	decodeErr error
}

// decodeEvents decodes each raw event on its own. An event that fails keeps
// whatever source could be read and is marked undecodable.
func decodeEvents(raw []json.RawMessage) []Event {
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal(r, &ev); err != nil {
			var partial struct {
				Source Source `json:"source"`
			}
			_ = json.Unmarshal(r, &partial)
			ev = Event{Source: partial.Source, decodeErr: fmt.Errorf("decoding event: %w", err)}
		}
		events = append(events, ev)
	}
	return events
}

// Source identifies who sent the event.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message is the content of a message event.
type Message struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	PackageID string `json:"packageId,omitempty"`
	StickerID string `json:"stickerId,omitempty"`
}

// Postback is the data of a postback event.
type Postback struct {
	Data string `json:"data"`
}

// Result classifies how a handler finished an event.
type Result string

const (
	// Handled means the event changed state or produced a reply.
	Handled Result = "ok"
	// Ignored means the event type has no handling.
	Ignored Result = "ignored"
	// Recovered means a business error was turned into a corrective reply.
	Recovered Result = "business_error"
)

// Outcome is what a Handler reports back for auditing.
type Outcome struct {
	Result    Result
	SessionID string
}

// Handler processes one event. Errors are logged, counted and audited by the
// ingress; they never reach the platform.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) (Outcome, error) {
	return f(ctx, ev)
}

func typeLabel(t string) string {
	switch {
	case t == "":
		return "undefined"
	case knownTypes[t]:
		return t
	default:
		return "other"
	}
}
