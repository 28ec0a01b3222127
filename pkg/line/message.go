// Package line adapts the bot to the LINE Messaging API: outbound message
// objects, the reply client and webhook signature verification.
package line

// Message is an outbound message object.
type Message interface {
	MessageType() string
}

// TextMessage is a plain text message.
type TextMessage struct {
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

// NewText creates a text message.
func NewText(text string) *TextMessage {
	return &TextMessage{Type: "text", Text: text}
}

// WithQuickReply attaches quick reply actions.
func (m *TextMessage) WithQuickReply(actions ...Action) *TextMessage {
	items := make([]QuickReplyItem, 0, len(actions))
	for _, a := range actions {
		items = append(items, QuickReplyItem{Type: "action", Action: a})
	}
	m.QuickReply = &QuickReply{Items: items}
	return m
}

// MessageType implements Message.
func (m *TextMessage) MessageType() string { return m.Type }

// TemplateMessage wraps a buttons template.
type TemplateMessage struct {
	Type     string          `json:"type"`
	AltText  string          `json:"altText"`
	Template ButtonsTemplate `json:"template"`
}

// ButtonsTemplate is a text with up to four action buttons.
type ButtonsTemplate struct {
	Type    string   `json:"type"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions"`
}

// NewButtons creates a buttons template message.
func NewButtons(altText, text string, actions ...Action) *TemplateMessage {
	return &TemplateMessage{
		Type:    "template",
		AltText: altText,
		Template: ButtonsTemplate{
			Type:    "buttons",
			Text:    text,
			Actions: actions,
		},
	}
}

// MessageType implements Message.
func (m *TemplateMessage) MessageType() string { return m.Type }

// QuickReply holds quick reply buttons.
type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

// QuickReplyItem is one quick reply button.
type QuickReplyItem struct {
	Type   string `json:"type"`
	Action Action `json:"action"`
}

// Action is a button action. Only the fields of its Type are set.
type Action struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	URI         string `json:"uri,omitempty"`
	Data        string `json:"data,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Text        string `json:"text,omitempty"`
}

// URIAction opens uri.
func URIAction(label, uri string) Action {
	return Action{Type: "uri", Label: label, URI: uri}
}

// PostbackAction sends data back to the webhook as a postback event.
func PostbackAction(label, data, displayText string) Action {
	return Action{Type: "postback", Label: label, Data: data, DisplayText: displayText}
}

// Verify interface compliance.
var (
	_ Message = (*TextMessage)(nil)
	_ Message = (*TemplateMessage)(nil)
)
