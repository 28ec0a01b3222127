package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/txn2/factcheck-bot/pkg/line"
)

// PostbackData is the JSON carried in the data field of every postback button
// the bot sends. State names the step that processes the postback.
type PostbackData struct {
	Input     string `json:"input"`
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

// CreatePostbackAction builds a postback button bound to sessionID and state.
func CreatePostbackAction(label, input, displayText, sessionID, state string) line.Action {
	data, _ := json.Marshal(PostbackData{Input: input, SessionID: sessionID, State: state})
	return line.PostbackAction(label, string(data), displayText)
}

// ParsePostbackData decodes the data field of a postback event.
func ParsePostbackData(raw string) (PostbackData, error) {
	var d PostbackData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("decoding postback data: %w", err)
	}
	return d, nil
}
