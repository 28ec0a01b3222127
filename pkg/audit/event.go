package audit

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent creates a new audit event for a webhook event of eventType.
func NewEvent(eventType string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		EventType: eventType,
	}
}

// WithUser adds the LINE user id to the event.
func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

// WithSession adds the search session id the event ran under.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithMode adds the channel mode (active, standby).
func (e *Event) WithMode(mode string) *Event {
	e.Mode = mode
	return e
}

// WithParameters adds sanitized parameters to the event.
func (e *Event) WithParameters(params map[string]any) *Event {
	e.Parameters = SanitizeParameters(params)
	return e
}

// WithResult adds result information to the event.
func (e *Event) WithResult(result string, success bool, errorMsg string, durationMS int64) *Event {
	e.Result = result
	e.Success = success
	e.ErrorMessage = errorMsg
	e.DurationMS = durationMS
	return e
}

// WithRequestID adds a request ID to the event.
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// SanitizeParameters removes sensitive parameters from the event.
func SanitizeParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	sensitiveKeys := map[string]bool{
		"token":         true,
		"replyToken":    true,
		"secret":        true,
		"authorization": true,
		"access_token":  true,
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}
