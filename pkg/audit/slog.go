package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrQueryUnsupported is returned by loggers that cannot read back events.
var ErrQueryUnsupported = errors.New("audit: query not supported by this logger")

// SlogLogger writes audit events to a slog logger. It is used when no
// database is configured.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a SlogLogger. A nil logger uses slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log writes event at info level, or warn level when it failed.
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "webhook event",
		"audit_id", event.ID,
		"event_type", event.EventType,
		"user_id", event.UserID,
		"session_id", event.SessionID,
		"result", event.Result,
		"duration_ms", event.DurationMS,
		"error", event.ErrorMessage,
	)
	return nil
}

// Query always returns ErrQueryUnsupported.
func (*SlogLogger) Query(context.Context, QueryFilter) ([]Event, error) {
	return nil, ErrQueryUnsupported
}

// Close is a no-op.
func (*SlogLogger) Close() error { return nil }

// Verify interface compliance.
var _ Logger = (*SlogLogger)(nil)
