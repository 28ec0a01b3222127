// Package telemetry reports backend contract violations: conditions that are
// not user mistakes but mean a collaborator answered outside its contract.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/txn2/factcheck-bot/pkg/metrics"
)

// Reporter receives unexpected errors.
type Reporter interface {
	Report(ctx context.Context, source string, err error)
}

// LogReporter writes reports to a slog logger and counts them.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses slog.Default.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Report logs err at error level and increments the report counter.
func (r *LogReporter) Report(ctx context.Context, source string, err error) {
	if err == nil {
		return
	}
	metrics.ObserveReport(source)
	r.logger.ErrorContext(ctx, "telemetry report", "source", source, "error", err)
}

// Verify interface compliance.
var _ Reporter = (*LogReporter)(nil)
