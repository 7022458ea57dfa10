package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where the Prometheus endpoint is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.String("key", evt.Key),
		zap.String("title", evt.Title),
		zap.String("outcome", evt.Outcome),
		zap.Int("cites", evt.Cites),
		zap.Int("warmed", evt.Warmed),
		zap.Int("queries", evt.Queries),
		zap.Duration("dur", evt.Dur),
		zap.String("note", evt.Note),
	}
	s.logger.Info("progress event", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
