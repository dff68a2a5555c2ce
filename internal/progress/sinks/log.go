package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/progress"
)

// LogSink writes run lifecycle events at info level and document events at
// debug level.
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

// Consume implements progress.Sink.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("job", evt.Job),
			zap.String("launch", evt.Launch),
			zap.Time("ts", evt.TS),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageDocument {
			fields = append(fields,
				zap.String("document_url", evt.DocumentURL),
				zap.String("outcome", evt.Outcome),
			)
			s.logger.Debug("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
