package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/progress"
)

// LogSink writes run milestones at info level and item events at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("spider", evt.Spider),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageItem:
			s.logger.Debug("item", append(fields, zap.String("outcome", string(evt.Outcome)))...)
		case progress.StageRunError:
			s.logger.Warn("run finished", append(fields,
				zap.String("status", evt.Status),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note))...)
		default:
			if evt.Status != "" {
				fields = append(fields, zap.String("status", evt.Status), zap.Duration("dur", evt.Dur))
			}
			s.logger.Info("run progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
