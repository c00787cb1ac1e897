package logger

import (
	"context"

	"github.com/yatrik/scheduler/core/events"
)

// ProgressSink writes progress envelopes as structured log lines. Slot level
// events are logged at debug level.
type ProgressSink struct {
	log Logger
}

// NewProgressSink creates a ProgressSink logging under the progress component.
func NewProgressSink(l Logger) *ProgressSink {
	if l == nil {
		l = New("progress")
	}
	return &ProgressSink{log: l}
}

// Send logs env.
func (s *ProgressSink) Send(_ context.Context, env events.Envelope) error {
	fields := map[string]any{"event": env.Event, "run_id": env.RunID, "data": env.Data}
	switch env.Data.(type) {
	case events.RunStarted, events.RunFinished:
		s.log.Infow("progress", fields)
	default:
		s.log.Debugw("progress", fields)
	}
	return nil
}

// Close is a no-op.
func (s *ProgressSink) Close() error { return nil }

func init() {
	_ = events.RegisterSink("log", func(map[string]any) (events.Sink, error) {
		return NewProgressSink(nil), nil
	})
}
