package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", shortID(event.SessionID)),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}

	switch {
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("type", event.Message.Type.String()),
			slog.String("text", event.Message.Text),
		)
		if event.Message.Latency != nil {
			attrs = append(attrs, slog.Duration("latency", *event.Message.Latency))
		}
	case event.Status != nil:
		attrs = append(attrs,
			slog.Int("stb", int(event.Status.StatusByte)),
			slog.String("source", event.Status.Source.String()),
		)
		if event.Status.Description != "" {
			attrs = append(attrs, slog.String("bits", event.Status.Description))
		}
		if event.Status.Reading != "" {
			attrs = append(attrs, slog.String("reading", event.Status.Reading))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Register != nil:
		attrs = append(attrs,
			slog.String("family", event.Register.Family),
			slog.String("field", event.Register.Field),
			slog.String("old", formatMask(event.Register.Old)),
			slog.String("new", formatMask(event.Register.New)),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
