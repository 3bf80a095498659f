package ui

import (
	"context"
	"log/slog"
)

// TeeToLog writes a structured "segfeed.event" record for every event and
// forwards it on the returned channel, which closes after in does.
func TeeToLog(in <-chan Event, buffer int) <-chan Event {
	out := make(chan Event, buffer)
	go func() {
		defer close(out)
		for ev := range in {
			slog.LogAttrs(context.Background(), slog.LevelDebug, "segfeed.event", eventAttrs(ev)...)
			out <- ev
		}
	}()
	return out
}

func eventAttrs(ev Event) []slog.Attr {
	attrs := []slog.Attr{slog.String("type", ev.Type.String())}
	if ev.Batch > 0 {
		attrs = append(attrs, slog.Int64("batch", ev.Batch))
	}
	if ev.Path != "" {
		attrs = append(attrs, slog.String("path", ev.Path))
	}
	switch ev.Type {
	case ShapeChanged:
		attrs = append(attrs, slog.String("shape", FormatShape(ev.Shape)))
	case BatchAssembled:
		attrs = append(attrs,
			slog.Int("samples", ev.Samples),
			slog.Int("failed", ev.Failed),
			slog.Duration("elapsed", ev.Elapsed))
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	return attrs
}
