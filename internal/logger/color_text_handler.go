package logger

import (
	"context"
	"io"
	"log/slog"
	"time"
)

const ansiReset = "\033[0m"

// levelColor picks the ANSI escape introducing a record level. Custom
// levels fall into the nearest standard bucket.
func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}

// ColorTextHandler renders text records with a colored level prefix on
// the message. With timestamps disabled it blanks the record time; the
// underlying text handler omits a zero time.
type ColorTextHandler struct {
	*slog.TextHandler
	timestamps bool
}

// NewColorTextHandler builds the handler on top of slog's text handler.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, timestamps bool) *ColorTextHandler {
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, opts),
		timestamps:  timestamps,
	}
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.timestamps {
		r.Time = time.Time{}
	}
	r.Message = levelColor(r.Level) + r.Level.String() + ansiReset + "  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
