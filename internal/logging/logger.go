// Package logging configures the process-wide slog logger and derives
// request-scoped loggers that carry chi's request id and the session id.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/JonMunkholm/sheets/internal/core"
)

// Setup installs the default logger and returns the level variable so the
// level can be changed at runtime.
//
// Format "json" writes one JSON object per line to stdout. Anything else
// writes human-readable lines to stderr, coloured when stderr is a terminal.
func Setup(level, format string) *slog.LevelVar {
	lv := &slog.LevelVar{}
	lv.Set(ParseLevel(level))

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv})
	} else {
		handler = newTextHandler(os.Stderr, lv, !isatty.IsTerminal(os.Stderr.Fd()))
	}

	slog.SetDefault(slog.New(handler))
	return lv
}

func newTextHandler(f *os.File, lv slog.Leveler, noColor bool) slog.Handler {
	var w io.Writer = f
	if !noColor {
		w = colorable.NewColorable(f)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      lv,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Errors stand out in colour output.
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
}

// ParseLevel converts a string log level to slog.Level. Unknown values map
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the default logger enriched with the request id set
// by chi's RequestID middleware and the session id, when present.
//
//	func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
//	    logging.FromContext(r.Context()).Info("search", "terms", terms)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if ci := core.ClientFromContext(ctx); ci.SessionID != "" {
		logger = logger.With("session_id", ci.SessionID)
	}

	return logger
}

// WithFields returns a request logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
