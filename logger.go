package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SlogLogger adapts a *slog.Logger to Logger. Messages accept either printf
// verbs or trailing key/value pairs; errors in the pairs are expanded with
// their category and text code.
type SlogLogger struct {
	log *slog.Logger
}

var _ Logger = SlogLogger{}

func NewSlogLogger(l *slog.Logger) SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return SlogLogger{log: l}
}

// Slog returns the wrapped logger
func (s SlogLogger) Slog() *slog.Logger {
	return s.log
}

func (s SlogLogger) Debug(format string, args ...any) {
	s.emit(slog.LevelDebug, format, args)
}

func (s SlogLogger) Info(format string, args ...any) {
	s.emit(slog.LevelInfo, format, args)
}

func (s SlogLogger) Warn(format string, args ...any) {
	s.emit(slog.LevelWarn, format, args)
}

func (s SlogLogger) Error(format string, args ...any) {
	s.emit(slog.LevelError, format, args)
}

func (s SlogLogger) emit(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !s.log.Enabled(ctx, level) {
		return
	}
	msg, attrs := splitLogArgs(format, args)
	s.log.LogAttrs(ctx, level, msg, attrs...)
}

// NewLogHandler builds the process logger. format is "json" or "text".
func NewLogHandler(format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h).With(slog.String("service", "eduquiz-auth"))
}

func parseLevel(level string) slog.Level {
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

// splitLogArgs renders printf style calls and turns key/value calls into
// attributes.
func splitLogArgs(format string, args []any) (string, []slog.Attr) {
	if len(args) == 0 {
		return format, nil
	}

	if strings.Contains(format, "%") {
		return strings.TrimRight(fmt.Sprintf(format, args...), "\n"), nil
	}

	var attrs []slog.Attr
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			attrs = append(attrs, slog.Any("!BADKEY", args[i]))
			continue
		}
		val := args[i+1]
		i++

		if err, isErr := val.(error); isErr {
			attrs = append(attrs, slog.String(key, err.Error()))
			var rich *goerrors.Error
			if goerrors.As(err, &rich) {
				attrs = append(attrs, slog.Group(key+"_details",
					"category", rich.Category,
					"text_code", rich.TextCode,
					"code", rich.Code,
				))
			}
			continue
		}
		attrs = append(attrs, slog.Any(key, val))
	}
	return format, attrs
}
