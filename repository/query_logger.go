package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// queryLogger logs every statement at debug level
type queryLogger struct {
	log *slog.Logger
}

var _ bun.QueryHook = (*queryLogger)(nil)

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	logger := h.log
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("operation", event.Operation()),
		slog.Duration("took", time.Since(event.StartTime)),
		slog.String("query", event.Query),
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "sql", attrs...)
}
