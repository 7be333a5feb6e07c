package apiclient

import (
	"context"
	"log/slog"

	"github.com/boychina/web-tracing-analysis/pkg/slogx"
)

type Level int

const (
	LevelError Level = iota
	LevelWarning
)

func (l Level) String() string {
	if l == LevelWarning {
		return "warning"
	}
	return "error"
}

// Notice is a user facing message raised by the pipeline.
type Notice struct {
	Level   Level
	Kind    Kind
	Message string
}

// Notifier shows notices to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to a logger. It is the default for headless use.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := slogx.FromContext(ctx, l.Logger)
	level := slog.LevelError
	if n.Level == LevelWarning {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, n.Message, "kind", n.Kind.String())
}
