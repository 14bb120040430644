package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pr-poehali-dev/telegram-feedback-bot/core/buildinfo"
)

var (
	initOnce sync.Once
	levelVar slog.LevelVar

	// L is the base logger; component loggers below derive from it.
	L *slog.Logger

	// App logs application lifecycle events.
	App *slog.Logger
	// DB logs database-related events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TG logs outbound Telegram API calls.
	TG *slog.Logger
	// Web logs webhook dispatch events.
	Web *slog.Logger
	// API logs bot management API events.
	API *slog.Logger
)

// Options configure the global structured logger.
type Options struct {
	Level   string
	Format  string
	Profile string
}

// Init configures the global structured logger. It may be called only once;
// subsequent calls are no-ops.
func Init(opts Options) error {
	initOnce.Do(func() {
		levelVar.Set(selectLevel(opts.Level))

		handler := newStructuredHandler(handlerConfig{
			level:    &levelVar,
			out:      os.Stdout,
			format:   selectFormat(opts.Format, opts.Profile),
			keyOrder: append([]string(nil), defaultKeyOrder...),
		})

		L = slog.New(handler)
		slog.SetDefault(L)
		wireComponents()
		logStartup(opts)
	})
	return nil
}

// Component returns a logger bound to the given component name.
func Component(name string) *slog.Logger {
	if L == nil {
		return slog.Default()
	}
	return L.With("component", name)
}

// Shutdown is the counterpart of Init; output is unbuffered so there is
// nothing to flush, but callers defer it for lifecycle symmetry.
func Shutdown() error { return nil }

func wireComponents() {
	App = L.With("component", "app")
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
	TG = L.With("component", "tg")
	Web = L.With("component", "webhook")
	API = L.With("component", "api")
}

func logStartup(opts Options) {
	if App == nil {
		return
	}
	App.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", opts.Profile),
	)
}

func selectLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func selectFormat(raw, profile string) logFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	// Prefer human-friendly format when profile indicates debug/dev mode.
	if strings.EqualFold(profile, "debug") || strings.EqualFold(profile, "dev") {
		return formatKV
	}
	return formatJSON
}
