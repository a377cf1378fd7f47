package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options describes how a service logger is constructed
type Options struct {
	Service string
	Env     string
	Version string
	Format  string
	Level   slog.Level
}

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New constructs a slog.Logger writing to w. The JSON format carries the
// service, env, and version on every record; the console format is meant
// for local development
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.Format == FormatConsole {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:       opts.Level,
			TimeFormat:  time.TimeOnly,
			ReplaceAttr: dropEmpty,
		})).With(slog.String("service", opts.Service))
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	})
	return slog.New(handler).With(
		slog.String("service", opts.Service),
		slog.String("env", opts.Env),
		slog.String("version", opts.Version))
}

func dropEmpty(_ []string, a slog.Attr) slog.Attr {
	if s, ok := a.Value.Any().(string); ok && s == "" {
		return slog.Attr{}
	}
	return a
}

// Audit formats an audit-trail line stamped with the wall-clock time
func Audit(now time.Time, format string, args ...any) string {
	return fmt.Sprintf("[%s] %s", now.Format(time.TimeOnly),
		fmt.Sprintf(format, args...))
}
