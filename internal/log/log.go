// Package log is armrec's structured logging front. One process-wide
// slog logger, text for development and JSON when ARMREC_ENV is
// "production", with a level that can be raised after startup.
package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	level  slog.LevelVar
	logger *slog.Logger
	once   sync.Once
)

// Init builds the global logger at the given level. Safe to call more
// than once; only the first call installs a handler.
func Init(lvl string) {
	once.Do(func() {
		level.Set(parseLevel(lvl))
		opts := &slog.HandlerOptions{Level: &level}
		if os.Getenv("ARMREC_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
		}
		slog.SetDefault(logger)
	})
}

// SetLevel changes the level of the running logger, e.g. for a -debug
// flag overriding the configured level.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger, initializing it at info if needed.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
