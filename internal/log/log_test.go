package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevelAfterInit(t *testing.T) {
	Init("info")
	ctx := context.Background()

	if L().Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug enabled at info level")
	}

	SetLevel("debug")
	if !L().Enabled(ctx, slog.LevelDebug) {
		t.Error("debug still disabled after SetLevel")
	}

	SetLevel("info")
	if L().Enabled(ctx, slog.LevelDebug) {
		t.Error("debug still enabled after lowering the level")
	}
}
