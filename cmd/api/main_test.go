package main

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{level: "debug", enabled: slog.LevelDebug, muted: slog.LevelDebug - 4},
		{level: "info", enabled: slog.LevelInfo, muted: slog.LevelDebug},
		{level: "warn", enabled: slog.LevelWarn, muted: slog.LevelInfo},
		{level: "error", enabled: slog.LevelError, muted: slog.LevelWarn},
		{level: "bogus", enabled: slog.LevelInfo, muted: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(tt.level)
			if !logger.Enabled(context.Background(), tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if logger.Enabled(context.Background(), tt.muted) {
				t.Errorf("level %s should be muted", tt.muted)
			}
		})
	}
}
