package observ

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(env, "warn")
		if err != nil {
			t.Fatalf("NewLogger(%s) error = %v", env, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("NewLogger(%s, warn) has info enabled", env)
		}
		if !logger.Core().Enabled(zapcore.WarnLevel) {
			t.Errorf("NewLogger(%s, warn) has warn disabled", env)
		}
	}
}
