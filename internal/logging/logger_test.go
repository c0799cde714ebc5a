package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "")
	t.Setenv("LOG_LEVEL", "")
	if cfg := ConfigFromEnv(); cfg.Dev || cfg.Level != "info" {
		t.Fatalf("unexpected default config %+v", cfg)
	}

	t.Setenv("LOG_DEV", "1")
	if cfg := ConfigFromEnv(); !cfg.Dev || cfg.Level != "debug" {
		t.Fatalf("unexpected dev config %+v", cfg)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn should be enabled at warn level")
	}
}
