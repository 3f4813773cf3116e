package log

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"quantdesk/internal/config"
)

func TestNewLogger(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "console defaults", cfg: config.LoggingConfig{Level: "info"}},
		{name: "json to file", cfg: config.LoggingConfig{
			Level:       "DEBUG",
			Encoding:    "json",
			OutputPaths: []string{filepath.Join(t.TempDir(), "quantdesk.log")},
		}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "verbose"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := NewLogger(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			logger.Debug("测试日志")
			_ = logger.Sync()
		})
	}
}

func TestForRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ForRun(zap.New(core), "run-1", "sma_cross").Info("开始")
	ForRun(nil, "run-2", "").Info("丢弃")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-1" || fields["strategy"] != "sma_cross" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
