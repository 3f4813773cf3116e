package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quantdesk/internal/config"
)

const serviceName = "quantdesk"

// NewLogger 根据配置创建 zap.Logger。console 编码带颜色级别，json 编码用于落盘。
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(orString(cfg.Level, "info"))))); err != nil {
		return nil, fmt.Errorf("解析日志级别 %q 失败: %w", cfg.Level, err)
	}

	encoding := strings.ToLower(orString(cfg.Encoding, "console"))
	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		DisableStacktrace: !cfg.Development,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig(encoding),
		OutputPaths:       orPaths(cfg.OutputPaths, "stdout"),
		ErrorOutputPaths:  orPaths(cfg.ErrorOutputPaths, "stderr"),
		InitialFields:     map[string]interface{}{"service": serviceName},
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("创建日志实例失败: %w", err)
	}
	return logger, nil
}

// ForRun 返回带有回测批次与策略字段的子 logger。
func ForRun(logger *zap.Logger, runID, strategy string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{zap.String("run_id", runID)}
	if strategy != "" {
		fields = append(fields, zap.String("strategy", strategy))
	}
	return logger.With(fields...)
}

func encoderConfig(encoding string) zapcore.EncoderConfig {
	levelEncoder := zapcore.CapitalLevelEncoder
	if encoding == "console" {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func orString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orPaths(paths []string, def string) []string {
	if len(paths) == 0 {
		return []string{def}
	}
	return paths
}
