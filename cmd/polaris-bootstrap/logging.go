package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/config"
)

// newZapLogger builds a zap logger writing to w. Debug level enables the
// V(1) request tracing of the library packages.
func newZapLogger(cfg config.LogConfig, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", config.KeyLogLevel, cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid %s %q (supported: console, json)", config.KeyLogFormat, cfg.Format)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
}

func newLogr(z *zap.Logger) logr.Logger {
	return zapr.NewLogger(z)
}
