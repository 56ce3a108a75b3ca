// Package logging builds the zap loggers used across bizast's daemon and CLI.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger for the given level and format ("json" or "console").
func New(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q, must be 'json' or 'console'", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// Printf is the narrow interface components outside the daemon take instead of
// importing zap directly, so they can be driven by either a zap adapter or a
// test double.
type Printf interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ZapAdapter bridges a *zap.SugaredLogger to the Printf interface.
type ZapAdapter struct {
	S *zap.SugaredLogger
}

func NewZapAdapter(l *zap.Logger) *ZapAdapter {
	return &ZapAdapter{S: l.Sugar()}
}

func (z *ZapAdapter) Debugf(format string, args ...interface{}) { z.S.Debugf(format, args...) }
func (z *ZapAdapter) Infof(format string, args ...interface{})  { z.S.Infof(format, args...) }
func (z *ZapAdapter) Warnf(format string, args ...interface{})  { z.S.Warnf(format, args...) }
func (z *ZapAdapter) Errorf(format string, args ...interface{}) { z.S.Errorf(format, args...) }
