// Package logging builds the zap logger every component receives.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gridkernel/config"
	"gridkernel/core"
)

// ParseLevel maps a level name to a zap level; empty means info
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("log level %q: %w", s, core.ErrInvalidInput)
	}
	return level, nil
}

// New builds a logger from the logging settings. JSON output uses the
// production encoder, console output the development one.
func New(s config.LoggingSettings) (*zap.Logger, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch s.Format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: %w", s.Format, core.ErrInvalidInput)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Named("gridkernel"), nil
}
