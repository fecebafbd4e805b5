// Package logging builds the process logger from the connector debug level.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the connector debug level, from none (0) to debug (5).
type Level int

const (
	LevelNone Level = iota
	LevelFatal
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = LevelWarning

var levelNames = []string{"none", "fatal", "error", "warning", "info", "debug"}

func (l Level) String() string {
	if l < LevelNone || l > LevelDebug {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts a level name or its number. An empty string yields
// DefaultLevel.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLevel, nil
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= int(LevelNone) && n <= int(LevelDebug) {
		return Level(n), nil
	}
	return DefaultLevel, fmt.Errorf("debug level should be one of: none, fatal, error, warning, info or debug, got %q", s)
}

// zapLevel maps the debug level onto zap. LevelNone has no zap level.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelFatal:
		return zapcore.FatalLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewZap builds a console zap logger writing to stderr at the given level.
// LevelNone returns a no-op logger.
func NewZap(level Level) (*zap.Logger, error) {
	if level == LevelNone {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Development = false
	cfg.DisableStacktrace = level != LevelDebug
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// New returns a logr.Logger backed by zap. logr verbosity 1 maps to debug.
func New(level Level) (logr.Logger, *zap.Logger, error) {
	zl, err := NewZap(level)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("build logger: %w", err)
	}
	return zapr.NewLogger(zl), zl, nil
}
