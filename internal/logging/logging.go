// Package logging builds the zap logger shared by the CLI and the runner.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/concbench/internal/workload"
)

// New returns a logger writing to stderr at level. JSON selects the production encoder,
// otherwise the console encoder is used.
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// FailureLogger adapts a zap logger to workload.FailureLogger. Cancelled units are
// logged at debug level.
type FailureLogger struct {
	Logger *zap.Logger
	Model  string
}

func (l FailureLogger) LogFailure(err error) {
	if err == nil || l.Logger == nil {
		return
	}
	if workload.IsCancelled(err) {
		l.Logger.Debug("work unit cancelled", zap.String("model", l.Model), zap.Error(err))
		return
	}
	l.Logger.Warn("work unit failed", zap.String("model", l.Model), zap.Error(err))
}
