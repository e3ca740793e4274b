// Package convergectx carries a leveled logger through context.Context, the
// way the rest of this lineage's servers do, so components log without
// taking a concrete logging dependency.
package convergectx

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   = logrus.StandardLogger()
	defaultLoggerMu sync.RWMutex
)

// Logger is a leveled-logging interface, matching logrus's entry methods
// closely enough that a *logrus.Entry satisfies it directly.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithError(err error) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a copy of ctx whose logger (or the default logger, if
// none is set) has the given fields attached.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(logrus.Fields(fields)))
}

// GetLogger returns the logger carried by ctx, falling back to the default
// package-level logrus logger.
func GetLogger(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}

	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger.WithField("component", "convergence")
}

// SetDefaultLogger replaces the package-level fallback logger, used by the
// authority process at startup to install its configured formatter/level.
func SetDefaultLogger(l *logrus.Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

var _ Logger = (*logrus.Entry)(nil)
