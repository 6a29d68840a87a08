package orm

import (
	"context"

	"go.uber.org/zap"
)

type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger adapts l to Logger. Statements are logged at debug level.
func NewZapLogger(l *zap.Logger) Logger {
	return zapLogger{l: l}
}

func (z zapLogger) Log(_ context.Context, query string, args ...any) {
	z.l.Debug("orm query", zap.String("sql", query), zap.Any("args", args))
}
