package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes GORM's statement tracing through the slog logger. Every
// line carries the request id of the API call that issued it, so a slow or
// failing write can be matched to the audit entry of the same request.
type GormLogger struct {
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewGormLogger(logLevel logger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		LogLevel:      logLevel,
		SlowThreshold: slowThreshold,
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.LogLevel = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		Log.InfoContext(ctx, fmt.Sprintf(msg, data...), requestAttrs(ctx)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		Log.WarnContext(ctx, fmt.Sprintf(msg, data...), requestAttrs(ctx)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		Log.ErrorContext(ctx, fmt.Sprintf(msg, data...), requestAttrs(ctx)...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.SlowThreshold != 0 && elapsed > l.SlowThreshold
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	switch {
	case failed && l.LogLevel >= logger.Error:
		Log.ErrorContext(ctx, "sql error", append(l.fields(ctx, elapsed, fc), slog.String("error", err.Error()))...)
	case slow && l.LogLevel >= logger.Warn:
		Log.WarnContext(ctx, "slow query", append(l.fields(ctx, elapsed, fc), slog.Duration("threshold", l.SlowThreshold))...)
	case l.LogLevel >= logger.Info:
		Log.DebugContext(ctx, "sql", l.fields(ctx, elapsed, fc)...)
	}
}

func (l *GormLogger) fields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) []any {
	sql, rows := fc()
	return append(requestAttrs(ctx),
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	)
}

func requestAttrs(ctx context.Context) []any {
	if id := RequestID(ctx); id != "" {
		return []any{slog.String("request_id", id)}
	}
	return nil
}
