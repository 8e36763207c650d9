package database

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Logger forwards gorm's query log to logrus. Slow queries and failures are
// reported; missing rows are not errors for the repositories.
type Logger struct {
	logrus        *logrus.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewLogger builds a gorm logger writing through the given logrus logger.
func NewLogger(base *logrus.Logger, slowThreshold time.Duration) *Logger {
	if slowThreshold <= 0 {
		slowThreshold = 200 * time.Millisecond
	}
	return &Logger{logrus: base, level: gormlogger.Warn, slowThreshold: slowThreshold}
}

var _ gormlogger.Interface = (*Logger)(nil)

// LogMode implements gorm's logger.Interface.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info implements gorm's logger.Interface.
func (l *Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.entry(ctx).Infof(msg, args...)
	}
}

// Warn implements gorm's logger.Interface.
func (l *Logger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.entry(ctx).Warnf(msg, args...)
	}
}

// Error implements gorm's logger.Interface.
func (l *Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.entry(ctx).Errorf(msg, args...)
	}
}

// Trace implements gorm's logger.Interface.
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
			"error":   err.Error(),
		}).Error("database query failed")
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
		}).Warn("slow database query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
		}).Debug("database query")
	}
}

func (l *Logger) entry(ctx context.Context) *logrus.Entry {
	base := l.logrus
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithContext(ctx).WithField("component", "gorm")
}
