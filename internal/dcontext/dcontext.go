// Package dcontext carries structured-logging fields and a leveled logger
// through a stdlib context.Context, the way papermake's request-scoped
// state (render ID, namespace/name/tag, fingerprint) flows from the entry
// point of a publish or render operation down through every package that
// logs about it.
package dcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// Logger is the leveled-logging interface carried in a context. It is
// satisfied by *logrus.Entry.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// WithLogger returns a copy of ctx carrying logger, retrievable with
// GetLogger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the Logger stored in ctx, merged with a field for every
// key in keys whose value is present in ctx, or the standard logrus logger
// if ctx carries none.
func GetLogger(ctx context.Context, keys ...interface{}) Logger {
	return getLogrusEntry(ctx, keys...)
}

// GetLoggerWithField is GetLogger with an additional field set.
func GetLoggerWithField(ctx context.Context, key, value interface{}, keys ...interface{}) Logger {
	return getLogrusEntry(ctx, keys...).WithField(fieldName(key), value)
}

// GetLoggerWithFields is GetLogger with additional fields set.
func GetLoggerWithFields(ctx context.Context, fields map[string]interface{}, keys ...interface{}) Logger {
	return getLogrusEntry(ctx, keys...).WithFields(logrus.Fields(fields))
}

func getLogrusEntry(ctx context.Context, keys ...interface{}) *logrus.Entry {
	entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry)
	if !ok {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	fields := logrus.Fields{}
	for _, key := range keys {
		if v := ctx.Value(key); v != nil {
			fields[fieldName(key)] = v
		}
	}

	return entry.WithFields(fields)
}

func fieldName(key interface{}) string {
	if s, ok := key.(string); ok {
		return s
	}
	if s, ok := key.(interface{ String() string }); ok {
		return s.String()
	}
	return "key"
}
