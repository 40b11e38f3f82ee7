package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	ServiceKey   contextKey = "service"
)

var defaultLogger = newLogger(os.Stdout, os.Getenv("LOG_LEVEL"))

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil && level != "" {
		l.SetLevel(lvl)
	}
	return l
}

// SetOutput redirects the default logger, mostly for tests.
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// SetLevel accepts logrus level names ("debug", "info", ...). Unknown names are ignored.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		defaultLogger.SetLevel(lvl)
	}
}

func Default() *logrus.Logger {
	return defaultLogger
}

func WithContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(defaultLogger)
	if ctx == nil {
		return entry
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}

	if userID := ctx.Value(UserIDKey); userID != nil {
		entry = entry.WithField("user_id", userID)
	}

	if service := ctx.Value(ServiceKey); service != nil {
		entry = entry.WithField("service", service)
	}

	return entry.WithContext(ctx)
}

// fields turns alternating key/value args into logrus fields. A dangling key is
// kept under "!BADKEY" the way slog does it.
func fields(args []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			f["!BADKEY"] = args[i]
			continue
		}
		val := args[i+1]
		if err, isErr := val.(error); isErr {
			val = err.Error()
		}
		f[key] = val
		i++
	}
	return f
}

func Info(msg string, args ...any) {
	defaultLogger.WithFields(fields(args)).Info(msg)
}

func Error(msg string, args ...any) {
	defaultLogger.WithFields(fields(args)).Error(msg)
}

func Debug(msg string, args ...any) {
	defaultLogger.WithFields(fields(args)).Debug(msg)
}

func Warn(msg string, args ...any) {
	defaultLogger.WithFields(fields(args)).Warn(msg)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(fields(args)).Info(msg)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(fields(args)).Error(msg)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(fields(args)).Debug(msg)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(fields(args)).Warn(msg)
}

// Printf adapts the logger to libraries that want a printf-style sink (cron).
type Printf struct{}

func (Printf) Printf(format string, v ...any) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}
