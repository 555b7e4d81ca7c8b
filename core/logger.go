package core

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// ProductionLogger is the default Logger, backed by logrus.
//
// Output format follows the environment: JSON when running in Kubernetes or
// when Logging.Format is "json", human-readable text otherwise. Every entry
// carries the service name; component loggers derived with WithComponent add
// a component field. Context-aware methods add request_id and trace_id.
type ProductionLogger struct {
	base      *logrus.Logger
	entry     *logrus.Entry
	component string
}

// NewProductionLogger builds a logger from the logging and development
// sections of Config.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) *ProductionLogger {
	base := logrus.New()
	base.SetOutput(resolveLogOutput(logging.Output))

	level, err := logrus.ParseLevel(strings.ToLower(logging.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	if dev.DebugLogging {
		level = logrus.DebugLevel
	}
	base.SetLevel(level)

	timeFormat := logging.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02T15:04:05.000Z07:00"
	}

	if strings.EqualFold(logging.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timeFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timeFormat,
			DisableColors:   !dev.PrettyLogs,
		})
	}

	return &ProductionLogger{
		base:  base,
		entry: base.WithField("service", serviceName),
	}
}

func resolveLogOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	case "discard", "none":
		return io.Discard
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return os.Stderr
		}
		return f
	}
}

// WithComponent returns a logger that tags every entry with the component name.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		base:      l.base,
		entry:     l.entry.WithField("component", component),
		component: component,
	}
}

// SetOutput redirects the logger, mostly for tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// SetLevel changes the minimum level at runtime. Unknown levels are ignored.
func (l *ProductionLogger) SetLevel(level string) {
	if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.base.SetLevel(parsed)
	}
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Info(msg)
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Error(msg)
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Warn(msg)
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Debug(msg)
}

// withContext merges correlation ids from ctx into the entry fields.
func (l *ProductionLogger) withContext(ctx context.Context, fields map[string]interface{}) *logrus.Entry {
	entry := l.entry.WithFields(logrus.Fields(fields))
	if ctx == nil {
		return entry
	}
	if id := RequestIDFromContext(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return entry
}
