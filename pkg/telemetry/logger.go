// Package telemetry provides structured logging, metrics, and tracing for
// RangeForge. The logger wraps zerolog; the Critical channel is reserved for
// consistency failures that need operator attention (a deployed range the
// database does not know about), and every Critical message also increments
// an alerting counter so it can never pass silently.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with RangeForge-specific field helpers.
type Logger struct {
	zlog    zerolog.Logger
	config  LoggingConfig
	metrics *Metrics
}

// loggerContextKey is the context key for logger instances.
type loggerContextKey struct{}

// NewLogger creates a logger from configuration. A nil metrics value is
// allowed; Critical then logs without bumping the alert counter.
func NewLogger(cfg LoggingConfig, metrics *Metrics) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zlog := zerolog.New(writer).With().Timestamp().Logger().Level(parseLogLevel(cfg.Level))

	return &Logger{zlog: zlog, config: cfg, metrics: metrics}, nil
}

// NewComponentLogger creates a child logger tagged with a component name.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.child(l.zlog.With().Str("component", component).Logger())
}

// WithContext attaches the logger to a context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from a context, or a default stderr
// logger when none is attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// WithJobID tags the logger with a job identifier.
func (l *Logger) WithJobID(jobID string) *Logger {
	return l.child(l.zlog.With().Str("job_id", jobID).Logger())
}

// WithRangeID tags the logger with a range identifier.
func (l *Logger) WithRangeID(rangeID string) *Logger {
	return l.child(l.zlog.With().Str("range_id", rangeID).Logger())
}

// WithProvider tags the logger with a cloud provider name.
func (l *Logger) WithProvider(provider string) *Logger {
	return l.child(l.zlog.With().Str("provider", provider).Logger())
}

// WithError attaches an error to subsequent log entries.
func (l *Logger) WithError(err error) *Logger {
	return l.child(l.zlog.With().Err(err).Logger())
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...any) { l.zlog.Debug().Msgf(format, args...) }

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.zlog.Info().Msg(msg) }

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...any) { l.zlog.Info().Msgf(format, args...) }

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) { l.zlog.Warn().Msg(msg) }

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...any) { l.zlog.Warn().Msgf(format, args...) }

// Error logs an error-level message.
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...any) { l.zlog.Error().Msgf(format, args...) }

// Critical logs an error-level message tagged alert=true and increments the
// alerting counter. Reserved for actionable consistency failures: dangling
// cloud resources, a record the database refused after a confirmed apply.
func (l *Logger) Critical(msg string) {
	if l.metrics != nil {
		l.metrics.IncCriticalAlerts()
	}
	l.zlog.Error().Bool("alert", true).Msg(msg)
}

// Criticalf is the formatted variant of Critical.
func (l *Logger) Criticalf(format string, args ...any) {
	if l.metrics != nil {
		l.metrics.IncCriticalAlerts()
	}
	l.zlog.Error().Bool("alert", true).Msgf(format, args...)
}

// child clones the logger around a derived zerolog instance.
func (l *Logger) child(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, config: l.config, metrics: l.metrics}
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
