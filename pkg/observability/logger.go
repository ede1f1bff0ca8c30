package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/contextkeys"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// clamp pins out-of-range values to the nearest defined level.
func (l LogLevel) clamp() LogLevel {
	if l < DebugLevel {
		return DebugLevel
	}
	if l > ErrorLevel {
		return ErrorLevel
	}
	return l
}

func (l LogLevel) String() string {
	return levelNames[l.clamp()]
}

func (l LogLevel) slogLevel() slog.Level {
	return slogLevels[l.clamp()]
}

// Logger wraps a slog JSON logger behind the level and field helpers the
// rest of the service logs through.
type Logger struct {
	logger *slog.Logger
}

// NewLogger builds a JSON logger writing to output at the given minimum
// level. A nil output falls back to stdout.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	h := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(h)}
}

// Slog exposes the underlying slog logger for callers that install it as
// the process default or hand it to libraries that speak slog.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// WithField returns a logger that attaches key=value to every entry.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{logger: l.logger.With(key, value)}
}

// WithFields attaches every entry of fields. Keys are added in sorted
// order so repeated runs emit identical lines.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, 2*len(fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithError attaches the error text under the "error" key. A nil error
// returns the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug, Info, Warn and Error emit at the named severity. The f variants
// run the arguments through fmt.Sprintf first; the message itself is never
// treated as a format string.
func (l *Logger) Debug(message string) { l.logger.Debug(message) }

func (l *Logger) Info(message string) { l.logger.Info(message) }

func (l *Logger) Warn(message string) { l.logger.Warn(message) }

func (l *Logger) Error(message string) { l.logger.Error(message) }

func (l *Logger) Debugf(format string, args ...any) { l.Debug(fmt.Sprintf(format, args...)) }

func (l *Logger) Infof(format string, args ...any) { l.Info(fmt.Sprintf(format, args...)) }

func (l *Logger) Warnf(format string, args ...any) { l.Warn(fmt.Sprintf(format, args...)) }

func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

// fallbackLogger serves code paths that run without a logger in their
// context. Built once; FromContext sits on the per-request rate limit path.
var fallbackLogger = sync.OnceValue(func() *Logger {
	return NewLogger(InfoLevel, os.Stdout)
})

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// GetLogger returns the logger stored in ctx, or the shared stdout logger
// at info level when none was stored.
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return fallbackLogger()
}

// FromContext creates a logger enriched with the request identity stored
// in the context. Absent fields are simply omitted.
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	if userID := contextkeys.GetUserID(ctx); userID != "" {
		logger = logger.WithField("user_id", userID)
	}

	if tenantID := contextkeys.GetTenantID(ctx); tenantID != "" {
		logger = logger.WithField("tenant_id", tenantID)
	}

	return logger
}
