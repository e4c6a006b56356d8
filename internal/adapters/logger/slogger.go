package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// SlogLogger implements the ports.Logger interface using log/slog with a
// text handler writing to os.Stderr.
type SlogLogger struct {
	logger *slog.Logger
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

// Decode lets envconfig read a LogLevel directly from an environment
// variable.
func (l *LogLevel) Decode(value string) error {
	*l = ParseLevel(value)
	return nil
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogLogger creates a logger that drops records below level.
// It logs to os.Stderr by default.
func NewSlogLogger(level LogLevel) *SlogLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.slogLevel()})
	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, err error, fields ...map[string]interface{}) {
	attrs := make([]slog.Attr, 0, 8)
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// Debug logs a message at Debug level.
func (l *SlogLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, slog.LevelDebug, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *SlogLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, slog.LevelInfo, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *SlogLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, slog.LevelWarn, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *SlogLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, slog.LevelError, msg, err, fields...)
}
