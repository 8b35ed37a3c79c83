// Package logger is the structured logger every package receives from the
// composition root. It wraps log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey is set by the request id middleware.
	RequestIDKey contextKey = "request_id"
	// UserIDKey is set once the caller is authenticated.
	UserIDKey contextKey = "user_id"
)

// Logger wraps slog.Logger with the event helpers used across the service.
type Logger struct {
	*slog.Logger
}

// New writes to stdout: human readable text in development and test, JSON
// everywhere else.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *Logger {
	switch strings.ToLower(env) {
	case "development", "test":
		return &Logger{slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	default:
		return &Logger{slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
	}
}

// Nop discards everything. Tests use it.
func Nop() *Logger {
	return NewWithWriter("test", io.Discard)
}

// WithContext tags the logger with the request and user ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	for _, key := range []contextKey{RequestIDKey, UserIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{l.With(attrs...)}
}

// HTTPRequest logs one served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// RateLimitExceeded logs a request rejected by the IP limiter.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}

// OutboxDelivery logs the result of delivering one outbox event to one sink.
// Successes are debug; failures are warnings because the dispatcher retries.
func (l *Logger) OutboxDelivery(eventID, eventType, sink string, attempt int, err error) {
	attrs := []any{
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("sink", sink),
		slog.Int("attempt", attempt),
	}
	if err == nil {
		l.Debug("outbox_delivery", attrs...)
		return
	}
	l.Warn("outbox_delivery_failed", append(attrs, slog.String("error", err.Error()))...)
}

// DirectoryRetry logs one failed directory lookup attempt.
func (l *Logger) DirectoryRetry(kind, id string, attempt int, err error) {
	l.Debug("directory_lookup_retry",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}
