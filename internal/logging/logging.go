// Package logging wraps log/slog with request-scoped IDs and event
// helpers for the mail pipeline.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Level selects the minimum severity that gets emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects the output encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

type contextKey string

const requestIDKey contextKey = "request_id"

var logger *slog.Logger

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// InitLogger replaces the package logger. Timestamps are rendered as
// RFC 3339 so log lines sort lexically.
func InitLogger(level Level, format Format) {
	// slog levels are spaced 4 apart, starting at Debug = -4.
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug + slog.Level(4*int(level)),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format == FormatText {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns the package logger, tagged with the context's
// request ID when one is present.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// WebhookEvent records an accepted inbound delivery.
func WebhookEvent(messageID, from string, bodyBytes int, args ...any) {
	logger.Info("webhook_event", append([]any{
		"message_id", messageID,
		"from", from,
		"body_bytes", bodyBytes,
	}, args...)...)
}

// MailError records a failed outbound reply.
func MailError(to, operation string, err error, args ...any) {
	logger.Error("mail_error", append([]any{
		"to", to,
		"operation", operation,
		"error", err.Error(),
	}, args...)...)
}

// WebSocketEvent records hub membership changes.
func WebSocketEvent(event string, clientCount int, args ...any) {
	logger.Info("websocket_event", append([]any{
		"event", event,
		"client_count", clientCount,
	}, args...)...)
}

// ServerStartup records the listener coming up.
func ServerStartup(serverType, protocol string, port int, args ...any) {
	logger.Info("server_startup", append([]any{
		"server_type", serverType,
		"protocol", protocol,
		"port", port,
	}, args...)...)
}

// SecurityEvent records auth and rate-limit decisions at Warn.
func SecurityEvent(event, component string, args ...any) {
	logger.Warn("security_event", append([]any{
		"event", event,
		"component", component,
	}, args...)...)
}
