// Package observability holds the structured logger, the metrics
// abstraction with its Prometheus backend, health checks and the context
// helpers that carry correlation ids.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every log line.
const ServiceName = "mewayz-billing"

// LogFormat is text for terminals, json for log shippers.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogLevel is the minimum level written. Unknown values mean info.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level          LogLevel
	Format         LogFormat
	Output         io.Writer // os.Stderr when nil
	AddSource      bool
	ServiceName    string
	ServiceVersion string
}

// DefaultLogConfig is the development setup: text on stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatText,
		Output:         os.Stderr,
		ServiceName:    ServiceName,
		ServiceVersion: "dev",
	}
}

// ProductionLogConfig writes JSON with source locations to stdout.
func ProductionLogConfig() LogConfig {
	return LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatJSON,
		Output:         os.Stdout,
		AddSource:      true,
		ServiceName:    ServiceName,
		ServiceVersion: "unknown",
	}
}

// LogConfigFor resolves APP_ENV, LOG_LEVEL, LOG_FORMAT and the build
// version. Empty values keep the environment's default.
func LogConfigFor(env, level, format, version string) LogConfig {
	cfg := DefaultLogConfig()
	if strings.EqualFold(env, "production") {
		cfg = ProductionLogConfig()
	}
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if format != "" {
		cfg.Format = LogFormat(strings.ToLower(format))
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// LoggerFromEnv is the bootstrap logger used before config.Load.
func LoggerFromEnv() *slog.Logger {
	return NewLogger(LogConfigFor(
		os.Getenv("APP_ENV"),
		os.Getenv("LOG_LEVEL"),
		os.Getenv("LOG_FORMAT"),
		os.Getenv("APP_VERSION"),
	))
}

// NewLogger builds a slog logger that stamps service and version on every
// record and copies correlation, request and user ids out of the context.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var base slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.Format == LogFormatJSON {
		base = slog.NewJSONHandler(out, opts)
	}

	var static []slog.Attr
	if cfg.ServiceName != "" {
		static = append(static, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		static = append(static, slog.String("version", cfg.ServiceVersion))
	}
	return slog.New(&contextHandler{next: base, static: static})
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler adds the static attrs and the request ids carried by ctx.
type contextHandler struct {
	next   slog.Handler
	static []slog.Attr
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.static...)
	for _, field := range [...]struct {
		key   string
		value string
	}{
		{CorrelationIDKey, CorrelationIDFromContext(ctx)},
		{RequestIDKey, RequestIDFromContext(ctx)},
		{UserIDKey, UserIDFromContext(ctx)},
	} {
		if field.value != "" {
			r.AddAttrs(slog.String(field.key, field.value))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs), static: h.static}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), static: h.static}
}
