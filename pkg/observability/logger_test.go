package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(t *testing.T, level LogLevel) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewLogger(LogConfig{
		Level:          level,
		Format:         LogFormatJSON,
		Output:         &buf,
		ServiceName:    ServiceName,
		ServiceVersion: "1.4.0",
	}), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNewLogger_JSONCarriesServiceAndRequestIDs(t *testing.T) {
	logger, buf := jsonLogger(t, LogLevelInfo)

	ctx := NewRequestContext(context.Background(), "corr-webhook-1")
	ctx = WithUserID(ctx, "user-7")
	logger.InfoContext(ctx, "subscription status changed", "from", "pending", "to", "active")

	entry := lastEntry(t, buf)
	assert.Equal(t, "subscription status changed", entry["msg"])
	assert.Equal(t, "active", entry["to"])
	assert.Equal(t, "mewayz-billing", entry["service"])
	assert.Equal(t, "1.4.0", entry["version"])
	assert.Equal(t, "corr-webhook-1", entry[CorrelationIDKey])
	assert.Equal(t, "user-7", entry[UserIDKey])
	assert.NotEmpty(t, entry[RequestIDKey])
}

func TestNewLogger_BackgroundContextHasNoRequestAttrs(t *testing.T) {
	logger, buf := jsonLogger(t, LogLevelInfo)

	logger.Info("outbox relay started")

	entry := lastEntry(t, buf)
	assert.NotContains(t, entry, CorrelationIDKey)
	assert.NotContains(t, entry, RequestIDKey)
	assert.NotContains(t, entry, UserIDKey)
}

func TestNewLogger_AttrsSurviveWith(t *testing.T) {
	logger, buf := jsonLogger(t, LogLevelInfo)

	logger.With("component", "outbox").
		InfoContext(WithCorrelationID(context.Background(), "corr-9"), "published", "routing_key", "billing.subscription.canceled")

	entry := lastEntry(t, buf)
	assert.Equal(t, "outbox", entry["component"])
	assert.Equal(t, "billing.subscription.canceled", entry["routing_key"])
	assert.Equal(t, "mewayz-billing", entry["service"])
	assert.Equal(t, "corr-9", entry[CorrelationIDKey])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

	logger.Info("authorize", "service", "crm", "allowed", true)

	assert.Contains(t, buf.String(), "service=crm")
	assert.Contains(t, buf.String(), "allowed=true")
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   LogLevel
		emitted []string
		dropped []string
	}{
		{LogLevelDebug, []string{"bind", "quote", "retry", "dead"}, nil},
		{LogLevelInfo, []string{"quote", "retry", "dead"}, []string{"bind"}},
		{LogLevelWarn, []string{"retry", "dead"}, []string{"bind", "quote"}},
		{LogLevelError, []string{"dead"}, []string{"bind", "quote", "retry"}},
		{"verbose", []string{"quote"}, []string{"bind"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(LogConfig{Level: tt.level, Format: LogFormatText, Output: &buf})

			logger.Debug("bind")
			logger.Info("quote")
			logger.Warn("retry")
			logger.Error("dead")

			for _, msg := range tt.emitted {
				assert.Contains(t, buf.String(), "msg="+msg)
			}
			for _, msg := range tt.dropped {
				assert.NotContains(t, buf.String(), "msg="+msg)
			}
		})
	}
}

func TestLogConfigFor(t *testing.T) {
	tests := []struct {
		name                        string
		env, level, format, version string
		want                        LogConfig
	}{
		{
			name: "development defaults",
			want: LogConfig{Level: LogLevelInfo, Format: LogFormatText, ServiceVersion: "dev"},
		},
		{
			name: "production is json with source",
			env:  "Production", level: "DEBUG", version: "1.2.3",
			want: LogConfig{Level: LogLevelDebug, Format: LogFormatJSON, AddSource: true, ServiceVersion: "1.2.3"},
		},
		{
			name: "format override outside production",
			env:  "development", format: "JSON",
			want: LogConfig{Level: LogLevelInfo, Format: LogFormatJSON, ServiceVersion: "dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LogConfigFor(tt.env, tt.level, tt.format, tt.version)
			assert.Equal(t, tt.want.Level, cfg.Level)
			assert.Equal(t, tt.want.Format, cfg.Format)
			assert.Equal(t, tt.want.AddSource, cfg.AddSource)
			assert.Equal(t, tt.want.ServiceVersion, cfg.ServiceVersion)
			assert.Equal(t, ServiceName, cfg.ServiceName)
		})
	}
}

func TestLoggerFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("APP_VERSION", "")

	logger := LoggerFromEnv()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestRequestContext(t *testing.T) {
	t.Run("keeps the caller's correlation id", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "corr-from-gateway")
		assert.Equal(t, "corr-from-gateway", CorrelationIDFromContext(ctx))
		assert.NotEmpty(t, RequestIDFromContext(ctx))
	})

	t.Run("mints ids when the caller sent none", func(t *testing.T) {
		first := NewRequestContext(context.Background(), "")
		second := NewRequestContext(context.Background(), "")
		assert.NotEmpty(t, CorrelationIDFromContext(first))
		assert.NotEqual(t, CorrelationIDFromContext(first), CorrelationIDFromContext(second))
		assert.NotEqual(t, RequestIDFromContext(first), RequestIDFromContext(second))
	})

	t.Run("empty and nil contexts", func(t *testing.T) {
		assert.Empty(t, UserIDFromContext(context.Background()))
		//nolint:staticcheck // nil context is tolerated by the accessors
		assert.Empty(t, CorrelationIDFromContext(nil))
	})
}
