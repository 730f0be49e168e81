package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observe swaps the global logger for an in-memory one for the test.
func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	original := log
	log = zap.New(core)
	t.Cleanup(func() { log = original })
	return logs
}

func TestInit(t *testing.T) {
	original := log
	t.Cleanup(func() { log = original })

	for _, env := range []string{"production", "development", ""} {
		Init(env)
		assert.NotNil(t, log, env)
	}

	t.Setenv("LOG_LEVEL", "warn")
	Init("production")
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewConfig(t *testing.T) {
	prod := newConfig("production")
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, "timestamp", prod.EncoderConfig.TimeKey)
	assert.Equal(t, "message", prod.EncoderConfig.MessageKey)

	assert.Equal(t, "console", newConfig("staging").Encoding)
}

func TestL_LazyInit(t *testing.T) {
	original := log
	t.Cleanup(func() { log = original })

	log = nil
	t.Setenv("APP_ENV", "test")
	assert.NotNil(t, L())
	assert.NotPanics(t, Sync)
}

func TestFromCtx(t *testing.T) {
	logs := observe(t)

	FromCtx(WithRequestID(context.Background(), "req-abc")).Info("with id")
	FromCtx(context.Background()).Info("without id")

	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-abc", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestWithFields(t *testing.T) {
	logs := observe(t)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithFields(ctx, zap.String("store_id", "store-1"))
	child := WithFields(ctx, zap.String("order_reference", "ORD-1001-0042"))

	FromCtx(child).Info("checkout step")
	FromCtx(ctx).Info("parent unaffected")

	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "store-1", fields["store_id"])
	assert.Equal(t, "ORD-1001-0042", fields["order_reference"])
	assert.NotContains(t, entries[1].ContextMap(), "order_reference")
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkout", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payplus/s-1", nil)
	req.Header.Set("X-Request-ID", "gateway-trace-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "gateway-trace-1", seen)
	assert.Equal(t, "gateway-trace-1", w.Header().Get("X-Request-ID"))
}

func TestLoggingMiddleware(t *testing.T) {
	cases := []struct {
		status int
		level  zapcore.Level
		msg    string
	}{
		{http.StatusOK, zapcore.InfoLevel, "incoming request"},
		{http.StatusNotFound, zapcore.InfoLevel, "incoming request"},
		{http.StatusBadGateway, zapcore.ErrorLevel, "request failed"},
	}

	for _, tc := range cases {
		logs := observe(t)
		handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkout", nil))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, tc.level, entries[0].Level)
		assert.Equal(t, tc.msg, entries[0].Message)
		assert.Equal(t, "/checkout", entries[0].ContextMap()["path"])
		assert.Equal(t, int64(tc.status), entries[0].ContextMap()["status"])
	}
}
