// logger_test.go
package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level LogLevel, hide bool) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	wrapped := &customCore{Core: core, hideSensitiveData: hide}
	return NewLogger(zap.New(wrapped), level), logs
}

func TestParseLogLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"LogLevelDebug", LogLevelDebug},
		{"debug", LogLevelDebug},
		{"LogLevelInfo", LogLevelInfo},
		{"warning", LogLevelWarn},
		{"LogLevelError", LogLevelError},
		{"LogLevelFatal", LogLevelFatal},
		{"nonsense", LogLevelNone},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevelFromString(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, logs := newObservedLogger(LogLevelWarn, false)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	err := log.Error("failure")

	require.Error(t, err)
	assert.Equal(t, "failure", err.Error())
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestSetLevel(t *testing.T) {
	log, logs := newObservedLogger(LogLevelError, false)
	log.Info("dropped")
	log.SetLevel(LogLevelDebug)
	log.Info("kept")

	assert.Equal(t, LogLevelDebug, log.GetLogLevel())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestCustomCoreRedactsTokenFields(t *testing.T) {
	log, logs := newObservedLogger(LogLevelDebug, true)

	log.Info("stored", zap.String("access_token", "a-1"), zap.String("refresh_token", "r-1"), zap.String("user", "bob"))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "REDACTED", ctx["access_token"])
	assert.Equal(t, "REDACTED", ctx["refresh_token"])
	assert.Equal(t, "bob", ctx["user"])
}

func TestCustomCoreKeepsTokensWhenNotHiding(t *testing.T) {
	log, logs := newObservedLogger(LogLevelDebug, false)
	log.Info("stored", zap.String("access_token", "a-1"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "a-1", logs.All()[0].ContextMap()["access_token"])
}

func TestCustomCoreMovesRequestIDFirst(t *testing.T) {
	log, logs := newObservedLogger(LogLevelDebug, false)

	log.LogRequestEnd("request_end", "req-42", "GET", "https://example.com/users", 200, 15*time.Millisecond)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].Context
	require.NotEmpty(t, fields)
	assert.Equal(t, RequestIDKey, fields[0].Key)
	assert.Equal(t, "req-42", fields[0].String)
}

func TestLogTokenRefresh(t *testing.T) {
	log, logs := newObservedLogger(LogLevelInfo, false)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	log.LogTokenRefresh("token_refresh", expires, time.Second, nil)
	log.LogTokenRefresh("token_refresh", time.Time{}, time.Second, errors.New("rejected"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, expires, entries[0].ContextMap()["expires_at"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "rejected", entries[1].ContextMap()["error"])
}

func TestLogRequestStartIsDebugOnly(t *testing.T) {
	log, logs := newObservedLogger(LogLevelInfo, false)
	log.LogRequestStart("request_start", "req-1", "GET", "/users", true)
	assert.Equal(t, 0, logs.Len())

	log.SetLevel(LogLevelDebug)
	log.LogRequestStart("request_start", "req-1", "GET", "/users", true)
	assert.Equal(t, 1, logs.Len())
}

func TestWithKeepsLevel(t *testing.T) {
	log, logs := newObservedLogger(LogLevelWarn, false)
	child := log.With(zap.String("component", "coordinator"))

	child.Info("dropped")
	child.Warn("kept")

	assert.Equal(t, LogLevelWarn, child.GetLogLevel())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "coordinator", logs.All()[0].ContextMap()["component"])
}

func TestBuildLoggerDefaultsToJSON(t *testing.T) {
	log := BuildLogger(LogLevelInfo, "unknown", "", true)
	require.NotNil(t, log)
	assert.Equal(t, LogLevelInfo, log.GetLogLevel())
}

func TestConvertToZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, convertToZapLevel(LogLevelDebug))
	assert.Equal(t, zapcore.ErrorLevel, convertToZapLevel(LogLevelError))
	assert.Equal(t, zapcore.InfoLevel, convertToZapLevel(LogLevelNone))
}
