package logger

import (
	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the field name used to correlate every log line of one pipeline call.
const RequestIDKey = "request_id"

type customCore struct {
	zapcore.Core
	hideSensitiveData bool
}

// With adds structured context to the Core, redacting it first when required.
func (c *customCore) With(fields []zapcore.Field) zapcore.Core {
	return &customCore{Core: c.Core.With(c.sanitize(fields)), hideSensitiveData: c.hideSensitiveData}
}

// Write moves the request id to the front and redacts token-bearing string fields before serialising.
func (c *customCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	fields = c.sanitize(fields)

	ordered := make([]zapcore.Field, 0, len(fields))
	var rest []zapcore.Field
	for _, field := range fields {
		if field.Key == RequestIDKey {
			ordered = append(ordered, field)
		} else {
			rest = append(rest, field)
		}
	}
	ordered = append(ordered, rest...)

	return c.Core.Write(entry, ordered)
}

// Check must route through the wrapper, otherwise Write on customCore is bypassed.
func (c *customCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, c)
	}
	return checkedEntry
}

// Sync flushes buffered logs (if any).
func (c *customCore) Sync() error {
	return c.Core.Sync()
}

func (c *customCore) sanitize(fields []zapcore.Field) []zapcore.Field {
	if !c.hideSensitiveData {
		return fields
	}
	sanitized := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		if field.Type == zapcore.StringType && redact.IsSensitiveKey(field.Key) {
			sanitized[i] = zap.String(field.Key, redact.RedactSensitiveHeaderData(true, field.Key, field.String))
			continue
		}
		sanitized[i] = field
	}
	return sanitized
}
