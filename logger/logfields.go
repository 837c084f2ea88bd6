// logfields.go
package logger

import (
	"time"

	"go.uber.org/zap"
)

// LogRequestStart logs the initiation of an HTTP request, including the HTTP method, URL, and whether
// an Authorization header was attached.
// This function is intended to be called at the beginning of an HTTP request lifecycle.
func (d *defaultLogger) LogRequestStart(event string, requestID string, method string, url string, authenticated bool) {
	if d.logLevel <= LogLevelDebug {
		fields := []zap.Field{
			zap.String("event", event),
			zap.String(RequestIDKey, requestID),
			zap.String("method", method),
			zap.String("url", url),
			zap.Bool("authenticated", authenticated),
		}
		d.logger.Debug("HTTP request started", fields...)
	}
}

// LogRequestEnd logs the completion of an HTTP request, including the HTTP method, URL, status code, and duration.
// This function is intended to be called at the end of an HTTP request lifecycle.
func (d *defaultLogger) LogRequestEnd(event string, requestID string, method string, url string, statusCode int, duration time.Duration) {
	if d.logLevel <= LogLevelInfo {
		fields := []zap.Field{
			zap.String("event", event),
			zap.String(RequestIDKey, requestID),
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		}
		d.logger.Info("HTTP request completed", fields...)
	}
}

// LogError logs an error that occurs during the processing of an HTTP request, including the HTTP method,
// URL, status code, the server's status message and the raw response body.
func (d *defaultLogger) LogError(event string, method string, url string, statusCode int, serverStatusMessage string, err error, rawResponse string) {
	if d.logLevel <= LogLevelError {
		errorMessage := ""
		if err != nil {
			errorMessage = err.Error()
		}
		fields := []zap.Field{
			zap.String("event", event),
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.String("status_message", serverStatusMessage),
			zap.String("error_message", errorMessage),
			zap.String("raw_response", rawResponse),
		}
		d.logger.Error("Error during HTTP request", fields...)
	}
}

// LogRetryAttempt logs a retry attempt for an HTTP request, including the HTTP method, URL, attempt number, and reason for the retry.
func (d *defaultLogger) LogRetryAttempt(event string, method string, url string, attempt int, reason string, err error) {
	if d.logLevel <= LogLevelWarn {
		fields := []zap.Field{
			zap.String("event", event),
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		d.logger.Warn("HTTP request retry", fields...)
	}
}

// LogTokenRefresh logs the outcome of a refresh exchange. Failures are logged at warn level since the
// stale bundle is retained and the caller decides what to do next.
func (d *defaultLogger) LogTokenRefresh(event string, expiresAt time.Time, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.Duration("duration", duration),
	}
	if err != nil {
		if d.logLevel <= LogLevelWarn {
			d.logger.Warn("Token refresh failed", append(fields, zap.Error(err))...)
		}
		return
	}
	if d.logLevel <= LogLevelInfo {
		d.logger.Info("Token refreshed", append(fields, zap.Time("expires_at", expiresAt))...)
	}
}
