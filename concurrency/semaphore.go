// concurrency/semaphore.go
/* package provides utilities to manage concurrency control. The handler
ensures no more than a certain number of concurrent requests are sent at the
same time. This is managed using a semaphore */
package concurrency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDFromContext returns the id stored by AcquireConcurrencyToken, if any.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey{}).(uuid.UUID)
	return id, ok
}

// AcquireConcurrencyToken acquires a slot within the configured limit. When ctx already carries a
// request id (a replay of the same call) that id is reused, otherwise a new one is generated.
// The returned context carries the id. The wait is bounded by the acquire timeout and by ctx.
//
// Example:
// ctx, requestID, err := concurrencyHandler.AcquireConcurrencyToken(ctx)
//
//	if err != nil {
//	    // Handle token acquisition failure
//	}
//
// defer concurrencyHandler.ReleaseConcurrencyToken(requestID)
func (ch *ConcurrencyHandler) AcquireConcurrencyToken(ctx context.Context) (context.Context, uuid.UUID, error) {
	tokenAcquisitionStart := time.Now()

	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.New()
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, ch.acquireTimeout)
	defer cancel()

	select {
	case ch.sem <- struct{}{}:
		tokenAcquisitionDuration := time.Since(tokenAcquisitionStart)
		ch.Metrics.lock.Lock()
		ch.Metrics.PermitWaitTime += tokenAcquisitionDuration
		ch.Metrics.TotalRequests++
		ch.Metrics.lock.Unlock()

		utilizedTokens := len(ch.sem)
		ch.logger.Debug("Acquired concurrency token",
			zap.String("request_id", requestID.String()),
			zap.Duration("AcquisitionTime", tokenAcquisitionDuration),
			zap.Int("UtilizedTokens", utilizedTokens),
			zap.Int("AvailableTokens", cap(ch.sem)-utilizedTokens),
		)

		return context.WithValue(ctx, RequestIDKey{}, requestID), requestID, nil

	case <-ctxWithTimeout.Done():
		ch.logger.Warn("Failed to acquire concurrency token", zap.String("request_id", requestID.String()), zap.Error(ctxWithTimeout.Err()))
		if err := ctx.Err(); err != nil {
			return ctx, requestID, err
		}
		return ctx, requestID, ctxWithTimeout.Err()
	}
}

// ReleaseConcurrencyToken returns a token back to the semaphore pool, allowing other
// operations to proceed.
func (ch *ConcurrencyHandler) ReleaseConcurrencyToken(requestID uuid.UUID) {
	<-ch.sem

	utilizedTokens := len(ch.sem)
	ch.logger.Debug("Released concurrency token",
		zap.String("request_id", requestID.String()),
		zap.Int("UtilizedTokens", utilizedTokens),
		zap.Int("AvailableTokens", cap(ch.sem)-utilizedTokens),
	)
}
