package authenticationhandler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RefreshLoop refreshes the bundle ahead of expiry until ctx is done. The exchange goes through
// the same single flight as on-demand refreshes, so a loop and concurrent callers never
// duplicate work. lead is how long before expiry to refresh; failed attempts and an empty
// coordinator are retried after retryPeriod.
func (c *TokenCoordinator) RefreshLoop(ctx context.Context, lead, retryPeriod time.Duration) {
	if retryPeriod <= 0 {
		retryPeriod = DefaultRefreshRetryPeriod
	}

	timer := c.clock.NewTimer(c.nextRefreshIn(lead, retryPeriod, time.Nanosecond))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Refresh loop shutting down")
			return
		case <-timer.Chan():
			period := c.refreshTick(ctx, lead, retryPeriod)
			timer.Reset(period)
			c.log.Debug("Next background refresh scheduled", zap.Duration("in", period))
		}
	}
}

// refreshTick performs one loop iteration and returns the delay until the next one.
func (c *TokenCoordinator) refreshTick(ctx context.Context, lead, retryPeriod time.Duration) time.Duration {
	c.mu.Lock()
	switch {
	case c.current == nil && !c.refreshing:
		c.mu.Unlock()
		return retryPeriod
	case c.refreshing:
		ch := c.joinLocked()
		c.mu.Unlock()
		if _, err := c.await(ctx, ch); err != nil {
			return retryPeriod
		}
		return c.nextRefreshIn(lead, retryPeriod, retryPeriod)
	case !c.current.ExpiresWithin(c.clock.Now(), lead):
		// Fresh enough, typically because a caller refreshed on demand.
		c.mu.Unlock()
		return c.nextRefreshIn(lead, retryPeriod, time.Nanosecond)
	}

	ch := c.startLocked(ctx)
	c.mu.Unlock()
	if _, err := c.await(ctx, ch); err != nil {
		c.log.Warn("Background token refresh failed", zap.Error(err))
		return retryPeriod
	}
	// A lead longer than the token lifetime must not turn into a tight loop.
	return c.nextRefreshIn(lead, retryPeriod, retryPeriod)
}

// nextRefreshIn returns the delay until the current bundle enters its lead window, never less than floor.
func (c *TokenCoordinator) nextRefreshIn(lead, retryPeriod, floor time.Duration) time.Duration {
	bundle, ok := c.Current()
	if !ok {
		return retryPeriod
	}
	d := bundle.TimeUntilExpiry(c.clock.Now()) - lead
	if d < floor {
		d = floor
	}
	return d
}
