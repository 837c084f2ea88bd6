package authenticationhandler

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenCoordinator hands out valid bundles to any number of goroutines. At most one refresh
// exchange is in flight at a time; callers arriving while it runs wait for its result.
type TokenCoordinator struct {
	store          credentialstore.Store
	refresher      Refresher
	clock          clockwork.Clock
	log            logger.Logger
	refreshBuffer  time.Duration
	refreshTimeout time.Duration

	group    singleflight.Group
	attempts atomic.Int64 // exchanges started, for metrics and tests

	mu         sync.Mutex // protects the fields below
	current    *credentials.Bundle
	refreshing bool   // true while the flight under flightKey has not completed
	flightKey  string // singleflight key of the live flight
	flights    uint64 // flights started, used to derive unique keys
	generation uint64 // bumped by Clear and SetBundle so stale flight results are dropped
}

// NewTokenCoordinator builds a coordinator and loads the persisted bundle exactly once.
// A store that cannot be read is logged and treated as empty, so the caller can still log in.
func NewTokenCoordinator(ctx context.Context, cfg CoordinatorConfig) (*TokenCoordinator, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	c := &TokenCoordinator{
		store:          cfg.Store,
		refresher:      cfg.Refresher,
		clock:          cfg.Clock,
		log:            cfg.Logger,
		refreshBuffer:  cfg.TokenRefreshBufferPeriod,
		refreshTimeout: cfg.RefreshTimeout,
	}

	bundle, err := c.store.Load(ctx)
	switch {
	case err != nil:
		c.log.Warn("Failed to load stored credentials, starting without a bundle", zap.Error(err))
	case bundle == nil:
		c.log.Debug("No stored credentials found")
	default:
		c.current = bundle
		c.log.Debug("Loaded stored credentials", zap.Time("expires_at", bundle.ExpiresAt))
	}

	return c, nil
}

// ValidBundle returns a bundle that is not stale at the coordinator's clock, refreshing if needed.
// A caller arriving while a refresh is in flight always waits for that refresh.
func (c *TokenCoordinator) ValidBundle(ctx context.Context) (credentials.Bundle, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := c.joinLocked()
		c.mu.Unlock()
		return c.await(ctx, ch)
	}
	if c.current == nil {
		c.mu.Unlock()
		return credentials.Bundle{}, apierrors.ErrNoCredentials
	}
	if !c.current.ExpiresWithin(c.clock.Now(), c.refreshBuffer) {
		bundle := *c.current
		c.mu.Unlock()
		return bundle, nil
	}

	c.log.Debug("Access token is stale, refreshing", zap.Time("expires_at", c.current.ExpiresAt))
	ch := c.startLocked(ctx)
	c.mu.Unlock()
	return c.await(ctx, ch)
}

// ForceRefresh exchanges the current refresh token regardless of expiry, or joins the refresh
// already in flight.
func (c *TokenCoordinator) ForceRefresh(ctx context.Context) (credentials.Bundle, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := c.joinLocked()
		c.mu.Unlock()
		return c.await(ctx, ch)
	}
	if c.current == nil {
		c.mu.Unlock()
		return credentials.Bundle{}, apierrors.ErrNoCredentials
	}

	ch := c.startLocked(ctx)
	c.mu.Unlock()
	return c.await(ctx, ch)
}

// SetBundle installs a bundle obtained outside the coordinator, typically after a login.
// Results of a refresh still in flight are discarded.
func (c *TokenCoordinator) SetBundle(ctx context.Context, bundle credentials.Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.current = &bundle
	if err := c.store.Save(ctx, bundle); err != nil {
		return &apierrors.StoreError{Op: "save", Err: err}
	}
	return nil
}

// Clear drops the bundle from memory and from the store. Calling it again is a no-op.
func (c *TokenCoordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	c.generation++
	if err := c.store.Delete(ctx); err != nil {
		return &apierrors.StoreError{Op: "delete", Err: err}
	}
	c.log.Info("Cleared stored credentials")
	return nil
}

// Current returns the in-memory bundle without refreshing it.
func (c *TokenCoordinator) Current() (credentials.Bundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return credentials.Bundle{}, false
	}
	return *c.current, true
}

// RefreshAttempts returns the number of exchanges started since construction.
func (c *TokenCoordinator) RefreshAttempts() int64 {
	return c.attempts.Load()
}

// startLocked registers a new flight. c.mu must be held and c.current must be set.
func (c *TokenCoordinator) startLocked(ctx context.Context) <-chan singleflight.Result {
	c.refreshing = true
	c.flights++
	c.flightKey = strconv.FormatUint(c.flights, 10)
	c.attempts.Add(1)

	fn := c.refreshFunc(context.WithoutCancel(ctx), c.current.RefreshToken, c.generation)
	return c.group.DoChan(c.flightKey, fn)
}

// joinLocked attaches to the live flight. c.mu must be held and c.refreshing must be true,
// which guarantees the flight has not returned and its key is still registered.
func (c *TokenCoordinator) joinLocked() <-chan singleflight.Result {
	return c.group.DoChan(c.flightKey, func() (any, error) {
		return credentials.Bundle{}, apierrors.ErrNoCredentials
	})
}

// refreshFunc performs one exchange on a context detached from the initiating caller.
func (c *TokenCoordinator) refreshFunc(ctx context.Context, refreshToken string, generation uint64) func() (any, error) {
	return func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()

		start := c.clock.Now()
		bundle, err := c.refresher.Refresh(ctx, refreshToken)
		elapsed := c.clock.Since(start)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.refreshing = false

		if err != nil {
			c.log.LogTokenRefresh("token_refresh", time.Time{}, elapsed, err)
			return credentials.Bundle{}, err
		}
		if generation != c.generation {
			c.log.Info("Discarding refreshed credentials, bundle was replaced or cleared during the exchange")
			if c.current != nil {
				return *c.current, nil
			}
			return credentials.Bundle{}, apierrors.ErrNoCredentials
		}

		if bundle.RefreshToken == "" {
			bundle.RefreshToken = refreshToken
		}
		bundle = credentials.NewBundle(bundle.AccessToken, bundle.RefreshToken, bundle.ExpiresAt)
		c.current = &bundle
		c.log.LogTokenRefresh("token_refresh", bundle.ExpiresAt, elapsed, nil)

		if err := c.store.Save(ctx, bundle); err != nil {
			c.log.Warn("Refreshed credentials could not be persisted", zap.Error(err))
			return bundle, &apierrors.StoreError{Op: "save", Err: err}
		}
		return bundle, nil
	}
}

// await blocks until the flight delivers or ctx is done. Leaving early does not cancel the flight.
func (c *TokenCoordinator) await(ctx context.Context, ch <-chan singleflight.Result) (credentials.Bundle, error) {
	select {
	case <-ctx.Done():
		return credentials.Bundle{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.log.Debug("Token refresh result shared with concurrent callers")
		}
		if res.Err != nil {
			return credentials.Bundle{}, res.Err
		}
		return res.Val.(credentials.Bundle), nil
	}
}
