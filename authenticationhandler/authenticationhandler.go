// authenticationhandler/authenticationhandler.go
/* Package authenticationhandler owns the credential lifecycle: it decides when the access token
is stale, exchanges the refresh token with the authorization server and guarantees that
concurrent callers share a single exchange. */
package authenticationhandler

import (
	"context"
	"errors"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultRefreshTimeout bounds one refresh exchange, independent of any caller's context.
	DefaultRefreshTimeout = 30 * time.Second
	// DefaultRefreshRetryPeriod is how long RefreshLoop waits after a failed attempt.
	DefaultRefreshRetryPeriod = 1 * time.Minute
)

// Refresher exchanges a refresh token for a new bundle. A returned bundle with an empty
// RefreshToken means the authorization server did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.Bundle, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (credentials.Bundle, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (credentials.Bundle, error) {
	return f(ctx, refreshToken)
}

// CoordinatorConfig holds the collaborators and tuning of a TokenCoordinator.
type CoordinatorConfig struct {
	Store                    credentialstore.Store // Store persists the bundle. Required.
	Refresher                Refresher             // Refresher performs the exchange. Required.
	Clock                    clockwork.Clock       // Clock drives expiry decisions. Defaults to the real clock.
	Logger                   logger.Logger         // Logger defaults to a no-op logger.
	TokenRefreshBufferPeriod time.Duration         // Bundles expiring within this period are treated as stale.
	RefreshTimeout           time.Duration         // Upper bound for one exchange. Defaults to DefaultRefreshTimeout.
}

var (
	errMissingStore     = errors.New("token coordinator requires a credential store")
	errMissingRefresher = errors.New("token coordinator requires a refresher")
)

func (c *CoordinatorConfig) setDefaults() error {
	if c.Store == nil {
		return errMissingStore
	}
	if c.Refresher == nil {
		return errMissingRefresher
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.TokenRefreshBufferPeriod < 0 {
		c.TokenRefreshBufferPeriod = 0
	}
	return nil
}
