// credentials/bundle.go
/* Package credentials defines the access/refresh credential pair handed out by the
token coordinator and persisted by the credential stores. A Bundle is a plain value:
it is never mutated after construction and a refresh always produces a new one. */
package credentials

import (
	"time"
)

// Bundle holds one access/refresh token pair and the instant the access token stops being valid.
type Bundle struct {
	AccessToken  string    `json:"accessToken"`  // AccessToken is sent as the bearer credential on authenticated requests.
	RefreshToken string    `json:"refreshToken"` // RefreshToken is exchanged with the authorization server for a new bundle.
	ExpiresAt    time.Time `json:"expiresAt"`    // ExpiresAt is the absolute expiry of AccessToken.
}

// NewBundle builds a Bundle, normalising the expiry to UTC.
func NewBundle(accessToken, refreshToken string, expiresAt time.Time) Bundle {
	return Bundle{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC(),
	}
}

// IsExpired reports whether the access token is no longer usable at now (now >= ExpiresAt).
func (b Bundle) IsExpired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// ExpiresWithin reports whether the bundle is expired at now or will expire within the buffer period.
// A zero buffer is equivalent to IsExpired.
func (b Bundle) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	if buffer <= 0 {
		return b.IsExpired(now)
	}
	return !now.Before(b.ExpiresAt.Add(-buffer))
}

// TimeUntilExpiry returns how long the access token remains valid relative to now. Negative once expired.
func (b Bundle) TimeUntilExpiry(now time.Time) time.Duration {
	return b.ExpiresAt.Sub(now)
}

// Equal reports whether two bundles carry the same tokens and the same expiry instant.
func (b Bundle) Equal(other Bundle) bool {
	return b.AccessToken == other.AccessToken &&
		b.RefreshToken == other.RefreshToken &&
		b.ExpiresAt.Equal(other.ExpiresAt)
}

// Validate checks that every field required for use and refresh is present.
func (b Bundle) Validate() error {
	switch {
	case b.AccessToken == "":
		return ErrMissingAccessToken
	case b.RefreshToken == "":
		return ErrMissingRefreshToken
	case b.ExpiresAt.IsZero():
		return ErrMissingExpiry
	}
	return nil
}
