// credentials/codec.go
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingAccessToken  = errors.New("credential bundle does not contain an access token")
	ErrMissingRefreshToken = errors.New("credential bundle does not contain a refresh token")
	ErrMissingExpiry       = errors.New("credential bundle does not contain an expiry")
)

// storedBundle is the on-store representation. Timestamps are kept as RFC3339Nano
// strings so a save/load round trip preserves the instant exactly.
type storedBundle struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// Encode serialises a bundle for a credential store.
func Encode(b Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(storedBundle{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		ExpiresAt:    b.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// Decode parses a payload previously produced by Encode.
func Decode(payload []byte) (Bundle, error) {
	var sb storedBundle
	if err := json.Unmarshal(payload, &sb); err != nil {
		return Bundle{}, fmt.Errorf("could not unmarshal credential bundle: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, sb.ExpiresAt)
	if err != nil {
		return Bundle{}, fmt.Errorf("invalid credential bundle expiry %q: %w", sb.ExpiresAt, err)
	}

	b := NewBundle(sb.AccessToken, sb.RefreshToken, expiresAt)
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}
