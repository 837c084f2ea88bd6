package authenticationhandler

import (
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

var (
	errInvalidTokenJSON   = errors.New("token response is not valid JSON")
	errMissingAccessToken = errors.New("token response does not contain an access token")
	errMissingExpiry      = errors.New("token response does not contain an expiry and the access token carries no exp claim")
)

// ParseTokenResponse reads a refresh response. Both camelCase and OAuth snake_case fields are
// accepted. The expiry is taken, in order, from expiresAt/expires_at (RFC 3339 string or unix
// seconds), expiresIn/expires_in (seconds from now) or the exp claim of a JWT access token.
// The refresh token may be absent, in which case the returned bundle has none.
// Every failure is an *apierrors.DecodingError.
func ParseTokenResponse(body []byte, now time.Time) (credentials.Bundle, error) {
	if !gjson.ValidBytes(body) {
		return credentials.Bundle{}, &apierrors.DecodingError{Err: errInvalidTokenJSON}
	}
	result := gjson.ParseBytes(body)

	accessToken := firstString(result, "accessToken", "access_token")
	if accessToken == "" {
		return credentials.Bundle{}, &apierrors.DecodingError{Err: errMissingAccessToken}
	}
	refreshToken := firstString(result, "refreshToken", "refresh_token")

	expiresAt, err := tokenExpiry(result, accessToken, now)
	if err != nil {
		return credentials.Bundle{}, &apierrors.DecodingError{Err: err}
	}

	return credentials.NewBundle(accessToken, refreshToken, expiresAt), nil
}

func firstString(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := result.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func tokenExpiry(result gjson.Result, accessToken string, now time.Time) (time.Time, error) {
	for _, path := range []string{"expiresAt", "expires_at"} {
		v := result.Get(path)
		switch v.Type {
		case gjson.String:
			t, err := time.Parse(time.RFC3339Nano, v.Str)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid %s %q: %w", path, v.Str, err)
			}
			return t, nil
		case gjson.Number:
			return time.Unix(v.Int(), 0), nil
		}
	}

	for _, path := range []string{"expiresIn", "expires_in"} {
		if v := result.Get(path); v.Type == gjson.Number {
			return now.Add(time.Duration(v.Float() * float64(time.Second))), nil
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time, nil
		}
	}
	return time.Time{}, errMissingExpiry
}
