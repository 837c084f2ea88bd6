// authenticationhandler/refresher.go

package authenticationhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/headers"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/status"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultTokenRefreshURL is the authorization server's refresh endpoint.
const DefaultTokenRefreshURL = "https://api.example.com/oauth/token"

// maxTokenResponseSize caps how much of a refresh response is read.
const maxTokenResponseSize = 1 << 20

// refreshRequest is the body sent to the refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HTTPRefresher performs the refresh exchange against an OAuth style token endpoint.
type HTTPRefresher struct {
	HTTPClient *http.Client    // HTTPClient sends the exchange. Its timeout applies on top of the coordinator's.
	URL        string          // URL of the refresh endpoint.
	Clock      clockwork.Clock // Clock resolves relative expiries such as expires_in.
	Logger     logger.Logger
}

// NewHTTPRefresher validates refreshURL and returns a refresher using httpClient.
func NewHTTPRefresher(httpClient *http.Client, refreshURL string, clock clockwork.Clock, log logger.Logger) (*HTTPRefresher, error) {
	if refreshURL == "" {
		refreshURL = DefaultTokenRefreshURL
	}
	if err := ValidateRefreshURL(refreshURL); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPRefresher{HTTPClient: httpClient, URL: refreshURL, Clock: clock, Logger: log}, nil
}

// ValidateRefreshURL checks that the refresh endpoint is an absolute http(s) URL.
func ValidateRefreshURL(refreshURL string) error {
	u, err := url.Parse(refreshURL)
	if err != nil {
		return fmt.Errorf("invalid token refresh URL %q: %w", refreshURL, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid token refresh URL %q: must be an absolute http or https URL", refreshURL)
	}
	return nil
}

// Refresh posts {"refresh_token": ...} and parses the new bundle.
// Non-2xx responses yield *apierrors.InvalidCredentialsError, failures to reach the server
// *apierrors.TransportError and unparsable 2xx bodies *apierrors.DecodingError.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Bundle, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return credentials.Bundle{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return credentials.Bundle{}, &apierrors.TransportError{Method: http.MethodPost, URL: r.URL, Err: err}
	}
	headerHandler := headers.NewHeaderHandler(req, r.Logger)
	headerHandler.SetStandardHeaders("")

	r.Logger.Debug("Attempting to refresh token", zap.String("URL", r.URL))

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		r.Logger.LogError("token_refresh_transport_error", http.MethodPost, r.URL, 0, "", err, "")
		return credentials.Bundle{}, &apierrors.TransportError{Method: http.MethodPost, URL: r.URL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return credentials.Bundle{}, &apierrors.TransportError{Method: http.MethodPost, URL: r.URL, Err: err}
	}

	if !status.IsSuccessStatusCode(resp.StatusCode) {
		message := response.ErrorMessage(resp.Header, respBody)
		r.Logger.Warn("Token refresh response status is not OK",
			zap.Int("StatusCode", resp.StatusCode),
			zap.Bool("Transient", status.IsTransientStatusCode(resp.StatusCode)),
		)
		return credentials.Bundle{}, &apierrors.InvalidCredentialsError{StatusCode: resp.StatusCode, Message: message}
	}

	bundle, err := ParseTokenResponse(respBody, r.Clock.Now())
	if err != nil {
		r.Logger.Warn("Failed to decode token response", zap.Error(err))
		return credentials.Bundle{}, err
	}
	return bundle, nil
}
