// httpclient/request.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/headers"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/status"
	"go.uber.org/zap"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Endpoint describes one api operation.
type Endpoint struct {
	Path                   string // Path relative to the base URL, e.g. /posts/1/comments
	Method                 string // HTTP method, GET when empty
	RequiresAuthentication bool   // Only these endpoints consult the token coordinator
}

// APIRequest pairs an endpoint with the shape its response decodes into.
type APIRequest[T any] struct {
	Endpoint Endpoint
	Query    url.Values        // Optional query string
	Body     any               // Optional payload, sent as JSON
	Headers  map[string]string // Optional per-request headers, applied after the standard ones
}

// Send dispatches request and decodes a 2xx response into T.
//
// For endpoints requiring authentication a valid bundle is obtained from the coordinator first;
// credential failures are returned without dispatching. A 401 triggers one forced refresh and a
// single replay. A second 401 yields apierrors.ErrUnauthorized. Any other non-2xx status yields
// *apierrors.ServerError, failures to reach the server *apierrors.TransportError and bodies that
// do not match T *apierrors.DecodingError.
func Send[T any](ctx context.Context, client *Client, request APIRequest[T]) (T, error) {
	return send(ctx, client, request, true)
}

func send[T any](ctx context.Context, c *Client, request APIRequest[T], allowRetry bool) (T, error) {
	var result T
	endpoint := request.Endpoint
	method := endpoint.Method
	if method == "" {
		method = http.MethodGet
	}
	requestURL := c.buildURL(endpoint.Path)

	var accessToken string
	if endpoint.RequiresAuthentication {
		bundle, err := c.Coordinator.ValidBundle(ctx)
		if err != nil {
			c.Concurrency.Metrics.RecordError()
			c.Logger.Warn("No usable credentials for request",
				zap.String("method", method),
				zap.String("url", requestURL),
				zap.Error(err),
			)
			return result, err
		}
		accessToken = bundle.AccessToken
	}

	ctx, resp, body, err := c.dispatch(ctx, method, requestURL, request.Query, request.Body, request.Headers, accessToken)
	if err != nil {
		c.Concurrency.Metrics.RecordError()
		return result, err
	}

	switch {
	case status.IsUnauthorized(resp.StatusCode) && endpoint.RequiresAuthentication:
		if !allowRetry {
			c.Concurrency.Metrics.RecordError()
			c.Logger.LogError("unauthorized_after_refresh", method, requestURL, resp.StatusCode, resp.Status, apierrors.ErrUnauthorized, "")
			return result, apierrors.ErrUnauthorized
		}

		c.Logger.LogRetryAttempt("unauthorized_refresh_and_retry", method, requestURL, 1, "401 Unauthorized", nil)
		c.Concurrency.Metrics.RecordRefresh()
		if _, err := c.Coordinator.ForceRefresh(ctx); err != nil {
			c.Concurrency.Metrics.RecordError()
			return result, err
		}
		c.Concurrency.Metrics.RecordRetry()
		return send(ctx, c, request, false)

	case !status.IsSuccessStatusCode(resp.StatusCode):
		c.Concurrency.Metrics.RecordError()
		serverErr := response.ParseErrorResponse(method, requestURL, resp.StatusCode, resp.Header, body)
		c.Logger.LogError("api_error_response", method, requestURL, resp.StatusCode, serverErr.Message, serverErr, serverErr.RawResponse)
		return result, serverErr
	}

	result, err = response.Decode[T](resp.Header.Get("Content-Type"), body)
	if err != nil {
		c.Concurrency.Metrics.RecordError()
		c.Logger.Warn("Failed to decode response",
			zap.String("method", method),
			zap.String("url", requestURL),
			zap.Error(err),
		)
		return result, err
	}
	return result, nil
}

// dispatch sends one request while holding a concurrency permit and returns the response with
// its body fully read. The returned context carries the request id, so a replay of the same call
// keeps it.
func (c *Client) dispatch(ctx context.Context, method, requestURL string, query url.Values, payload any, customHeaders map[string]string, accessToken string) (context.Context, *http.Response, []byte, error) {
	ctx, requestID, err := c.Concurrency.AcquireConcurrencyToken(ctx)
	if err != nil {
		return ctx, nil, nil, &apierrors.TransportError{Method: method, URL: requestURL, Err: fmt.Errorf("acquiring concurrency permit: %w", err)}
	}
	defer c.Concurrency.ReleaseConcurrencyToken(requestID)

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return ctx, nil, nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return ctx, nil, nil, fmt.Errorf("invalid request URL %s: %w", requestURL, err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	headerHandler := headers.NewHeaderHandler(req, c.Logger)
	headerHandler.SetStandardHeaders(requestID.String())
	headerHandler.SetCustomHeaders(customHeaders)
	if accessToken != "" {
		headerHandler.SetAuthorization(accessToken)
	}
	headerHandler.LogHeaders(c.config.HideSensitiveData)

	c.Logger.LogRequestStart("request_start", requestID.String(), method, requestURL, accessToken != "")
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.Logger.LogError("request_transport_error", method, requestURL, 0, "", err, "")
		return ctx, nil, nil, &apierrors.TransportError{Method: method, URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return ctx, nil, nil, &apierrors.TransportError{Method: method, URL: requestURL, Err: err}
	}

	c.Concurrency.Metrics.RecordResponse(resp.StatusCode)
	c.Logger.LogRequestEnd("request_end", requestID.String(), method, requestURL, resp.StatusCode, time.Since(start))
	headers.CheckDeprecationHeader(resp, c.Logger)
	cookiejar.LogResponseCookies(resp.Header, c.config.HideSensitiveData, c.Logger)

	return ctx, resp, body, nil
}
