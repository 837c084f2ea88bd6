// status.go
// This package provides utility functions for categorizing HTTP status codes.
package status

import (
	"net/http"
)

// IsSuccessStatusCode reports whether statusCode is in the 2xx range.
func IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsUnauthorized reports whether the server rejected the presented credentials.
// Only 401 triggers a refresh-and-retry; 403 means the credentials are valid but insufficient.
func IsUnauthorized(statusCode int) bool {
	return statusCode == http.StatusUnauthorized
}

// IsRedirectStatusCode checks if the provided HTTP status code is one of the redirect codes.
// Redirect status codes instruct the client to make a new request to a different URI, as defined in the response's Location header.
//
// - 301 Moved Permanently: The requested resource has been assigned a new permanent URI.
// - 302 Found: The requested resource resides temporarily under a different URI.
// - 303 See Other: The response can be found under a different URI and should be retrieved using GET.
// - 307 Temporary Redirect: Temporary move; the request method must not change.
// - 308 Permanent Redirect: Permanent move; the request method must not change.
func IsRedirectStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// IsPermanentRedirect checks if the provided HTTP status code is one of the permanent redirect codes.
func IsPermanentRedirect(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// IsTransientStatusCode reports whether a failed refresh exchange is worth retrying on the next
// background tick rather than being treated as a rejection of the refresh token.
func IsTransientStatusCode(statusCode int) bool {
	transientStatusCodes := map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
	return transientStatusCodes[statusCode]
}
