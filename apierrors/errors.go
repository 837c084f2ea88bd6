// apierrors/errors.go
// This package provides the error taxonomy shared by the token coordinator and the request pipeline.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredentials is returned when no credential bundle has ever been stored. The caller must authenticate from scratch.
	ErrNoCredentials = errors.New("no stored credentials")
	// ErrInvalidCredentials is returned when the authorization server rejects a refresh exchange.
	ErrInvalidCredentials = errors.New("refresh credentials rejected by authorization server")
	// ErrUnauthorized is returned when a request is still rejected with 401 after a successful refresh.
	ErrUnauthorized = errors.New("request unauthorized after credential refresh")
	// ErrServer is matched by every ServerError.
	ErrServer = errors.New("server returned an error status")
	// ErrDecoding is returned when a response body does not match the expected shape.
	ErrDecoding = errors.New("response decoding failed")
	// ErrTransport is returned when no response was received.
	ErrTransport = errors.New("transport failure")
	// ErrCredentialStore is returned when the credential store could not be read or written.
	ErrCredentialStore = errors.New("credential store failure")
)

// ServerError represents a non-2xx, non-401 api response.
type ServerError struct {
	StatusCode  int    `json:"status_code"`  // HTTP status code
	Method      string `json:"method"`       // HTTP method used for the request
	URL         string `json:"url"`          // The URL of the HTTP request
	Message     string `json:"message"`      // Summary of the error
	RawResponse string `json:"raw_response"` // Raw response body for debugging
}

// Error returns a string representation of the ServerError, making it compatible with the error interface.
func (e *ServerError) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("server error: StatusCode=%d, Method=%s, URL=%s, Message=%s", e.StatusCode, e.Method, e.URL, message)
}

// Is lets errors.Is(err, ErrServer) match any ServerError.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// JSON renders the error for structured output.
func (e *ServerError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return e.Error()
	}
	return string(data)
}

// InvalidCredentialsError carries the authorization server's response to a rejected refresh.
type InvalidCredentialsError struct {
	StatusCode int
	Message    string
}

func (e *InvalidCredentialsError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", ErrInvalidCredentials, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d): %s", ErrInvalidCredentials, e.StatusCode, e.Message)
}

func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// DecodingError wraps the decoder failure for a response body.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDecoding, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}

// TransportError wraps a connection, TLS or timeout failure raised before any response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// StoreError wraps a credential store failure with the operation that raised it.
type StoreError struct {
	Op  string // save, load or delete
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCredentialStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrCredentialStore
}

// RequiresReauthentication reports whether err means the stored credentials can no longer be used
// and the caller should send the user through a fresh login.
func RequiresReauthentication(err error) bool {
	return errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUnauthorized)
}
