// headers/headers.go
package headers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/version"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the per-call correlation id.
	RequestIDHeader = "X-Request-ID"
	// JSONContentType is sent as Accept on every call and as Content-Type when a body is present.
	JSONContentType = "application/json"
)

// HeaderHandler is responsible for managing and setting headers on HTTP requests.
type HeaderHandler struct {
	req *http.Request // The http.Request for which headers are being managed
	log logger.Logger // The logger to use for logging headers
}

// NewHeaderHandler creates a new instance of HeaderHandler for a given http.Request and logger.
func NewHeaderHandler(req *http.Request, log logger.Logger) *HeaderHandler {
	return &HeaderHandler{
		req: req,
		log: log,
	}
}

// SetStandardHeaders applies the headers every outgoing request carries. Headers already present
// on the request are left alone so per-request overrides win.
func (h *HeaderHandler) SetStandardHeaders(requestID string) {
	h.setIfAbsent("Accept", JSONContentType)
	h.setIfAbsent("User-Agent", version.GetUserAgentHeader())
	if requestID != "" {
		h.setIfAbsent(RequestIDHeader, requestID)
	}
	if h.req.Body != nil && h.req.Body != http.NoBody {
		h.setIfAbsent("Content-Type", JSONContentType)
	}
}

// SetAuthorization sets the Authorization header for the request.
func (h *HeaderHandler) SetAuthorization(token string) {
	// Ensure the token is prefixed with "Bearer " only once
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	h.req.Header.Set("Authorization", token)
}

// SetCustomHeaders copies per-request headers onto the request, replacing any existing values.
func (h *HeaderHandler) SetCustomHeaders(custom map[string]string) {
	for name, value := range custom {
		h.req.Header.Set(name, value)
	}
}

func (h *HeaderHandler) setIfAbsent(name, value string) {
	if h.req.Header.Get(name) == "" {
		h.req.Header.Set(name, value)
	}
}

// LogHeaders prints all the current headers in the http.Request using the zap logger.
// It uses the RedactSensitiveHeaderData function to redact sensitive data based on the hideSensitiveData flag.
func (h *HeaderHandler) LogHeaders(hideSensitiveData bool) {
	if h.log.GetLogLevel() <= logger.LogLevelDebug {
		redactedHeaders := http.Header{}
		for name, values := range h.req.Header {
			if len(values) > 0 {
				redactedHeaders.Set(name, redact.RedactSensitiveHeaderData(hideSensitiveData, name, values[0]))
			}
		}

		h.log.Debug("HTTP Request Headers", zap.String("Headers", HeadersToString(redactedHeaders)))
	}
}

// HeadersToString converts a http.Header to a string for logging,
// with each header on a new line for readability.
func HeadersToString(headers http.Header) string {
	var headerStrings []string
	for name, values := range headers {
		// Join all values for the header with a comma, as per HTTP standard
		headerStrings = append(headerStrings, fmt.Sprintf("%s: %s", name, strings.Join(values, ", ")))
	}
	sort.Strings(headerStrings)
	return strings.Join(headerStrings, "\n")
}

// CheckDeprecationHeader checks the response headers for the Deprecation header and logs a warning if present.
func CheckDeprecationHeader(resp *http.Response, log logger.Logger) {
	if deprecationHeader := resp.Header.Get("Deprecation"); deprecationHeader != "" {
		log.Warn("API endpoint is deprecated",
			zap.String("Date", deprecationHeader),
			zap.String("Endpoint", resp.Request.URL.String()),
		)
	}
}
