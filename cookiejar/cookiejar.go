// cookiejar/cookiejar.go

/* The cookiejar package gives the request pipeline an optional cookie jar. APIs that pair the
bearer token with a session cookie keep working across calls, and cookie values never reach the
logs when sensitive data is hidden. */

package cookiejar

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// sessionCookieMarkers flag cookie names that carry a session or credential.
var sessionCookieMarkers = []string{"session", "token", "auth", "sid"}

// SetupCookieJar installs a cookie jar on client when enabled. The public suffix list keeps
// cookies scoped to the registrable domain that set them.
func SetupCookieJar(client *http.Client, enableCookieJar bool, log logger.Logger) error {
	if !enableCookieJar {
		return nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Error("Failed to create cookie jar", zap.Error(err))
		return fmt.Errorf("setupCookieJar failed: %w", err)
	}
	client.Jar = jar
	log.Debug("Cookie jar enabled")
	return nil
}

// IsSensitiveCookie reports whether the cookie's value must be hidden from logs.
func IsSensitiveCookie(name string) bool {
	if redact.IsSensitiveKey(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, marker := range sessionCookieMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactSensitiveCookies returns copies of cookies with sensitive values replaced. The input is not modified.
func RedactSensitiveCookies(cookies []*http.Cookie) []*http.Cookie {
	redacted := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		c := *cookie
		if IsSensitiveCookie(c.Name) {
			c.Value = "REDACTED"
		}
		redacted = append(redacted, &c)
	}
	return redacted
}

// CookiesFromHeader parses the Set-Cookie headers of a response header.
func CookiesFromHeader(header http.Header) []*http.Cookie {
	return (&http.Response{Header: header}).Cookies()
}

// LogResponseCookies logs the cookies set by a response at debug level.
func LogResponseCookies(header http.Header, hideSensitiveData bool, log logger.Logger) {
	if log.GetLogLevel() > logger.LogLevelDebug {
		return
	}
	cookies := CookiesFromHeader(header)
	if len(cookies) == 0 {
		return
	}
	if hideSensitiveData {
		cookies = RedactSensitiveCookies(cookies)
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	log.Debug("Response set cookies", zap.Strings("cookies", pairs))
}
