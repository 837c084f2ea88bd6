// httpclient/config.go
package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultBaseURL                  = "https://jsonplaceholder.typicode.com"
	DefaultTokenRefreshURL          = authenticationhandler.DefaultTokenRefreshURL
	DefaultLogLevelString           = "LogLevelInfo"
	DefaultLogOutputFormat          = logger.LogOutputJSON
	DefaultLogConsoleSeparator      = "\t"
	DefaultHideSensitiveData        = false
	DefaultCustomTimeout            = 10 * time.Second
	DefaultRefreshTimeout           = authenticationhandler.DefaultRefreshTimeout
	DefaultTokenRefreshBufferPeriod = 0
	DefaultRefreshLoopLead          = 1 * time.Minute
	DefaultMaxConcurrentRequests    = 5
	DefaultFollowRedirects          = false
	DefaultMaxRedirects             = 5
	DefaultCookieJarEnabled         = false
)

var validLogLevels = []string{
	"LogLevelDebug",
	"LogLevelInfo",
	"LogLevelWarn",
	"LogLevelError",
	"LogLevelDPanic",
	"LogLevelPanic",
	"LogLevelFatal",
	"LogLevelNone",
}

var validLogFormats = []string{
	logger.LogOutputJSON,
	logger.LogOutputConsole,
}

// ClientConfig holds every option of a Client. The serialisable part can be loaded with
// LoadConfigFromFile or LoadConfigFromEnv.
type ClientConfig struct {
	// Endpoints
	BaseURL         string `json:"BaseURL" toml:"BaseURL"`
	TokenRefreshURL string `json:"TokenRefreshURL" toml:"TokenRefreshURL"`

	// Log
	LogLevel            string `json:"LogLevel" toml:"LogLevel"`
	LogOutputFormat     string `json:"LogOutputFormat" toml:"LogOutputFormat"` // "json" or "console"
	LogConsoleSeparator string `json:"LogConsoleSeparator" toml:"LogConsoleSeparator"`
	HideSensitiveData   bool   `json:"HideSensitiveData" toml:"HideSensitiveData"`

	// Timeouts and credential lifecycle
	CustomTimeout            time.Duration `json:"CustomTimeout" toml:"CustomTimeout"`                       // Per dispatch timeout of the http client
	RefreshTimeout           time.Duration `json:"RefreshTimeout" toml:"RefreshTimeout"`                     // Upper bound for one refresh exchange
	TokenRefreshBufferPeriod time.Duration `json:"TokenRefreshBufferPeriod" toml:"TokenRefreshBufferPeriod"` // Bundles expiring within this period are refreshed early
	RefreshLoopLead          time.Duration `json:"RefreshLoopLead" toml:"RefreshLoopLead"`                   // How long before expiry StartRefreshLoop refreshes

	// Cookies
	CookieJarEnabled bool `json:"CookieJarEnabled" toml:"CookieJarEnabled"`

	// Misc
	MaxConcurrentRequests int  `json:"MaxConcurrentRequests" toml:"MaxConcurrentRequests"`
	FollowRedirects       bool `json:"FollowRedirects" toml:"FollowRedirects"`
	MaxRedirects          int  `json:"MaxRedirects" toml:"MaxRedirects"`

	// Proxy
	ProxyURL      string `json:"ProxyURL" toml:"ProxyURL"`
	ProxyUsername string `json:"ProxyUsername" toml:"ProxyUsername"`
	ProxyPassword string `json:"ProxyPassword" toml:"ProxyPassword"`

	// Store selects the credential store backend when CredentialStore is nil.
	Store credentialstore.Config `json:"Store" toml:"Store"`

	// Injection points, never serialised.
	CredentialStore credentialstore.Store           `json:"-" toml:"-"`
	Refresher       authenticationhandler.Refresher `json:"-" toml:"-"`
	Clock           clockwork.Clock                 `json:"-" toml:"-"`
	Logger          logger.Logger                   `json:"-" toml:"-"`
	Transport       http.RoundTripper               `json:"-" toml:"-"`
}

// SetDefaultValuesClientConfig fills every unset option with its default.
func SetDefaultValuesClientConfig(config *ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.TokenRefreshURL == "" {
		config.TokenRefreshURL = DefaultTokenRefreshURL
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevelString
	}
	if config.LogOutputFormat == "" {
		config.LogOutputFormat = DefaultLogOutputFormat
	}
	if config.LogConsoleSeparator == "" {
		config.LogConsoleSeparator = DefaultLogConsoleSeparator
	}
	if config.CustomTimeout == 0 {
		config.CustomTimeout = DefaultCustomTimeout
	}
	if config.RefreshTimeout == 0 {
		config.RefreshTimeout = DefaultRefreshTimeout
	}
	if config.RefreshLoopLead == 0 {
		config.RefreshLoopLead = DefaultRefreshLoopLead
	}
	if config.MaxConcurrentRequests == 0 {
		config.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if config.MaxRedirects == 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}
	config.Store.SetDefaults()
}

func validateClientConfig(config *ClientConfig, populateDefaults bool) error {
	if populateDefaults {
		SetDefaultValuesClientConfig(config)
	}

	if err := validateBaseURL(config.BaseURL); err != nil {
		return err
	}
	if err := authenticationhandler.ValidateRefreshURL(config.TokenRefreshURL); err != nil {
		return err
	}

	if !slices.Contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}
	if !slices.Contains(validLogFormats, config.LogOutputFormat) {
		return fmt.Errorf("invalid log output format: %s", config.LogOutputFormat)
	}

	if config.CustomTimeout < 0 {
		return errors.New("CustomTimeout cannot be negative")
	}
	if config.RefreshTimeout < 0 {
		return errors.New("RefreshTimeout cannot be negative")
	}
	if config.TokenRefreshBufferPeriod < 0 {
		return errors.New("TokenRefreshBufferPeriod cannot be negative")
	}
	if config.RefreshLoopLead < 0 {
		return errors.New("RefreshLoopLead cannot be negative")
	}

	if config.MaxConcurrentRequests < 1 {
		return errors.New("MaxConcurrentRequests cannot be less than 1")
	}
	if config.FollowRedirects && config.MaxRedirects < 1 {
		return errors.New("MaxRedirects cannot be less than 1 when FollowRedirects is enabled")
	}

	if config.ProxyURL != "" {
		if _, err := url.Parse(config.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
	}

	if config.CredentialStore == nil {
		if err := config.Store.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: must be an absolute http or https URL", baseURL)
	}
	return nil
}
