// httpclient/config_loader.go
// Loads ClientConfig values from a JSON or TOML file or from environment variables.
package httpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// LoadConfigFromFile reads a .json or .toml configuration file. Durations may be written as
// Go duration strings ("30s") in both formats. Unset options keep their zero value, so pass the
// result to BuildClient with populateDefaultValues set.
func LoadConfigFromFile(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	}

	config := &ClientConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration file type %q, use .json or .toml", filepath.Ext(path))
	}
	return config, nil
}

// LoadConfigFromEnv builds a ClientConfig from environment variables. Variables that are not set
// fall back to the package defaults; malformed values are reported as errors.
func LoadConfigFromEnv() (*ClientConfig, error) {
	config := &ClientConfig{}
	var err error

	config.BaseURL = getEnvAsString("BASE_URL", DefaultBaseURL)
	config.TokenRefreshURL = getEnvAsString("TOKEN_REFRESH_URL", DefaultTokenRefreshURL)

	config.LogLevel = getEnvAsString("LOG_LEVEL", DefaultLogLevelString)
	config.LogOutputFormat = getEnvAsString("LOG_OUTPUT_FORMAT", DefaultLogOutputFormat)
	config.LogConsoleSeparator = getEnvAsString("LOG_CONSOLE_SEPARATOR", DefaultLogConsoleSeparator)
	if config.HideSensitiveData, err = getEnvAsBool("HIDE_SENSITIVE_DATA", DefaultHideSensitiveData); err != nil {
		return nil, err
	}

	if config.CustomTimeout, err = getEnvAsDuration("CUSTOM_TIMEOUT", DefaultCustomTimeout); err != nil {
		return nil, err
	}
	if config.RefreshTimeout, err = getEnvAsDuration("REFRESH_TIMEOUT", DefaultRefreshTimeout); err != nil {
		return nil, err
	}
	if config.TokenRefreshBufferPeriod, err = getEnvAsDuration("TOKEN_REFRESH_BUFFER_PERIOD", DefaultTokenRefreshBufferPeriod); err != nil {
		return nil, err
	}
	if config.RefreshLoopLead, err = getEnvAsDuration("REFRESH_LOOP_LEAD", DefaultRefreshLoopLead); err != nil {
		return nil, err
	}

	if config.CookieJarEnabled, err = getEnvAsBool("COOKIE_JAR_ENABLED", DefaultCookieJarEnabled); err != nil {
		return nil, err
	}
	if config.MaxConcurrentRequests, err = getEnvAsInt("MAX_CONCURRENT_REQUESTS", DefaultMaxConcurrentRequests); err != nil {
		return nil, err
	}
	if config.FollowRedirects, err = getEnvAsBool("FOLLOW_REDIRECTS", DefaultFollowRedirects); err != nil {
		return nil, err
	}
	if config.MaxRedirects, err = getEnvAsInt("MAX_REDIRECTS", DefaultMaxRedirects); err != nil {
		return nil, err
	}

	config.ProxyURL = getEnvAsString("PROXY_URL", "")
	config.ProxyUsername = getEnvAsString("PROXY_USERNAME", "")
	config.ProxyPassword = getEnvAsString("PROXY_PASSWORD", "")

	config.Store.Backend = getEnvAsString("STORE_BACKEND", "")
	config.Store.Namespace = getEnvAsString("STORE_NAMESPACE", "")
	config.Store.Key = getEnvAsString("STORE_KEY", "")
	config.Store.Directory = getEnvAsString("STORE_DIRECTORY", "")
	config.Store.RedisAddr = getEnvAsString("STORE_REDIS_ADDR", "")
	config.Store.RedisPassword = getEnvAsString("STORE_REDIS_PASSWORD", "")
	if config.Store.RedisDB, err = getEnvAsInt("STORE_REDIS_DB", 0); err != nil {
		return nil, err
	}
	config.Store.DSN = getEnvAsString("STORE_DSN", "")
	config.Store.SetDefaults()

	return config, nil
}

// UnmarshalJSON accepts durations either as Go duration strings or as integer nanoseconds.
func (c *ClientConfig) UnmarshalJSON(data []byte) error {
	type plain ClientConfig
	aux := struct {
		*plain
		CustomTimeout            jsonDuration `json:"CustomTimeout"`
		RefreshTimeout           jsonDuration `json:"RefreshTimeout"`
		TokenRefreshBufferPeriod jsonDuration `json:"TokenRefreshBufferPeriod"`
		RefreshLoopLead          jsonDuration `json:"RefreshLoopLead"`
	}{
		plain:                    (*plain)(c),
		CustomTimeout:            jsonDuration(c.CustomTimeout),
		RefreshTimeout:           jsonDuration(c.RefreshTimeout),
		TokenRefreshBufferPeriod: jsonDuration(c.TokenRefreshBufferPeriod),
		RefreshLoopLead:          jsonDuration(c.RefreshLoopLead),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CustomTimeout = time.Duration(aux.CustomTimeout)
	c.RefreshTimeout = time.Duration(aux.RefreshTimeout)
	c.TokenRefreshBufferPeriod = time.Duration(aux.TokenRefreshBufferPeriod)
	c.RefreshLoopLead = time.Duration(aux.RefreshLoopLead)
	return nil
}

type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = jsonDuration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = jsonDuration(n)
	return nil
}

// getEnvAsString reads an environment variable or returns a default value if not set.
func getEnvAsString(name string, defaultVal string) string {
	if value, exists := os.LookupEnv(name); exists {
		return value
	}
	return defaultVal
}

// getEnvAsBool reads an environment variable as a boolean or returns a default value if not set.
func getEnvAsBool(name string, defaultVal bool) (bool, error) {
	valStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal, nil
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("environment variable %s: %w", name, err)
	}
	return val, nil
}

// getEnvAsInt reads an environment variable as an integer or returns a default value if not set.
func getEnvAsInt(name string, defaultVal int) (int, error) {
	valStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("environment variable %s: %w", name, err)
	}
	return val, nil
}

// getEnvAsDuration reads an environment variable as a duration or returns a default value if not set.
func getEnvAsDuration(name string, defaultVal time.Duration) (time.Duration, error) {
	valStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal, nil
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("environment variable %s: %w", name, err)
	}
	return val, nil
}
