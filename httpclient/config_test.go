package httpclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultValuesClientConfig(t *testing.T) {
	config := ClientConfig{MaxConcurrentRequests: 2}
	SetDefaultValuesClientConfig(&config)

	assert.Equal(t, DefaultBaseURL, config.BaseURL)
	assert.Equal(t, DefaultTokenRefreshURL, config.TokenRefreshURL)
	assert.Equal(t, DefaultLogLevelString, config.LogLevel)
	assert.Equal(t, DefaultLogOutputFormat, config.LogOutputFormat)
	assert.Equal(t, DefaultCustomTimeout, config.CustomTimeout)
	assert.Equal(t, DefaultRefreshTimeout, config.RefreshTimeout)
	assert.Equal(t, 2, config.MaxConcurrentRequests, "explicit values are kept")
	assert.Equal(t, credentialstore.BackendMemory, config.Store.Backend)
	assert.Equal(t, credentialstore.DefaultNamespace, config.Store.Namespace)
	assert.Equal(t, credentialstore.DefaultKey, config.Store.Key)
}

func TestValidateClientConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
		errMsg string
	}{
		{"defaults are valid", func(*ClientConfig) {}, ""},
		{"relative base url", func(c *ClientConfig) { c.BaseURL = "/api" }, "invalid base URL"},
		{"bad refresh url", func(c *ClientConfig) { c.TokenRefreshURL = "ftp://auth" }, "invalid token refresh URL"},
		{"unknown log level", func(c *ClientConfig) { c.LogLevel = "LogLevelChatty" }, "invalid log level"},
		{"unknown log format", func(c *ClientConfig) { c.LogOutputFormat = "pretty" }, "invalid log output format"},
		{"negative timeout", func(c *ClientConfig) { c.CustomTimeout = -time.Second }, "CustomTimeout"},
		{"negative buffer", func(c *ClientConfig) { c.TokenRefreshBufferPeriod = -time.Second }, "TokenRefreshBufferPeriod"},
		{"no concurrency", func(c *ClientConfig) { c.MaxConcurrentRequests = -1 }, "MaxConcurrentRequests"},
		{"redirects without budget", func(c *ClientConfig) { c.FollowRedirects = true; c.MaxRedirects = -1 }, "MaxRedirects"},
		{"file store without directory", func(c *ClientConfig) { c.Store.Backend = credentialstore.BackendFile }, "Directory"},
		{"injected store skips backend checks", func(c *ClientConfig) {
			c.Store.Backend = "unknown"
			c.CredentialStore = credentialstore.NewMemoryStore()
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := ClientConfig{}
			SetDefaultValuesClientConfig(&config)
			tt.mutate(&config)

			err := validateClientConfig(&config, false)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"BaseURL": "https://api.internal.example.com",
		"LogLevel": "LogLevelDebug",
		"CustomTimeout": "15s",
		"RefreshTimeout": 2000000000,
		"MaxConcurrentRequests": 3,
		"Store": {"Backend": "file", "Directory": "/var/lib/apiclient"}
	}`), 0o600))

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
BaseURL = "https://api.internal.example.com"
LogLevel = "LogLevelDebug"
CustomTimeout = "15s"
RefreshTimeout = "2s"
MaxConcurrentRequests = 3

[Store]
Backend = "file"
Directory = "/var/lib/apiclient"
`), 0o600))

	for _, path := range []string{jsonPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			config, err := LoadConfigFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, "https://api.internal.example.com", config.BaseURL)
			assert.Equal(t, "LogLevelDebug", config.LogLevel)
			assert.Equal(t, 15*time.Second, config.CustomTimeout)
			assert.Equal(t, 2*time.Second, config.RefreshTimeout)
			assert.Equal(t, 3, config.MaxConcurrentRequests)
			assert.Equal(t, credentialstore.BackendFile, config.Store.Backend)
			assert.Equal(t, "/var/lib/apiclient", config.Store.Directory)
		})
	}
}

func TestLoadConfigFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("BaseURL: x"), 0o600))
	_, err = LoadConfigFromFile(yamlPath)
	assert.ErrorContains(t, err, "unsupported configuration file type")

	badDuration := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badDuration, []byte(`{"CustomTimeout": "soon"}`), 0o600))
	_, err = LoadConfigFromFile(badDuration)
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://env.example.com")
	t.Setenv("LOG_LEVEL", "LogLevelWarn")
	t.Setenv("HIDE_SENSITIVE_DATA", "true")
	t.Setenv("CUSTOM_TIMEOUT", "3s")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "7")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("STORE_REDIS_ADDR", "localhost:6379")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", config.BaseURL)
	assert.Equal(t, DefaultTokenRefreshURL, config.TokenRefreshURL)
	assert.Equal(t, "LogLevelWarn", config.LogLevel)
	assert.True(t, config.HideSensitiveData)
	assert.Equal(t, 3*time.Second, config.CustomTimeout)
	assert.Equal(t, 7, config.MaxConcurrentRequests)
	assert.Equal(t, "redis", config.Store.Backend)
	assert.Equal(t, "localhost:6379", config.Store.RedisAddr)
	assert.Equal(t, credentialstore.DefaultNamespace, config.Store.Namespace)
}

func TestLoadConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_REQUESTS", "many")
	_, err := LoadConfigFromEnv()
	assert.ErrorContains(t, err, "MAX_CONCURRENT_REQUESTS")
}

func TestBuildClientWithFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	config := ClientConfig{
		Logger: logger.NewNopLogger(),
		Store: credentialstore.Config{
			Backend:   credentialstore.BackendFile,
			Directory: dir,
		},
	}

	first, err := BuildClient(ctx, config, true)
	require.NoError(t, err)
	stored := credentials.NewBundle("a1", "r1", time.Now().Add(time.Hour))
	require.NoError(t, first.StoreCredentials(ctx, stored))
	require.NoError(t, first.Close())
	require.NoError(t, first.Close(), "close is idempotent")

	// A new client loads the bundle persisted by the previous one.
	second, err := BuildClient(ctx, config, true)
	require.NoError(t, err)
	defer second.Close()

	current, ok := second.Coordinator.Current()
	require.True(t, ok)
	assert.True(t, stored.Equal(current))
}

func TestBuildClientRejectsInvalidConfig(t *testing.T) {
	_, err := BuildClient(context.Background(), ClientConfig{BaseURL: "not a url"}, true)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestStartRefreshLoopStopsOnClose(t *testing.T) {
	client, err := BuildClient(context.Background(), ClientConfig{Logger: logger.NewNopLogger()}, true)
	require.NoError(t, err)

	client.StartRefreshLoop(context.Background())
	client.StartRefreshLoop(context.Background())

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the refresh loop")
	}
}
