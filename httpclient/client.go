// httpclient/client.go
/* Package httpclient is the authenticated request pipeline. A Client attaches bearer credentials
obtained from a shared TokenCoordinator to requests for endpoints that require them, caps the
number of in-flight dispatches and, when a request is rejected with 401, forces one credential
refresh and replays the request exactly once. Responses are decoded into the caller's declared
shape through the generic Send function. */
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/concurrency"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/proxy"
	"github.com/deploymenttheory/go-api-auth-client/redirecthandler"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Master struct/object
type Client struct {
	// Private
	config    ClientConfig
	http      *http.Client
	store     credentialstore.Store
	ownsStore bool

	loopMu     sync.Mutex
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	closeOnce  sync.Once
	closeError error

	// Exported
	Logger      logger.Logger
	Concurrency *concurrency.ConcurrencyHandler
	Coordinator *authenticationhandler.TokenCoordinator
}

// BuildClient creates a new client with the provided configuration. The credential store is
// opened and read once, here. Close the client to release the store.
func BuildClient(ctx context.Context, config ClientConfig, populateDefaultValues bool) (*Client, error) {
	if err := validateClientConfig(&config, populateDefaultValues); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	//region Logging
	log := config.Logger
	if log == nil {
		parsedLogLevel := logger.ParseLogLevelFromString(config.LogLevel)
		log = logger.BuildLogger(parsedLogLevel, config.LogOutputFormat, config.LogConsoleSeparator, config.HideSensitiveData)
	}
	//endregion

	//region HTTP
	httpClient := &http.Client{
		Timeout:   config.CustomTimeout,
		Transport: config.Transport,
	}

	if err := redirecthandler.SetupRedirectHandler(httpClient, config.FollowRedirects, config.MaxRedirects, log); err != nil {
		return nil, log.Error("Failed to set up redirect handler", zap.Error(err))
	}

	if err := cookiejar.SetupCookieJar(httpClient, config.CookieJarEnabled, log); err != nil {
		return nil, err
	}

	if err := proxy.InitializeProxy(httpClient, config.ProxyURL, config.ProxyUsername, config.ProxyPassword, "", log); err != nil {
		return nil, fmt.Errorf("configuring proxy: %w", err)
	}
	//endregion

	//region Credentials
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store := config.CredentialStore
	ownsStore := false
	if store == nil {
		opened, err := credentialstore.Open(ctx, config.Store)
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}
		store, ownsStore = opened, true
	}

	refresher := config.Refresher
	if refresher == nil {
		httpRefresher, err := authenticationhandler.NewHTTPRefresher(httpClient, config.TokenRefreshURL, clock, log)
		if err != nil {
			closeOwnedStore(store, ownsStore)
			return nil, err
		}
		refresher = httpRefresher
	}

	coordinator, err := authenticationhandler.NewTokenCoordinator(ctx, authenticationhandler.CoordinatorConfig{
		Store:                    store,
		Refresher:                refresher,
		Clock:                    clock,
		Logger:                   log,
		TokenRefreshBufferPeriod: config.TokenRefreshBufferPeriod,
		RefreshTimeout:           config.RefreshTimeout,
	})
	if err != nil {
		closeOwnedStore(store, ownsStore)
		return nil, err
	}
	//endregion

	concurrencyHandler := concurrency.NewConcurrencyHandler(
		config.MaxConcurrentRequests,
		log,
		concurrency.NewConcurrencyMetrics(),
	)

	client := &Client{
		config:      config,
		http:        httpClient,
		store:       store,
		ownsStore:   ownsStore,
		Logger:      log,
		Concurrency: concurrencyHandler,
		Coordinator: coordinator,
	}

	log.Debug("New API client initialized",
		zap.String("Base URL", config.BaseURL),
		zap.String("Token Refresh URL", config.TokenRefreshURL),
		zap.String("Credential Store", config.Store.Backend),
		zap.String("Logging Level", config.LogLevel),
		zap.String("Log Encoding Format", config.LogOutputFormat),
		zap.Bool("Hide Sensitive Data In Logs", config.HideSensitiveData),
		zap.Bool("Cookie Jar Enabled", config.CookieJarEnabled),
		zap.Int("Max Concurrent Requests", config.MaxConcurrentRequests),
		zap.Bool("Follow Redirects", config.FollowRedirects),
		zap.Int("Max Redirects", config.MaxRedirects),
		zap.Duration("Token Refresh Buffer Period", config.TokenRefreshBufferPeriod),
		zap.Duration("Refresh Timeout", config.RefreshTimeout),
		zap.Duration("Custom Timeout", config.CustomTimeout),
	)

	return client, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() ClientConfig {
	return c.config
}

// HTTPClient exposes the underlying *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// StoreCredentials installs a bundle obtained out of band, for example from a login flow, and
// persists it.
func (c *Client) StoreCredentials(ctx context.Context, bundle credentials.Bundle) error {
	return c.Coordinator.SetBundle(ctx, bundle)
}

// Logout drops the credentials from memory and from the store.
func (c *Client) Logout(ctx context.Context) error {
	return c.Coordinator.Clear(ctx)
}

// StartRefreshLoop refreshes the credentials in the background ahead of expiry until ctx is
// done or the client is closed. Calling it again while a loop runs is a no-op.
func (c *Client) StartRefreshLoop(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopLoop != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopLoop, c.loopDone = cancel, done

	go func() {
		defer close(done)
		c.Coordinator.RefreshLoop(loopCtx, c.config.RefreshLoopLead, authenticationhandler.DefaultRefreshRetryPeriod)
	}()
}

// Close stops the refresh loop, if any, and releases the credential store when the client
// opened it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.loopMu.Lock()
		if c.stopLoop != nil {
			c.stopLoop()
			<-c.loopDone
		}
		c.loopMu.Unlock()

		if c.ownsStore {
			c.closeError = credentialstore.Close(c.store)
		}
		c.http.CloseIdleConnections()
	})
	return c.closeError
}

// buildURL joins the base URL and an endpoint path.
func (c *Client) buildURL(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func closeOwnedStore(store credentialstore.Store, owned bool) {
	if !owned {
		return
	}
	_ = credentialstore.Close(store)
}
