// proxy.go

package proxy

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"go.uber.org/zap"
)

// InitializeProxy routes the client's transport through proxyURL.
// It supports proxy authentication using username/password or an authentication token (e.g., for SSO).
// The existing transport is cloned when it is an *http.Transport so its timeouts are preserved.
func InitializeProxy(httpClient *http.Client, proxyURL, proxyUsername, proxyPassword, authToken string, log logger.Logger) error {
	if proxyURL == "" {
		return nil // No proxy configuration provided, nothing to do
	}

	parsedProxyURL, err := url.Parse(proxyURL)
	if err != nil {
		log.Warn("Failed to parse proxy URL", zap.Error(err))
		return err
	}

	transport := baseTransport(httpClient)
	transport.Proxy = http.ProxyURL(parsedProxyURL)

	switch {
	case proxyUsername != "" && proxyPassword != "":
		parsedProxyURL.User = url.UserPassword(proxyUsername, proxyPassword)
		credentials := base64.StdEncoding.EncodeToString([]byte(proxyUsername + ":" + proxyPassword))
		transport.ProxyConnectHeader = http.Header{
			"Proxy-Authorization": []string{"Basic " + credentials},
		}
	case authToken != "":
		transport.ProxyConnectHeader = http.Header{
			"Proxy-Authorization": []string{"Bearer " + authToken},
		}
	}

	httpClient.Transport = transport
	log.Info("Proxy configured", zap.String("ProxyURL", parsedProxyURL.Redacted()))
	return nil
}

func baseTransport(httpClient *http.Client) *http.Transport {
	if t, ok := httpClient.Transport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return http.DefaultTransport.(*http.Transport).Clone()
}
