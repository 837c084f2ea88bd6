// credentialstore/store.go
/* Package credentialstore persists the credential bundle between process runs. Every
backend is scoped by one namespace/key pair and holds at most one bundle. */
package credentialstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
)

const (
	DefaultNamespace = "go-api-auth-client"
	DefaultKey       = "auth-tokens"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store is the narrow persistence contract consumed by the token coordinator.
type Store interface {
	// Save replaces the stored bundle.
	Save(ctx context.Context, bundle credentials.Bundle) error
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*credentials.Bundle, error)
	// Delete removes the stored bundle. Deleting an absent bundle is not an error.
	Delete(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string `json:"Backend" toml:"Backend"`             // memory, file, redis, sqlite or postgres
	Namespace     string `json:"Namespace" toml:"Namespace"`         // Namespace scoping the stored bundle
	Key           string `json:"Key" toml:"Key"`                     // Key of the stored bundle within the namespace
	Directory     string `json:"Directory" toml:"Directory"`         // Base directory for the file backend
	RedisAddr     string `json:"RedisAddr" toml:"RedisAddr"`         // host:port of the redis server
	RedisPassword string `json:"RedisPassword" toml:"RedisPassword"` // Optional redis password
	RedisDB       int    `json:"RedisDB" toml:"RedisDB"`             // Redis logical database
	DSN           string `json:"DSN" toml:"DSN"`                     // Data source name for the sqlite and postgres backends
}

// SetDefaults fills in the namespace, key and backend when unset.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Key == "" {
		c.Key = DefaultKey
	}
}

// Validate checks the backend specific settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendFile:
		if c.Directory == "" {
			return fmt.Errorf("credential store: file backend requires Directory")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("credential store: redis backend requires RedisAddr")
		}
	case BackendSQLite, BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("credential store: %s backend requires DSN", c.Backend)
		}
	default:
		return fmt.Errorf("credential store: unknown backend %q", c.Backend)
	}
	return nil
}

// Open builds the backend described by cfg. Backends holding connections implement io.Closer.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendFile:
		return NewFileStore(cfg.Directory, cfg.Namespace, cfg.Key)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.Namespace, cfg.Key)
	case BackendSQLite:
		return OpenSQLStore(ctx, DriverSQLite, cfg.DSN, cfg.Namespace, cfg.Key)
	case BackendPostgres:
		return OpenSQLStore(ctx, DriverPostgres, cfg.DSN, cfg.Namespace, cfg.Key)
	default:
		return NewMemoryStore(), nil
	}
}

// Close releases the store's connections when it holds any.
func Close(store Store) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func storageKey(namespace, key string) string {
	return namespace + ":" + key
}
