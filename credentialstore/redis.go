package credentialstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/redis/go-redis/v9"
)

// RedisOptions is the subset of go-redis options exposed through Config.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps the bundle under the key "<namespace>:<key>".
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
}

// NewRedisStore dials redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions, namespace, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, key: storageKey(namespace, key), owned: true}, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the client open.
func NewRedisStoreFromClient(client *redis.Client, namespace, key string) *RedisStore {
	return &RedisStore{client: client, key: storageKey(namespace, key)}
}

func (s *RedisStore) Save(ctx context.Context, bundle credentials.Bundle) error {
	payload, err := credentials.Encode(bundle)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, payload, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context) (*credentials.Bundle, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bundle, err := credentials.Decode(payload)
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Close closes the client when the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
