package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis server. Keys are stored without TTL.
type RedisStore struct {
	client *redis.Client
	host   string
}

// NewRedisStore connects using a redis:// URL (see redis.ParseURL).
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opt)), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, host: client.Options().Addr}
}

func (s *RedisStore) url(key string) string {
	return "redis://" + s.host + "/" + key
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, key string) (Ref, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return Ref{}, fmt.Errorf("redis exists: %w", err)
	}
	if n == 0 {
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Ref{Key: key, URL: s.url(key)}, nil
}

// Read implements Store.Read.
func (s *RedisStore) Read(ctx context.Context, ref Ref) ([]byte, error) {
	data, err := s.client.Get(ctx, ref.Key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.URL)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Put implements Store.Put. Without AllowOverwrite the write is SETNX.
// Authorization is the connection's (URL credentials); opts.Token is not checked here.
func (s *RedisStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) error {
	if opts.AllowOverwrite {
		if err := s.client.Set(ctx, key, content, 0).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
		return nil
	}
	ok, err := s.client.SetNX(ctx, key, content, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	return nil
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
