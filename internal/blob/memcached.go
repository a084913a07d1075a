package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "blob:"

// MemcachedStore implements Store using memcached. Items are written without expiration;
// snapshot staleness is judged from the content, not from the cache TTL.
type MemcachedStore struct {
	client *memcache.Client
	addrs  []string
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client, addrs: servers}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(k string) string {
	return keyPrefix + k
}

func (s *MemcachedStore) url(k string) string {
	return "memcached://" + s.addrs[0] + "/" + s.key(k)
}

// Get implements Store.Get.
func (s *MemcachedStore) Get(ctx context.Context, key string) (Ref, error) {
	if ctx.Err() != nil {
		return Ref{}, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Ref{}, fmt.Errorf("memcached get: %w", err)
	}
	return Ref{Key: key, URL: s.url(key), content: item.Value}, nil
}

// Read implements Store.Read. A Ref from Get already carries the value, so the usual
// Get then Read costs one round-trip; other Refs are fetched by key.
func (s *MemcachedStore) Read(ctx context.Context, ref Ref) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ref.content != nil {
		return ref.content, nil
	}
	item, err := s.client.Get(s.key(ref.Key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.URL)
		}
		return nil, fmt.Errorf("memcached read: %w", err)
	}
	return item.Value, nil
}

// Put implements Store.Put. Without AllowOverwrite the write uses memcached add semantics.
// Memcached has no per-write authorization, so opts.Token is not checked here.
func (s *MemcachedStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	item := &memcache.Item{Key: s.key(key), Value: content}
	if opts.AllowOverwrite {
		if err := s.client.Set(item); err != nil {
			return fmt.Errorf("memcached set: %w", err)
		}
		return nil
	}
	if err := s.client.Add(item); err != nil {
		if errors.Is(err, memcache.ErrNotStored) {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("memcached add: %w", err)
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
