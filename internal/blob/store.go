package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

// Access is the visibility requested for a stored blob.
type Access string

const AccessPublic Access = "public"

var (
	// ErrNotFound is returned when no blob exists under the key.
	ErrNotFound = errors.New("blob not found")
	// ErrUnauthorized is returned when a write is rejected for a missing or wrong token.
	ErrUnauthorized = errors.New("blob write unauthorized")
	// ErrExists is returned by Put when the key is taken and AllowOverwrite is false.
	ErrExists = errors.New("blob already exists")
)

// Ref points at stored content. URL is the location Read fetches from.
type Ref struct {
	Key string
	URL string

	// content is set by backends whose lookup already returned the value.
	content []byte
}

// PutOptions controls a single write.
type PutOptions struct {
	Access         Access
	Token          string // write-authorization token; empty means none supplied
	AllowOverwrite bool
	ContentType    string
}

// Store is the key-value blob abstraction the snapshot service reads and writes through.
// Get resolves a key to a Ref (ErrNotFound on miss), Read fetches the Ref's content,
// Put writes content under a key.
type Store interface {
	Get(ctx context.Context, key string) (Ref, error)
	Read(ctx context.Context, ref Ref) ([]byte, error)
	Put(ctx context.Context, key string, content []byte, opts PutOptions) error
}

// Pinger is implemented by stores that can report reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InMemoryStore implements Store with a map. Safe for concurrent use.
// When constructed with a non-empty token, Put requires a matching PutOptions.Token.
type InMemoryStore struct {
	mu    sync.RWMutex
	token string
	data  map[string]entry
}

type entry struct {
	content []byte
	access  Access
}

// NewInMemoryStore creates an empty in-memory store. An empty token disables write authorization.
func NewInMemoryStore(token string) *InMemoryStore {
	return &InMemoryStore{
		token: token,
		data:  make(map[string]entry),
	}
}

func memoryURL(key string) string {
	return "memory://" + key
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(ctx context.Context, key string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Ref{Key: key, URL: memoryURL(key)}, nil
}

// Read implements Store.Read. The returned slice is a copy.
func (s *InMemoryStore) Read(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.data[ref.Key]
	s.mu.RUnlock()
	if !ok || ref.URL != memoryURL(ref.Key) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.URL)
	}
	return bytes.Clone(e.content), nil
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.token != "" && opts.Token != s.token {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists && !opts.AllowOverwrite {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	s.data[key] = entry{content: bytes.Clone(content), access: opts.Access}
	return nil
}

// Len returns the number of stored blobs.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Ping implements Pinger. The in-memory store is always reachable.
func (s *InMemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
