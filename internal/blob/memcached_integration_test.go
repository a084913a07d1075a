//go:build integration
// +build integration

package blob

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMemcachedStore_PutGetRead_Integration verifies that MemcachedStore stores and
// reads back content when a memcached server is available.
func TestMemcachedStore_PutGetRead_Integration(t *testing.T) {
	s, err := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedStore() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Put(ctx, "weather-data-it", []byte(`{"v":1}`), PutOptions{AllowOverwrite: true}); err != nil {
		t.Skipf("Put failed (memcached may not be running): %v", err)
	}

	ref, err := s.Get(ctx, "weather-data-it")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := s.Read(ctx, ref)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("Read() = %s, want {\"v\":1}", got)
	}

	if err := s.Put(ctx, "weather-data-it", []byte("x"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Errorf("Put() without overwrite error = %v, want ErrExists", err)
	}
}

// TestMemcachedStore_Get_Miss_Integration verifies that MemcachedStore returns
// ErrNotFound when the key does not exist in memcached.
func TestMemcachedStore_Get_Miss_Integration(t *testing.T) {
	s, err := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedStore() error = %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("memcached not running: %v", err)
	}
	_, err = s.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
