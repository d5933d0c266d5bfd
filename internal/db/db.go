// Package db provides the durable key/value backends behind the Local Store.
// Every value is a JSON document stored as text under a well-known key.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrQuotaExceeded is returned when a write would exceed the backend's capacity.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is a device-scoped key/value store.
type Backend interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open selects a backend from a URL. It reads the scheme the same way the
// server picks its database dialect:
//
//	sqlite://agent.db          GORM over pure-Go SQLite
//	postgres://user:pw@host/db GORM over Postgres
//	bolt:///var/lib/agent.bolt bbolt file
//	redis://localhost:6379/0   Redis
//	memory://                  in-process, lost on exit
func Open(url string) (Backend, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "postgres://"):
		return OpenGorm(url)
	case strings.HasPrefix(url, "bolt://"):
		return OpenBolt(strings.TrimPrefix(url, "bolt://"))
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return OpenRedis(url)
	case strings.HasPrefix(url, "memory://"):
		return NewMemory(0), nil
	}
	return nil, fmt.Errorf("invalid STORE_URL %q: must start with sqlite://, postgres://, bolt://, redis:// or memory://", url)
}
