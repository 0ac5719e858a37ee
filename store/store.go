// Package store keeps the most recent raw analysis response per session.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no live entry exists for a key
var ErrNotFound = errors.New("result not found")

const resultSuffix = "/analysisResults"

// ResultStore holds raw analysis JSON keyed by Key(session)
type ResultStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, raw []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the storage key for a session's analysis results
func Key(session string) string {
	return session + resultSuffix
}

// NewSessionID mints a session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is safe to use as a session key.
// Client supplied ids are limited to a short token alphabet.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return false
		}
		return true
	}) < 0
}

// Driver names accepted by Open
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

const cleanupInterval = 5 * time.Minute

// Open builds the store selected by driver
func Open(ctx context.Context, driver, path string, ttl time.Duration, maxEntries int) (ResultStore, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(ttl, maxEntries, cleanupInterval), nil
	case DriverSQLite:
		return OpenSQLite(ctx, path, ttl)
	default:
		return nil, fmt.Errorf("unknown result store %q", driver)
	}
}
