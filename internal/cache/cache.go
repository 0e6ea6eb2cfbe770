// Package cache provides TTL-based caching for discovery documents and
// remote identity probes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Default TTLs for different cache categories.
const (
	// TTLDiscovery bounds how often a remote's discovery document is refetched.
	TTLDiscovery = 15 * time.Minute

	// TTLRemoteIdentity bounds how often a remote is re-probed for being a
	// valid federation-capable server. Staleness only costs one extra probe;
	// the result never gates authorization.
	TTLRemoteIdentity = 24 * time.Hour
)

// DriverFactory is a function that creates a cache from driver options.
type DriverFactory func(options map[string]any) Cache

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver factory by name.
// Typically called from init() in driver packages.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewFromConfig creates a cache using the named driver. driverOptions holds
// per-driver option maps keyed by driver name.
func NewFromConfig(driver string, driverOptions map[string]any) (Cache, error) {
	if driver == "" {
		driver = "memory"
	}

	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", driver)
	}

	var options map[string]any
	if driverOptions != nil {
		if v, ok := driverOptions[driver].(map[string]any); ok {
			options = v
		}
	}

	return factory(options), nil
}

// NewDefault returns the default in-memory cache. Used where a nil cache
// would otherwise disable caching silently.
func NewDefault() Cache {
	c, err := NewFromConfig("memory", nil)
	if err != nil {
		// memory driver is always registered by the loader import
		panic(err)
	}
	return c
}
