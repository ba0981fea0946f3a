package nodestore

import (
	"fmt"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore/compression"
)

// Config holds configuration options for the NodeStore.
type Config struct {
	Backend         string
	Path            string
	CacheSize       int
	CacheTTL        time.Duration
	NegativeTTL     time.Duration
	NegativeMaxSize int
	Compressor      string
	CreateIfMissing bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:         "pebble",
		Path:            "./db/nodestore",
		CacheSize:       16384,
		CacheTTL:        5 * time.Minute,
		NegativeTTL:     time.Minute,
		NegativeMaxSize: 100000,
		Compressor:      "lz4",
		CreateIfMissing: true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !IsBackendAvailable(c.Backend) {
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnsupportedBackend, c.Backend)
	}
	if c.Backend != "memory" && c.Path == "" {
		return fmt.Errorf("%w: path must be specified", ErrInvalidConfig)
	}
	if c.CacheSize < 0 || c.NegativeMaxSize < 0 {
		return fmt.Errorf("%w: cache sizes must not be negative", ErrInvalidConfig)
	}
	if c.CacheTTL < 0 || c.NegativeTTL < 0 {
		return fmt.Errorf("%w: cache ages must not be negative", ErrInvalidConfig)
	}
	if _, err := compression.Get(c.Compressor); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
