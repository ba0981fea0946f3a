package ledgerindex

import (
	"fmt"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the SQL engine backing the index.
type Config struct {
	Driver          string        `toml:"driver" mapstructure:"driver"`
	DSN             string        `toml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	DefaultTimeout  time.Duration `toml:"default_timeout" mapstructure:"default_timeout"`
}

// DefaultConfig returns an on-disk sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:./db/ledgers.db",
		MaxOpenConns:    8,
		ConnMaxLifetime: time.Hour,
		DefaultTimeout:  10 * time.Second,
	}
}

// MemoryConfig returns a private in-memory sqlite configuration.
func MemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.DSN = ":memory:"
	return cfg
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("ledger index dsn must be set")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("ledger index max_open_conns must not be negative")
	}
	return nil
}

func (c Config) inMemory() bool {
	return c.Driver == DriverSQLite && (c.DSN == ":memory:" || c.DSN == "file::memory:")
}
