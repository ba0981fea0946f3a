package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/acquire"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger/history"
	"github.com/LeJamon/goXRPLsync/internal/core/validations"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/logging"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/ledgersync"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/wsnet"
	"github.com/LeJamon/goXRPLsync/internal/storage/ledgerindex"
	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore"
)

// Config represents the complete xrplsyncd configuration.
type Config struct {
	JobQueue      JobQueueConfig      `toml:"job_queue" mapstructure:"job_queue"`
	Acquire       acquire.Config      `toml:"acquire" mapstructure:"acquire"`
	Validations   ValidationsConfig   `toml:"validations" mapstructure:"validations"`
	LedgerHistory LedgerHistoryConfig `toml:"ledger_history" mapstructure:"ledger_history"`
	NodeDB        NodeDBConfig        `toml:"node_db" mapstructure:"node_db"`
	LedgerIndex   ledgerindex.Config  `toml:"ledger_index" mapstructure:"ledger_index"`
	Peer          wsnet.Config        `toml:"peer" mapstructure:"peer"`
	LedgerSync    ledgersync.Config   `toml:"ledgersync" mapstructure:"ledgersync"`
	Metrics       MetricsConfig       `toml:"metrics" mapstructure:"metrics"`
	Logging       logging.Config      `toml:"logging" mapstructure:"logging"`

	// Internal fields
	configPath string
}

type JobQueueConfig struct {
	Workers       int `toml:"workers" mapstructure:"workers"`
	MaxQueueDepth int `toml:"max_queue_depth" mapstructure:"max_queue_depth"`
}

// ValidationsConfig holds the tracker's retention settings and the trusted
// validator list.
type ValidationsConfig struct {
	Quorum     uint64             `toml:"quorum" mapstructure:"quorum"`
	Freshness  time.Duration      `toml:"freshness" mapstructure:"freshness"`
	WindowSize uint32             `toml:"window_size" mapstructure:"window_size"`
	Trusted    []TrustedValidator `toml:"trusted" mapstructure:"trusted"`
}

type LedgerHistoryConfig struct {
	CacheSize int           `toml:"cache_size" mapstructure:"cache_size"`
	Timeout   time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// NodeDBConfig selects the node store backend.
type NodeDBConfig struct {
	Type          string        `toml:"type" mapstructure:"type"`
	Path          string        `toml:"path" mapstructure:"path"`
	CacheSize     int           `toml:"cache_size" mapstructure:"cache_size"`
	CacheAge      time.Duration `toml:"cache_age" mapstructure:"cache_age"`
	NegativeAge   time.Duration `toml:"negative_age" mapstructure:"negative_age"`
	NegativeSize  int           `toml:"negative_size" mapstructure:"negative_size"`
	Compressor    string        `toml:"compressor" mapstructure:"compressor"`
	CreateMissing bool          `toml:"create_if_missing" mapstructure:"create_if_missing"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
	Path    string `toml:"path" mapstructure:"path"`
}

// JobQueueSettings converts the section to the job queue's own config.
func (c *Config) JobQueueSettings() jobqueue.Config {
	return jobqueue.Config{
		Workers:       c.JobQueue.Workers,
		MaxQueueDepth: c.JobQueue.MaxQueueDepth,
	}
}

// ValidationSettings converts the section to the tracker config.
func (c *Config) ValidationSettings() validations.Config {
	return validations.Config{
		Quorum:     c.Validations.Quorum,
		Freshness:  c.Validations.Freshness,
		WindowSize: c.Validations.WindowSize,
	}
}

// HistorySettings returns the history config without its persistent layers,
// which the caller attaches once the stores are open.
func (c *Config) HistorySettings() history.Config {
	return history.Config{
		CacheSize: c.LedgerHistory.CacheSize,
		Timeout:   c.LedgerHistory.Timeout,
	}
}

// NodeStoreSettings converts [node_db] to a node store config. Relative
// paths are resolved against the config file's directory.
func (c *Config) NodeStoreSettings() *nodestore.Config {
	return &nodestore.Config{
		Backend:         c.NodeDB.Type,
		Path:            c.resolvePath(c.NodeDB.Path),
		CacheSize:       c.NodeDB.CacheSize,
		CacheTTL:        c.NodeDB.CacheAge,
		NegativeTTL:     c.NodeDB.NegativeAge,
		NegativeMaxSize: c.NodeDB.NegativeSize,
		Compressor:      c.NodeDB.Compressor,
		CreateIfMissing: c.NodeDB.CreateMissing,
	}
}

// TrustedSet decodes the trusted validator list. Validate has already
// checked every entry, so decoding cannot fail here.
func (c *Config) TrustedSet() validations.TrustedSet {
	ts := make(validations.TrustedSet, len(c.Validations.Trusted))
	for _, tv := range c.Validations.Trusted {
		id, err := tv.NodeID()
		if err != nil {
			continue
		}
		ts[id] = tv.effectiveWeight()
	}
	return ts
}

// GetConfigPath returns the path the config was loaded from.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.configPath), p)
}

// Summary renders the effective settings for `config check`.
func (c *Config) Summary() []string {
	return []string{
		fmt.Sprintf("job_queue.workers = %d", c.JobQueue.Workers),
		fmt.Sprintf("acquire.max_retries = %d", c.Acquire.MaxRetries),
		fmt.Sprintf("acquire.reacquire_interval = %s", c.Acquire.ReacquireInterval),
		fmt.Sprintf("validations.quorum = %d", c.Validations.Quorum),
		fmt.Sprintf("validations.window_size = %d", c.Validations.WindowSize),
		fmt.Sprintf("validations.trusted = %d", len(c.Validations.Trusted)),
		fmt.Sprintf("node_db.type = %s", c.NodeDB.Type),
		fmt.Sprintf("node_db.path = %s", c.resolvePath(c.NodeDB.Path)),
		fmt.Sprintf("ledger_index.driver = %s", c.LedgerIndex.Driver),
		fmt.Sprintf("peer.listen = %s", c.Peer.Listen),
		fmt.Sprintf("peer.ips = %d", len(c.Peer.Peers)),
		fmt.Sprintf("metrics.listen = %s", c.Metrics.Listen),
		fmt.Sprintf("logging.level = %s", c.Logging.Level),
	}
}
