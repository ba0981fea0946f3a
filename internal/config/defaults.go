package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/LeJamon/goXRPLsync/internal/core/acquire"
	"github.com/LeJamon/goXRPLsync/internal/core/validations"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/ledgersync"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/wsnet"
	"github.com/LeJamon/goXRPLsync/internal/storage/ledgerindex"
	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore"
)

const (
	DefaultHistoryCacheSize = 256
	DefaultMetricsListen    = "127.0.0.1:9102"
)

// setDefaults registers every key so that env overrides work even when the
// file omits a section.
func setDefaults(v *viper.Viper) {
	// Job queue; zero workers means one per CPU.
	v.SetDefault("job_queue.workers", 0)
	v.SetDefault("job_queue.max_queue_depth", 4096)

	// Acquisition
	acq := acquire.DefaultConfig()
	v.SetDefault("acquire.max_retries", acq.MaxRetries)
	v.SetDefault("acquire.retry_interval", acq.RetryInterval)
	v.SetDefault("acquire.acquire_deadline", acq.AcquireDeadline)
	v.SetDefault("acquire.reacquire_interval", acq.ReacquireInterval)
	v.SetDefault("acquire.peers_per_round", acq.PeersPerRound)
	v.SetDefault("acquire.max_request_nodes", acq.MaxRequestNodes)
	v.SetDefault("acquire.max_pending_nodes", acq.MaxPendingNodes)
	v.SetDefault("acquire.failure_cache_size", acq.FailureCacheSize)

	// Validations; quorum 0 disables full validation until configured.
	v.SetDefault("validations.quorum", 0)
	v.SetDefault("validations.freshness", validations.DefaultFreshness)
	v.SetDefault("validations.window_size", validations.DefaultWindowSize)

	v.SetDefault("ledger_history.cache_size", DefaultHistoryCacheSize)
	v.SetDefault("ledger_history.timeout", 5*time.Second)

	// Node store
	ns := nodestore.DefaultConfig()
	v.SetDefault("node_db.type", ns.Backend)
	v.SetDefault("node_db.path", ns.Path)
	v.SetDefault("node_db.cache_size", ns.CacheSize)
	v.SetDefault("node_db.cache_age", ns.CacheTTL)
	v.SetDefault("node_db.negative_age", ns.NegativeTTL)
	v.SetDefault("node_db.negative_size", ns.NegativeMaxSize)
	v.SetDefault("node_db.compressor", ns.Compressor)
	v.SetDefault("node_db.create_if_missing", ns.CreateIfMissing)

	// Ledger header index
	li := ledgerindex.DefaultConfig()
	v.SetDefault("ledger_index.driver", li.Driver)
	v.SetDefault("ledger_index.dsn", li.DSN)
	v.SetDefault("ledger_index.max_open_conns", li.MaxOpenConns)
	v.SetDefault("ledger_index.conn_max_lifetime", li.ConnMaxLifetime)
	v.SetDefault("ledger_index.default_timeout", li.DefaultTimeout)

	// Peer overlay
	p := wsnet.DefaultConfig()
	v.SetDefault("peer.listen", p.Listen)
	v.SetDefault("peer.ips", []string{})
	v.SetDefault("peer.max_peers", p.MaxPeers)
	v.SetDefault("peer.request_rate", p.RequestRate)
	v.SetDefault("peer.request_burst", p.RequestBurst)
	v.SetDefault("peer.send_buffer_size", p.SendBufferSize)
	v.SetDefault("peer.ping_interval", p.PingInterval)
	v.SetDefault("peer.write_timeout", p.WriteTimeout)
	v.SetDefault("peer.connect_timeout", p.ConnectTimeout)
	v.SetDefault("peer.redial_interval", p.RedialInterval)

	ls := ledgersync.DefaultConfig()
	v.SetDefault("ledgersync.max_query_depth", ls.MaxQueryDepth)
	v.SetDefault("ledgersync.max_reply_nodes", ls.MaxReplyNodes)
	v.SetDefault("ledgersync.request_timeout", ls.RequestTimeout)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
}
