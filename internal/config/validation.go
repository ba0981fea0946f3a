package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/LeJamon/goXRPLsync/internal/logging"
)

// ValidateConfig performs validation on the complete configuration
func ValidateConfig(config *Config) error {
	if config.JobQueue.Workers < 0 || config.JobQueue.MaxQueueDepth < 0 {
		return fmt.Errorf("job_queue: workers and max_queue_depth must not be negative")
	}

	if err := validateAcquire(config); err != nil {
		return fmt.Errorf("acquire validation failed: %w", err)
	}

	if err := validateValidations(&config.Validations); err != nil {
		return fmt.Errorf("validations validation failed: %w", err)
	}

	if config.LedgerHistory.CacheSize <= 0 {
		return fmt.Errorf("ledger_history.cache_size must be positive, got %d", config.LedgerHistory.CacheSize)
	}

	if err := config.NodeStoreSettings().Validate(); err != nil {
		return fmt.Errorf("node_db validation failed: %w", err)
	}

	if err := config.LedgerIndex.Validate(); err != nil {
		return fmt.Errorf("ledger_index validation failed: %w", err)
	}

	if err := config.Peer.Validate(); err != nil {
		return fmt.Errorf("peer validation failed: %w", err)
	}
	for i, addr := range config.Peer.Peers {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("peer validation failed: ips[%d] %q: %w", i, addr, err)
		}
	}

	if config.LedgerSync.MaxReplyNodes <= 0 || config.LedgerSync.RequestTimeout <= 0 {
		return fmt.Errorf("ledgersync: max_reply_nodes and request_timeout must be positive")
	}

	if err := validateMetrics(&config.Metrics); err != nil {
		return fmt.Errorf("metrics validation failed: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	return nil
}

func validateAcquire(config *Config) error {
	a := config.Acquire
	if a.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got %d", a.MaxRetries)
	}
	if a.RetryInterval <= 0 || a.AcquireDeadline <= 0 || a.ReacquireInterval <= 0 {
		return fmt.Errorf("retry_interval, acquire_deadline and reacquire_interval must be positive")
	}
	if a.AcquireDeadline < a.RetryInterval {
		return fmt.Errorf("acquire_deadline (%s) is shorter than retry_interval (%s)", a.AcquireDeadline, a.RetryInterval)
	}
	if a.PeersPerRound <= 0 || a.MaxRequestNodes <= 0 {
		return fmt.Errorf("peers_per_round and max_request_nodes must be positive")
	}
	if a.MaxPendingNodes < 0 || a.FailureCacheSize < 0 {
		return fmt.Errorf("max_pending_nodes and failure_cache_size must not be negative")
	}
	return nil
}

func validateValidations(v *ValidationsConfig) error {
	if v.Freshness <= 0 {
		return fmt.Errorf("freshness must be positive, got %s", v.Freshness)
	}
	if v.WindowSize == 0 {
		return fmt.Errorf("window_size must be positive")
	}
	if err := validateTrusted(v.Trusted); err != nil {
		return err
	}

	var total uint64
	for _, tv := range v.Trusted {
		total += tv.effectiveWeight()
	}
	if v.Quorum > 0 && v.Quorum > total {
		return fmt.Errorf("quorum %d exceeds total trusted weight %d", v.Quorum, total)
	}
	return nil
}

func validateMetrics(m *MetricsConfig) error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return fmt.Errorf("listen %q: %w", m.Listen, err)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with '/', got %q", m.Path)
	}
	return nil
}

func validateLogging(l *logging.Config) error {
	if l.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
			return fmt.Errorf("level %q: %w", l.Level, err)
		}
	}
	switch strings.ToLower(l.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("format must be console or json, got %q", l.Format)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("rotation settings must not be negative")
	}
	return nil
}
