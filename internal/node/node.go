// Package node assembles the sync daemon: storage, ledger history, the
// validation tracker, the acquire master and the peer overlay, all driven
// by one job queue.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/goXRPLsync/internal/config"
	"github.com/LeJamon/goXRPLsync/internal/core/acquire"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger/history"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/core/validations"
	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/logging"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/ledgersync"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/scoring"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/wsnet"
	"github.com/LeJamon/goXRPLsync/internal/storage/ledgerindex"
	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// SweepInterval is how often expired validations, stale requests and cache
// entries are dropped.
const SweepInterval = 10 * time.Second

// Node owns every long-lived component.
type Node struct {
	cfg *config.Config

	jobs    *jobqueue.JobQueue
	nodeDB  *nodestore.DatabaseImpl
	index   *ledgerindex.Index
	history *history.History
	tracker *validations.Tracker
	master  *acquire.Master
	overlay *wsnet.Overlay
	board   *scoring.Board
	handler *ledgersync.Handler

	registry *prometheus.Registry
	log      zerolog.Logger
}

// Status is a point-in-time summary for logs.
type Status struct {
	Peers           int
	Acquiring       int
	PendingRequests int
	Validators      int
	HighestSeq      uint32
	History         history.Stats
}

// New opens the stores and wires the components. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Node, error) {
	n := &Node{cfg: cfg, log: logging.Component(logger, "node")}

	n.jobs = jobqueue.New(cfg.JobQueueSettings(), logging.Component(logger, "jobqueue"))

	nsCfg := cfg.NodeStoreSettings()
	if nsCfg.Backend != "memory" {
		if err := os.MkdirAll(filepath.Dir(nsCfg.Path), 0o755); err != nil {
			n.jobs.Shutdown()
			return nil, fmt.Errorf("create node_db directory: %w", err)
		}
	}
	db, err := nodestore.Open(nsCfg)
	if err != nil {
		n.jobs.Shutdown()
		return nil, fmt.Errorf("open node store: %w", err)
	}
	n.nodeDB = db

	if dir := sqliteDir(cfg.LedgerIndex); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			n.Close()
			return nil, fmt.Errorf("create ledger_index directory: %w", err)
		}
	}
	idx, err := ledgerindex.Open(ctx, cfg.LedgerIndex)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open ledger index: %w", err)
	}
	n.index = idx

	family := shamap.NewNodeStoreFamily(db, nodestore.NodeAccount)
	hcfg := cfg.HistorySettings()
	hcfg.Family = family
	hcfg.Index = idx
	n.history, err = history.New(hcfg, logging.Component(logger, "history"))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("create ledger history: %w", err)
	}

	n.tracker = validations.New(cfg.ValidationSettings(), crypto.SignatureVerifier{}, logging.Component(logger, "validations"))
	n.tracker.SetTrusted(cfg.TrustedSet())

	n.overlay, err = wsnet.New(cfg.Peer, nil, logging.Component(logger, "overlay"))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("create overlay: %w", err)
	}
	n.board = scoring.NewBoard(n.overlay, n.overlay.Disconnect, logging.Component(logger, "scoring"))
	n.overlay.SetDisconnectHook(n.board.Remove)

	n.handler = ledgersync.NewHandler(cfg.LedgerSync, ledgersync.Deps{
		Sender:      n.overlay,
		Ledgers:     n.history,
		Validations: n.tracker,
		Scheduler:   n.jobs,
		Scores:      n.board,
	}, logging.Component(logger, "ledgersync"))

	n.master = acquire.NewMaster(cfg.Acquire, acquire.Deps{
		Scheduler: n.jobs,
		Requester: n.handler,
		Peers:     n.board,
		Reporter:  n.board,
		Sink:      n.history,
		Family:    family,
	}, logging.Component(logger, "acquire"))

	n.handler.SetDataSink(n.master)
	n.overlay.SetHandler(n.handler)

	n.tracker.SetTrustedCallback(n.onTrustedValidation)
	n.tracker.SetFullyValidatedCallback(n.onFullyValidated)
	n.history.Subscribe(n.onLedgerStored)

	n.registry = prometheus.NewRegistry()
	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, group := range [][]prometheus.Collector{
		jobqueue.Collectors(),
		acquire.Collectors(),
		validations.Collectors(),
		wsnet.Collectors(),
	} {
		for _, c := range group {
			if err := n.registry.Register(c); err != nil {
				n.Close()
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}

	return n, nil
}

// onTrustedValidation starts acquiring a ledger a trusted validator built
// on top of what this node already has.
func (n *Node) onTrustedValidation(v *validations.Validation) {
	if n.history.HasLedger(v.LedgerHash) {
		return
	}
	if _, hi, ok := n.history.CompleteRange(); ok && v.LedgerSeq <= hi {
		return
	}
	if _, err := n.master.GetLedger(v.LedgerHash, v.LedgerSeq); err != nil && !errors.Is(err, acquire.ErrLedgerPending) {
		n.log.Debug().Err(err).Stringer("hash", v.LedgerHash).Uint32("seq", v.LedgerSeq).Msg("Cannot acquire validated ledger")
	}
}

func (n *Node) onFullyValidated(hash types.Hash256, seq uint32) {
	held := n.history.MarkValidated(hash)
	n.log.Info().Stringer("hash", hash).Uint32("seq", seq).Bool("held", held).Msg("Ledger fully validated")
}

// onLedgerStored marks a ledger whose quorum was reached while it was still
// being acquired.
func (n *Node) onLedgerStored(l *ledger.Ledger) {
	if n.tracker.IsFullyValidated(l.Hash()) {
		n.history.MarkValidated(l.Hash())
	}
}

// Run drives the overlay, the acquire timer, housekeeping and the metrics
// endpoint until ctx is cancelled, then releases every resource.
func (n *Node) Run(ctx context.Context) error {
	defer n.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.overlay.Run(gctx) })
	g.Go(func() error { return n.master.Run(gctx) })
	g.Go(func() error { return n.sweepLoop(gctx) })
	if n.cfg.Metrics.Enabled {
		g.Go(func() error { return n.serveMetrics(gctx) })
	}

	n.log.Info().
		Str("peer_listen", n.cfg.Peer.Listen).
		Int("peers_configured", len(n.cfg.Peer.Peers)).
		Int("trusted", len(n.cfg.Validations.Trusted)).
		Msg("Node started")

	return g.Wait()
}

func (n *Node) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.sweep()
		}
	}
}

func (n *Node) sweep() {
	expired := n.tracker.Sweep()
	stale := n.handler.CleanupExpiredRequests()
	if err := n.nodeDB.Sweep(); err != nil {
		n.log.Warn().Err(err).Msg("Node store sweep failed")
	}
	st := n.Status()
	n.log.Debug().
		Int("expired_validations", expired).
		Int("stale_requests", stale).
		Int("peers", st.Peers).
		Int("acquiring", st.Acquiring).
		Uint32("highest_seq", st.HighestSeq).
		Str("complete", st.History.Complete).
		Msg("Sweep")
}

func (n *Node) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(n.cfg.Metrics.Path, promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: n.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	n.log.Info().Str("addr", n.cfg.Metrics.Listen).Str("path", n.cfg.Metrics.Path).Msg("Metrics endpoint started")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops acquisitions and the overlay, drains the job queue and closes
// the stores. It is safe to call more than once.
func (n *Node) Close() {
	if n.master != nil {
		n.master.Stop()
	}
	if n.overlay != nil {
		n.overlay.Stop()
	}
	if n.jobs != nil && !n.jobs.IsStopping() {
		n.jobs.Shutdown()
	}
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.log.Warn().Err(err).Msg("Closing ledger index")
		}
		n.index = nil
	}
	if n.nodeDB != nil {
		if err := n.nodeDB.Close(); err != nil {
			n.log.Warn().Err(err).Msg("Closing node store")
		}
		n.nodeDB = nil
	}
}

// Status reports component counters.
func (n *Node) Status() Status {
	return Status{
		Peers:           n.overlay.PeerCount(),
		Acquiring:       n.master.ActiveCount(),
		PendingRequests: n.handler.PendingRequestCount(),
		Validators:      len(n.tracker.GetCurrentValidators()),
		HighestSeq:      n.tracker.HighestSeq(),
		History:         n.history.Stats(),
	}
}

func (n *Node) History() *history.History { return n.history }
func (n *Node) Tracker() *validations.Tracker { return n.tracker }
func (n *Node) Master() *acquire.Master { return n.master }
func (n *Node) Overlay() *wsnet.Overlay { return n.overlay }
func (n *Node) Registry() *prometheus.Registry { return n.registry }

// sqliteDir returns the directory an on-disk sqlite DSN lives in, or "" when
// there is nothing to create.
func sqliteDir(cfg ledgerindex.Config) string {
	if cfg.Driver != ledgerindex.DriverSQLite {
		return ""
	}
	path := strings.TrimPrefix(cfg.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return filepath.Dir(path)
}
