// Package ledgerindex keeps a relational index of validated ledger headers
// so ledger history can resolve cold lookups by sequence or by hash.
package ledgerindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Record is one indexed ledger header.
type Record struct {
	Seq        uint32
	Hash       types.Hash256
	ParentHash types.Hash256
	CloseTime  time.Time
	Validated  bool
}

// Index is a ledger header index over database/sql.
type Index struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
	closed  atomic.Bool
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(ErrorTypeConnection, "open", "invalid configuration", err)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, newError(ErrorTypeConnection, "open", "failed to open database", err)
	}
	if cfg.inMemory() {
		// Each sqlite connection gets its own private memory database.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newError(ErrorTypeConnection, "open", "failed to ping database", err)
	}

	idx := &Index{db: db, driver: cfg.Driver, timeout: cfg.DefaultTimeout}
	if idx.timeout <= 0 {
		idx.timeout = 10 * time.Second
	}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) migrate(ctx context.Context) error {
	blob := "BLOB"
	if i.driver == DriverPostgres {
		blob = "BYTEA"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ledgers (
			ledger_seq   BIGINT PRIMARY KEY,
			ledger_hash  %[1]s NOT NULL UNIQUE,
			prev_hash    %[1]s NOT NULL,
			closing_time BIGINT NOT NULL,
			validated    INTEGER NOT NULL DEFAULT 0
		)`, blob),
	}
	if i.driver == DriverSQLite {
		stmts = append(stmts, "PRAGMA busy_timeout=5000")
	}
	for _, stmt := range stmts {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return newError(ErrorTypeSchema, "migrate", "failed to create schema", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (i *Index) rebind(query string) string {
	if i.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (i *Index) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, i.timeout)
}

// Put inserts or replaces the header for rec.Seq. Re-putting the same
// ledger never clears its validated flag.
func (i *Index) Put(ctx context.Context, rec Record) error {
	if i.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return newError(ErrorTypeQuery, "put", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	// A hash may only be indexed once; a re-indexed ledger moves its row.
	if _, err := tx.ExecContext(ctx, i.rebind(`DELETE FROM ledgers WHERE ledger_hash = ? AND ledger_seq <> ?`),
		rec.Hash[:], int64(rec.Seq)); err != nil {
		return newError(ErrorTypeQuery, "put", "failed to clear stale hash", err)
	}
	_, err = tx.ExecContext(ctx, i.rebind(`INSERT INTO ledgers (ledger_seq, ledger_hash, prev_hash, closing_time, validated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ledger_seq) DO UPDATE SET
			validated = CASE WHEN ledgers.ledger_hash = excluded.ledger_hash AND ledgers.validated = 1
				THEN 1 ELSE excluded.validated END,
			ledger_hash = excluded.ledger_hash,
			prev_hash = excluded.prev_hash,
			closing_time = excluded.closing_time`),
		int64(rec.Seq), rec.Hash[:], rec.ParentHash[:], rec.CloseTime.Unix(), boolInt(rec.Validated))
	if err != nil {
		return newError(ErrorTypeQuery, "put", "failed to upsert ledger", err)
	}
	if err := tx.Commit(); err != nil {
		return newError(ErrorTypeQuery, "put", "failed to commit", err)
	}
	return nil
}

// MarkValidated flags the ledger with hash as fully validated. It reports
// ErrLedgerNotFound when the ledger is not indexed.
func (i *Index) MarkValidated(ctx context.Context, hash types.Hash256) error {
	if i.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	res, err := i.db.ExecContext(ctx, i.rebind("UPDATE ledgers SET validated = 1 WHERE ledger_hash = ?"), hash[:])
	if err != nil {
		return newError(ErrorTypeQuery, "mark_validated", "failed to update ledger", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return newError(ErrorTypeData, "mark_validated", "ledger not found", ErrLedgerNotFound)
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

const selectRecord = `SELECT ledger_seq, ledger_hash, prev_hash, closing_time, validated FROM ledgers`

func (i *Index) queryOne(ctx context.Context, op, where string, arg any) (Record, error) {
	if i.closed.Load() {
		return Record{}, ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	row := i.db.QueryRowContext(ctx, i.rebind(selectRecord+" WHERE "+where), arg)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, newError(ErrorTypeData, op, "ledger not found", ErrLedgerNotFound)
	}
	if err != nil {
		return Record{}, newError(ErrorTypeQuery, op, "failed to query ledger", err)
	}
	return rec, nil
}

// BySeq returns the header indexed at seq.
func (i *Index) BySeq(ctx context.Context, seq uint32) (Record, error) {
	return i.queryOne(ctx, "by_seq", "ledger_seq = ?", int64(seq))
}

// ByHash returns the header with the given hash.
func (i *Index) ByHash(ctx context.Context, hash types.Hash256) (Record, error) {
	return i.queryOne(ctx, "by_hash", "ledger_hash = ?", hash[:])
}

// Latest returns the header with the highest sequence.
func (i *Index) Latest(ctx context.Context) (Record, error) {
	if i.closed.Load() {
		return Record{}, ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	rec, err := scanRecord(i.db.QueryRowContext(ctx, selectRecord+" ORDER BY ledger_seq DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, newError(ErrorTypeData, "latest", "index is empty", ErrLedgerNotFound)
	}
	if err != nil {
		return Record{}, newError(ErrorTypeQuery, "latest", "failed to query ledger", err)
	}
	return rec, nil
}

// Range returns headers with min <= seq <= max in ascending order.
func (i *Index) Range(ctx context.Context, min, max uint32) ([]Record, error) {
	if i.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	rows, err := i.db.QueryContext(ctx,
		i.rebind(selectRecord+" WHERE ledger_seq >= ? AND ledger_seq <= ? ORDER BY ledger_seq"),
		int64(min), int64(max))
	if err != nil {
		return nil, newError(ErrorTypeQuery, "range", "failed to query ledgers", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, newError(ErrorTypeData, "range", "failed to scan ledger", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newError(ErrorTypeQuery, "range", "failed to iterate ledgers", err)
	}
	return out, nil
}

// DeleteBefore removes headers with seq < cutoff and returns how many went.
func (i *Index) DeleteBefore(ctx context.Context, cutoff uint32) (int64, error) {
	if i.closed.Load() {
		return 0, ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	res, err := i.db.ExecContext(ctx, i.rebind("DELETE FROM ledgers WHERE ledger_seq < ?"), int64(cutoff))
	if err != nil {
		return 0, newError(ErrorTypeQuery, "delete_before", "failed to delete ledgers", err)
	}
	return res.RowsAffected()
}

// Count returns the number of indexed headers.
func (i *Index) Count(ctx context.Context) (int64, error) {
	if i.closed.Load() {
		return 0, ErrClosed
	}
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledgers").Scan(&n); err != nil {
		return 0, newError(ErrorTypeQuery, "count", "failed to count ledgers", err)
	}
	return n, nil
}

func (i *Index) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		seq         int64
		hash, prev  []byte
		closingTime int64
		validated   int64
	)
	if err := s.Scan(&seq, &hash, &prev, &closingTime, &validated); err != nil {
		return Record{}, err
	}
	rec := Record{Seq: uint32(seq), CloseTime: time.Unix(closingTime, 0).UTC(), Validated: validated != 0}
	var err error
	if rec.Hash, err = types.Hash256FromBytes(hash); err != nil {
		return Record{}, err
	}
	if rec.ParentHash, err = types.Hash256FromBytes(prev); err != nil {
		return Record{}, err
	}
	return rec, nil
}
