// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database provides the SQLite database layer.
//
// WRITER MODEL:
//
// All INSERT/UPDATE/DELETE statements issued through ExecContext are funnelled
// through a single writer goroutine so concurrent scheduler passes, series
// monitors and API requests never contend for the SQLite write lock.
// Reads go through the connection pool and run concurrently thanks to WAL.
//
// Statements with a RETURNING clause must use QueryRowContext/QueryContext;
// they run on the pool and rely on busy_timeout for serialization.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"

	"github.com/autobrr/tubarr/internal/dbinterface"
)

// ErrClosing is returned for writes submitted after Close was called.
var ErrClosing = errors.New("db stopping")

type writeReq struct {
	ctx   context.Context
	query string
	args  []any
	resCh chan writeRes
}

type writeRes struct {
	result sql.Result
	err    error
}

type DB struct {
	path      string
	conn      *sql.DB   // connection pool for reads
	writeConn *sql.Conn // dedicated connection for write transactions
	writeCh   chan writeReq
	stmts     *ttlcache.Cache[string, *sql.Stmt]

	writesTotal atomic.Uint64
	writeErrors atomic.Uint64

	stop      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
	closing   atomic.Bool
	closeErr  error
}

// Tx runs statements inside a transaction, reusing the cached prepared
// statement when there is one.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// stmt binds the cached statement for query to the transaction. The caller
// closes it; nil means the query runs unprepared.
func (t *Tx) stmt(ctx context.Context, query string) *sql.Stmt {
	cached, err := t.db.getStmt(ctx, query)
	if err != nil {
		return nil
	}
	return t.tx.StmtContext(ctx, cached)
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt := t.stmt(ctx, query)
	if stmt == nil {
		return t.tx.ExecContext(ctx, query, args...)
	}
	defer stmt.Close()
	return stmt.ExecContext(ctx, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt := t.stmt(ctx, query)
	if stmt == nil {
		return t.tx.QueryContext(ctx, query, args...)
	}
	defer stmt.Close()
	return stmt.QueryContext(ctx, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt := t.stmt(ctx, query)
	if stmt == nil {
		return t.tx.QueryRowContext(ctx, query, args...)
	}
	defer stmt.Close()
	return stmt.QueryRowContext(ctx, args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

const (
	defaultBusyTimeout       = 5 * time.Second
	defaultBusyTimeoutMillis = int(defaultBusyTimeout / time.Millisecond)
	connectionSetupTimeout   = 5 * time.Second
	writeChannelBuffer       = 256
)

var driverInit sync.Once

type pragmaExecFn func(ctx context.Context, stmt string) error

func registerConnectionHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			return applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
				_, err := conn.ExecContext(ctx, stmt, nil)
				if err != nil {
					return fmt.Errorf("connection hook exec %q: %w", stmt, err)
				}
				return nil
			})
		})
	})
}

func applyConnectionPragmas(ctx context.Context, exec pragmaExecFn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMillis),
	}

	for _, pragma := range pragmas {
		if err := exec(ctx, pragma); err != nil {
			return fmt.Errorf("apply connection pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func newStmtCache() *ttlcache.Cache[string, *sql.Stmt] {
	stmtOpts := ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(5 * time.Minute).
		SetDeallocationFunc(func(k string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
			if s != nil {
				_ = s.Close()
			}
		})

	return ttlcache.New(stmtOpts)
}

// New opens (creating if needed) the SQLite database at databasePath, applies
// pending migrations and starts the writer goroutine. A failure here is the only
// fatal store error: callers are expected to abort startup.
func New(databasePath string) (*DB, error) {
	log.Info().Str("path", databasePath).Msg("Opening database")

	if err := os.MkdirAll(filepath.Dir(databasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	registerConnectionHook()

	conn, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", databasePath, err)
	}

	db := &DB{
		conn:    conn,
		path:    databasePath,
		writeCh: make(chan writeReq, writeChannelBuffer),
		stmts:   newStmtCache(),
		stop:    make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()

	if err := db.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	db.writerWG.Add(1)
	go db.writerLoop()

	log.Info().Str("path", databasePath).Msg("Database ready")
	return db, nil
}

// init migrates on a single connection so every statement sees the new
// schema, then widens the pool and pins the writer connection.
func (db *DB) init(ctx context.Context) error {
	db.conn.SetMaxOpenConns(1)
	db.conn.SetMaxIdleConns(1)

	if err := applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
		_, err := db.conn.ExecContext(ctx, stmt)
		return err
	}); err != nil {
		return err
	}

	if err := db.migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	db.conn.SetMaxOpenConns(0)
	db.conn.SetMaxIdleConns(2)

	writeConn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire write connection: %w", err)
	}
	db.writeConn = writeConn
	return nil
}

// getStmt returns a prepared statement for the given query, preparing and
// caching it if necessary. Statements are cached with TTL and closed on eviction.
func (db *DB) getStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, found := db.stmts.Get(query); found && s != nil {
		return s, nil
	}

	s, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	db.stmts.Set(query, s, ttlcache.DefaultTTL)

	return s, nil
}

// isWriteQuery reports whether the first keyword of query mutates data.
func isWriteQuery(query string) bool {
	q := strings.TrimLeftFunc(query, unicode.IsSpace)
	if q == "" {
		return false
	}

	upper := strings.ToUpper(q)
	return strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "UPSERT") ||
		strings.HasPrefix(upper, "REPLACE") ||
		strings.HasPrefix(upper, "DELETE")
}

// ExecContext routes write queries through the single writer goroutine.
// Do NOT use this for queries with RETURNING clauses.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !isWriteQuery(query) {
		stmt, err := db.getStmt(ctx, query)
		if err != nil {
			return db.conn.ExecContext(ctx, query, args...)
		}
		return stmt.ExecContext(ctx, args...)
	}

	if db.closing.Load() {
		return nil, ErrClosing
	}

	resCh := make(chan writeRes, 1)
	req := writeReq{ctx: ctx, query: query, args: args, resCh: resCh}
	select {
	case db.writeCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-db.stop:
		return nil, ErrClosing
	}

	select {
	case res := <-resCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writerLoop processes write requests sequentially and drains the queue on stop.
func (db *DB) writerLoop() {
	defer db.writerWG.Done()

	for {
		select {
		case req := <-db.writeCh:
			db.processWrite(req)
		case <-db.stop:
			for {
				select {
				case req := <-db.writeCh:
					db.processWrite(req)
				default:
					return
				}
			}
		}
	}
}

func (db *DB) processWrite(req writeReq) {
	var (
		res sql.Result
		err error
	)

	switch stmt, prepErr := db.getStmt(req.ctx, req.query); {
	case req.ctx.Err() != nil:
		err = req.ctx.Err()
	case prepErr != nil:
		res, err = db.conn.ExecContext(req.ctx, req.query, req.args...)
	default:
		res, err = stmt.ExecContext(req.ctx, req.args...)
	}

	db.writesTotal.Add(1)
	if err != nil {
		db.writeErrors.Add(1)
	}

	select {
	case req.resCh <- writeRes{result: res, err: err}:
	default:
	}
}

// QueryContext uses the reader pool and prepared statements
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

// QueryRowContext uses the reader pool and prepared statements
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// BeginTx starts a transaction. Read-only transactions use the pool, write
// transactions use the dedicated write connection.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (dbinterface.TxQuerier, error) {
	var (
		tx  *sql.Tx
		err error
	)

	if opts != nil && opts.ReadOnly {
		tx, err = db.conn.BeginTx(ctx, opts)
	} else {
		tx, err = db.writeConn.BeginTx(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	return &Tx{tx: tx, db: db}, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// QueueDepth returns the number of writes waiting for the writer goroutine.
func (db *DB) QueueDepth() int {
	return len(db.writeCh)
}

// WriterStats returns the cumulative number of writes processed and failed.
func (db *DB) WriterStats() (total, failed uint64) {
	return db.writesTotal.Load(), db.writeErrors.Load()
}

func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
		defer cancel()
		if _, err := db.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			log.Warn().Err(err).Msg("failed to run PRAGMA optimize during close")
		}

		db.closing.Store(true)
		close(db.stop)
		db.writerWG.Wait()

		db.stmts.Close()

		if db.writeConn != nil {
			if err := db.writeConn.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close write connection")
			}
		}

		db.closeErr = db.conn.Close()
	})

	return db.closeErr
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
