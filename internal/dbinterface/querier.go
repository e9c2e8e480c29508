// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface holds the query interfaces shared by the database
// package and the stores, so neither has to import the other.
package dbinterface

import (
	"context"
	"database/sql"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *database.DB. Stores take a
// Querier so tests can hand them a plain connection.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type TxQuerier interface {
	Querier
	Commit() error
	Rollback() error
}

// TxBeginner is implemented by *database.DB.
type TxBeginner interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxQuerier, error)
}
