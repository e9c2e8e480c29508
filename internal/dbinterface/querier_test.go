// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type sqlTx struct {
	*sql.Tx
}

func TestSQLTypesSatisfyQuerier(t *testing.T) {
	t.Parallel()

	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	var q Querier = conn
	_, err = q.ExecContext(t.Context(), "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	tx, err := conn.BeginTx(t.Context(), nil)
	require.NoError(t, err)

	var txq TxQuerier = sqlTx{Tx: tx}
	_, err = txq.ExecContext(t.Context(), "INSERT INTO t (v) VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, txq.Commit())

	var count int
	require.NoError(t, q.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM t").Scan(&count))
	require.Equal(t, 1, count)
}
