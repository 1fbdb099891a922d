// SPDX-License-Identifier: Apache-2.0

//go:build integration

// This file is grounded on pgroll's pkg/testutils.SharedTestMain: a real
// Postgres container started via testcontainers-go's postgres module,
// used here as a protocol-compatibility oracle. jackc/pgx/v5 is the
// client driver for both sides (the reference container and kvpgserver
// itself), rather than mixing in database/sql+lib/pq the way the teacher
// does, since here pgx is already kvpg's sole intended wire-protocol test
// client and there's no reason to carry a second driver just for the
// container side.
package wire_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
	"github.com/kvpg/kvpg/pkg/wire"
)

// startKvpg boots kvpgserver's own wire.Server on an ephemeral loopback
// port, bootstraps the default admin user, and returns its address.
func startKvpg(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	txn, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, auth.BootstrapAdmin(ctx, txn, ""))
	require.NoError(t, txn.Commit(ctx))

	pool := kvstore.NewPool(func(context.Context, string) (kvstore.Store, error) { return store, nil }, nil)
	t.Cleanup(func() { pool.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := &wire.Server{Pool: pool, Keyspace: "default"}
	srvCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go srv.ListenAndServe(srvCtx, addr)

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	return addr
}

func startReferencePostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { ctr.Terminate(ctx) })

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

// TestSelectParityWithRealPostgres runs the same CREATE TABLE/INSERT/
// SELECT sequence against kvpgserver and against a real Postgres
// container dialed with the same driver, asserting both return the same
// result set for a plain text column. This is a parity spot-check, not a
// full wire-protocol conformance suite: kvpgserver only implements the
// simple query subprotocol, so statements are sent unparameterized.
func TestSelectParityWithRealPostgres(t *testing.T) {
	ctx := context.Background()
	kvpgAddr := startKvpg(t)
	pgConnStr := startReferencePostgres(t)

	const ddl = "CREATE TABLE parity_check (id INT PRIMARY KEY, label TEXT)"
	const ins = "INSERT INTO parity_check (id, label) VALUES (1, 'alpha'), (2, 'beta')"
	const sel = "SELECT label FROM parity_check ORDER BY id"

	kvpgRows := runAgainst(t, fmt.Sprintf("postgres://admin:admin@%s/default?sslmode=disable", kvpgAddr), ddl, ins, sel)
	pgRows := runAgainst(t, pgConnStr, ddl, ins, sel)

	require.Equal(t, []string{"alpha", "beta"}, pgRows)
	require.Equal(t, pgRows, kvpgRows)
}

func runAgainst(t *testing.T, connStr string, stmts ...string) []string {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer conn.Close(ctx)

	var labels []string
	for i, stmt := range stmts {
		rows, err := conn.Query(ctx, stmt)
		require.NoError(t, err)
		if i == len(stmts)-1 {
			for rows.Next() {
				var label string
				require.NoError(t, rows.Scan(&label))
				labels = append(labels, label)
			}
		}
		rows.Close()
		require.NoError(t, rows.Err())
	}
	return labels
}
