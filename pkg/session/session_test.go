// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
	"github.com/kvpg/kvpg/pkg/session"
)

func TestBeginCommitRollback(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sess := session.New(store, "", "admin")
	require.Equal(t, session.Idle, sess.State())

	require.NoError(t, sess.Commit(ctx)) // no-op while Idle
	require.NoError(t, sess.Rollback(ctx))

	require.NoError(t, sess.Begin(ctx, true))
	require.Equal(t, session.Active, sess.State())

	require.NoError(t, sess.Begin(ctx, true)) // nested BEGIN absorbed
	require.Equal(t, session.Active, sess.State())

	_, ok := sess.GetMutTxn()
	require.True(t, ok)

	require.NoError(t, sess.Commit(ctx))
	require.Equal(t, session.Idle, sess.State())

	_, ok = sess.GetMutTxn()
	require.False(t, ok)
}

func TestCloseRollsBackActiveTransaction(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sess := session.New(store, "", "admin")
	require.NoError(t, sess.Begin(ctx, true))
	require.NoError(t, sess.Close(ctx))
	require.Equal(t, session.Idle, sess.State())
}
