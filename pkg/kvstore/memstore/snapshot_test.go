// SPDX-License-Identifier: Apache-2.0

package memstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
)

func TestSaveAndLoadSnapshotRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	txn, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, txn.Put(ctx, []byte("b"), []byte("2")))
	require.NoError(t, txn.Commit(ctx))

	path := filepath.Join(t.TempDir(), "snapshot.bin")
	require.NoError(t, store.SaveSnapshot(path))

	restored := memstore.New()
	require.NoError(t, restored.LoadSnapshot(path))

	rtxn, err := restored.BeginTx(ctx)
	require.NoError(t, err)
	v, ok, err := rtxn.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	v, ok, err = rtxn.Get(ctx, []byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestLoadSnapshotMissingFileIsNoOp(t *testing.T) {
	store := memstore.New()
	require.NoError(t, store.LoadSnapshot(filepath.Join(t.TempDir(), "missing.bin")))
}
