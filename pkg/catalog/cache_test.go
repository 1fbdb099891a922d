// SPDX-License-Identifier: Apache-2.0

package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/catalog"
)

func TestLiveTableCountTracksCreateAndDrop(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	namespace := "cache_test_ns"
	schema := sampleSchema()

	require.NoError(t, catalog.CreateTable(ctx, txn, namespace, schema))
	count, err := catalog.LiveTableCount(ctx, txn, namespace)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, catalog.DropTable(ctx, txn, namespace, schema))
	count, err = catalog.LiveTableCount(ctx, txn, namespace)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}
