// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"testing"

	"github.com/kvpg/kvpg/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNamespaceRoundtrip(t *testing.T) {
	cases := []string{"", "tenant-1", "a_b_c"}
	keys := [][]byte{[]byte("_sys_next_table_id"), []byte("t_\x00\x00\x00\x00\x00\x00\x00\x01_x"), []byte("")}

	for _, ns := range cases {
		for _, k := range keys {
			applied := ApplyNamespace(ns, k)
			stripped, err := StripNamespace(ns, applied)
			require.NoError(t, err)
			require.Equal(t, k, stripped)
		}
	}
}

func TestDataRangeCoversExactlyOneTable(t *testing.T) {
	start := DataRangeStart(5)
	end := DataRangeEnd(5)
	key := DataKey(5, []types.Value{types.Int32(1)})

	require.True(t, string(start) <= string(key))
	require.True(t, string(key) < string(end))

	otherTableKey := DataKey(6, []types.Value{types.Int32(1)})
	require.False(t, string(otherTableKey) < string(end))
}

func TestNonUniqueIndexKeyRecoversPK(t *testing.T) {
	idxVals := []types.Value{types.Text("alice")}
	pk := []types.Value{types.Int64(42)}

	key := NonUniqueIndexKey(1, 2, idxVals, pk)
	gotPK, err := SplitNonUniqueIndexKey(key, 1, 2, idxVals)
	require.NoError(t, err)

	decoded, err := types.DecodeRow(gotPK)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.True(t, decoded[0].Equal(pk[0]))
}

func TestUniqueIndexKeyDeterministic(t *testing.T) {
	idxVals := []types.Value{types.Text("a"), types.Int32(1)}
	k1 := UniqueIndexKey(1, 2, idxVals)
	k2 := UniqueIndexKey(1, 2, idxVals)
	require.Equal(t, k1, k2)

	other := UniqueIndexKey(1, 2, []types.Value{types.Text("b"), types.Int32(1)})
	require.NotEqual(t, k1, other)
}
