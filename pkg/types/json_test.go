// SPDX-License-Identifier: Apache-2.0

package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/types"
)

func TestToJSONCellDistinguishesNullFromValue(t *testing.T) {
	nullCell := types.ToJSONCell(types.Null())
	require.True(t, nullCell.IsNull())

	presentCell := types.ToJSONCell(types.Int32(7))
	v, err := presentCell.Get()
	require.NoError(t, err)
	require.Equal(t, "7", v)
}

func TestRowToJSONCells(t *testing.T) {
	row := types.Row{types.Text("a"), types.Null(), types.Boolean(true)}
	cells := types.RowToJSONCells(row)
	require.Len(t, cells, 3)
	require.True(t, cells[1].IsNull())
	v, err := cells[2].Get()
	require.NoError(t, err)
	require.Equal(t, "t", v)
}
