// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestValueRoundtrip(t *testing.T) {
	s := "hello"
	cases := []Value{
		Null(),
		Boolean(true),
		Boolean(false),
		Int32(-42),
		Int64(1 << 40),
		Float64(3.14159),
		Text("hello, world"),
		Bytes([]byte{0, 1, 2, 255}),
		Timestamp(1717171717000),
		Interval(-5000),
		UUIDValue(uuid.New()),
		Array([]Value{Int32(1), Null(), Text("x")}),
		JSON(`{"a":1}`),
		JSONB(`{"a":1}`),
	}
	_ = s

	for _, v := range cases {
		buf := EncodeValue(nil, v)
		got, n, err := DecodeValue(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.True(t, v.Equal(got), "roundtrip mismatch for kind %s", v.Kind)
	}
}

func TestRowRoundtrip(t *testing.T) {
	row := Row{Int32(1), Text("a"), Null(), Array([]Value{Int64(1), Int64(2)})}
	buf := EncodeRow(row)
	got, err := DecodeRow(buf)
	require.NoError(t, err)
	require.Len(t, got, len(row))
	for i := range row {
		require.True(t, row[i].Equal(got[i]))
	}
}

func TestTableSchemaRoundtrip(t *testing.T) {
	def := "0"
	s := &TableSchema{
		Name:    "accounts",
		TableID: 7,
		Columns: []ColumnDef{
			{Name: "id", DataType: DataType{Tag: DataTypeInt64}, Nullable: false, PrimaryKey: true},
			{Name: "balance", DataType: DataType{Tag: DataTypeInt64}, Nullable: false, DefaultExpr: &def},
			{Name: "tags", DataType: ArrayOf(DataType{Tag: DataTypeText}), Nullable: true},
		},
		Version:   3,
		PKIndices: []int{0},
		Indexes: []IndexDef{
			{Name: "idx_balance", ID: 9, Columns: []string{"balance"}, Unique: false},
		},
		CheckConstraints: []CheckConstraintDef{{Name: "chk_pos", Expression: "balance >= 0"}},
		ForeignKeys: []ForeignKeyDef{
			{Name: "fk_x", Columns: []string{"id"}, ReferencedTable: "other", ReferencedColumns: []string{"id"}},
		},
	}

	buf := EncodeTableSchema(s)
	got, err := DecodeTableSchema(buf)
	require.NoError(t, err)
	require.Equal(t, s.Name, got.Name)
	require.Equal(t, s.TableID, got.TableID)
	require.Equal(t, s.Version, got.Version)
	require.Equal(t, s.PKIndices, got.PKIndices)
	require.Len(t, got.Columns, 3)
	require.Equal(t, "tags", got.Columns[2].Name)
	require.Equal(t, DataTypeArray, got.Columns[2].DataType.Tag)
	require.NotNil(t, got.Columns[1].DefaultExpr)
	require.Equal(t, "0", *got.Columns[1].DefaultExpr)
	require.Len(t, got.Indexes, 1)
	require.Equal(t, uint64(9), got.Indexes[0].ID)
	require.Len(t, got.CheckConstraints, 1)
	require.Len(t, got.ForeignKeys, 1)
}

func TestDataTypeArrayOfArray(t *testing.T) {
	dt := ArrayOf(ArrayOf(DataType{Tag: DataTypeInt32}))
	buf := EncodeDataType(nil, dt)
	got, n, err := DecodeDataType(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, DataTypeArray, got.Tag)
	require.Equal(t, DataTypeArray, got.Elem.Tag)
	require.Equal(t, DataTypeInt32, got.Elem.Elem.Tag)
}
