// SPDX-License-Identifier: Apache-2.0

package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
	"github.com/kvpg/kvpg/pkg/types"
)

func newTxn(t *testing.T) (*memstore.Store, kvstore.Txn) {
	t.Helper()
	store := memstore.New()
	txn, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	return store, txn
}

func sampleSchema() *types.TableSchema {
	return &types.TableSchema{
		Name:    "t",
		TableID: 1,
		Columns: []types.ColumnDef{
			{Name: "id", DataType: types.DataType{Tag: types.DataTypeInt32}, Nullable: false, PrimaryKey: true},
			{Name: "name", DataType: types.DataType{Tag: types.DataTypeText}, Nullable: true},
		},
		PKIndices: []int{0},
		Version:   1,
	}
}

func TestCreateAndGetSchema(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	schema := sampleSchema()

	require.NoError(t, catalog.CreateTable(ctx, txn, "", schema))
	err := catalog.CreateTable(ctx, txn, "", schema)
	require.Error(t, err)
	require.IsType(t, kverrors.DuplicateObjectError{}, err)

	got, err := catalog.MustGetSchema(ctx, txn, "", "t")
	require.NoError(t, err)
	require.Equal(t, schema.TableID, got.TableID)

	_, err = catalog.MustGetSchema(ctx, txn, "", "missing")
	require.IsType(t, kverrors.TableNotFoundError{}, err)
}

func TestInsertScanAndDuplicatePK(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	schema := sampleSchema()
	require.NoError(t, catalog.CreateTable(ctx, txn, "", schema))

	row1 := types.Row{types.Int32(1), types.Text("a")}
	row2 := types.Row{types.Int32(2), types.Text("b")}
	require.NoError(t, catalog.Insert(ctx, txn, "", schema, row1))
	require.NoError(t, catalog.Insert(ctx, txn, "", schema, row2))

	err := catalog.Insert(ctx, txn, "", schema, types.Row{types.Int32(1), types.Text("dup")})
	require.IsType(t, kverrors.DuplicatePrimaryKeyError{}, err)

	rows, err := catalog.Scan(ctx, txn, "", schema)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0][0].Equal(types.Int32(1)))
	require.True(t, rows[1][0].Equal(types.Int32(2)))
}

func TestDeleteByPK(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	schema := sampleSchema()
	require.NoError(t, catalog.CreateTable(ctx, txn, "", schema))
	require.NoError(t, catalog.Insert(ctx, txn, "", schema, types.Row{types.Int32(1), types.Text("a")}))

	existed, err := catalog.DeleteByPK(ctx, txn, "", schema, []types.Value{types.Int32(1)})
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = catalog.DeleteByPK(ctx, txn, "", schema, []types.Value{types.Int32(1)})
	require.NoError(t, err)
	require.False(t, existed)
}

func TestUniqueAndNonUniqueIndex(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	schema := sampleSchema()
	require.NoError(t, catalog.CreateTable(ctx, txn, "", schema))

	uniqueIdx := &types.IndexDef{Name: "idx_name", ID: 1, Columns: []string{"name"}, Unique: true}
	nonUniqueIdx := &types.IndexDef{Name: "idx_name_nonuniq", ID: 2, Columns: []string{"name"}, Unique: false}

	pk1 := []types.Value{types.Int32(1)}
	pk2 := []types.Value{types.Int32(2)}
	idxVals := []types.Value{types.Text("alice")}

	require.NoError(t, catalog.CreateIndexEntry(ctx, txn, "", schema, uniqueIdx, idxVals, pk1))
	err := catalog.CreateIndexEntry(ctx, txn, "", schema, uniqueIdx, idxVals, pk2)
	require.IsType(t, kverrors.UniqueViolationError{}, err)

	require.NoError(t, catalog.CreateIndexEntry(ctx, txn, "", schema, nonUniqueIdx, idxVals, pk1))
	require.NoError(t, catalog.CreateIndexEntry(ctx, txn, "", schema, nonUniqueIdx, idxVals, pk2))

	got, err := catalog.ScanIndex(ctx, txn, "", schema, uniqueIdx, idxVals)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = catalog.ScanIndex(ctx, txn, "", schema, nonUniqueIdx, idxVals)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFillDefaultsOnShortRow(t *testing.T) {
	schema := sampleSchema()
	short := types.Row{types.Int32(1)}
	filled := catalog.FillDefaults(schema, short)
	require.Len(t, filled, 2)
	require.True(t, filled[1].IsNull())
}

func TestTruncateAndDropTable(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()
	schema := sampleSchema()
	require.NoError(t, catalog.CreateTable(ctx, txn, "", schema))
	require.NoError(t, catalog.Insert(ctx, txn, "", schema, types.Row{types.Int32(1), types.Text("a")}))

	require.NoError(t, catalog.TruncateTable(ctx, txn, "", schema))
	rows, err := catalog.Scan(ctx, txn, "", schema)
	require.NoError(t, err)
	require.Empty(t, rows)

	exists, err := catalog.TableExists(ctx, txn, "", "t")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, catalog.Insert(ctx, txn, "", schema, types.Row{types.Int32(1), types.Text("a")}))
	require.NoError(t, catalog.DropTable(ctx, txn, "", schema))

	exists, err = catalog.TableExists(ctx, txn, "", "t")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestViews(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreateView(ctx, txn, "", "v", "SELECT * FROM t"))
	text, ok, err := catalog.GetView(ctx, txn, "", "v")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "SELECT * FROM t", text)

	names, err := catalog.ListViews(ctx, txn, "")
	require.NoError(t, err)
	require.Equal(t, []string{"v"}, names)

	require.NoError(t, catalog.DropView(ctx, txn, "", "v"))
	err = catalog.DropView(ctx, txn, "", "v")
	require.IsType(t, kverrors.ViewNotFoundError{}, err)
}

func TestNextTableIDAndSequence(t *testing.T) {
	_, txn := newTxn(t)
	ctx := context.Background()

	id1, err := catalog.NextTableID(ctx, txn, "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), id1)

	id2, err := catalog.NextTableID(ctx, txn, "")
	require.NoError(t, err)
	require.Equal(t, uint64(2), id2)

	seq1, err := catalog.NextSequenceValue(ctx, txn, "", id1)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq1)

	seq2, err := catalog.NextSequenceValue(ctx, txn, "", id1)
	require.NoError(t, err)
	require.Equal(t, int64(2), seq2)
}
