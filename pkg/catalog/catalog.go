// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the Storage Mapper (spec.md §4.2): every
// operation takes a live kvstore.Txn and is exactly one logical step
// inside the caller's transaction. Atomicity across steps is the caller's
// concern (the Executor's). Grounded on pgroll's pkg/roll schema-access
// shape (read-modify-write a versioned object under a well-known key) but
// rebuilt against pkg/kvstore instead of *sql.DB, since kvpg persists its
// own catalog rather than introspecting Postgres's.
package catalog

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kvpg/kvpg/pkg/codec"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/types"
)

// NextTableID reads, increments, and writes the process-wide table/index
// id counter, per spec.md §4.2 ("initial read returning empty is
// interpreted as zero and the first value produced is 1"). Index ids are
// drawn from the same counter (spec.md §4.7 CREATE INDEX).
func NextTableID(ctx context.Context, txn kvstore.Txn, namespace string) (uint64, error) {
	key := codec.ApplyNamespace(namespace, codec.NextTableIDKey())
	cur, err := readU64(ctx, txn, key)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := writeU64(ctx, txn, key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// NextSequenceValue advances table T's SERIAL counter and returns the new
// value, starting at 1.
func NextSequenceValue(ctx context.Context, txn kvstore.Txn, namespace string, tableID uint64) (int64, error) {
	key := codec.ApplyNamespace(namespace, codec.SequenceKey(tableID))
	cur, err := readU64(ctx, txn, key)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := writeU64(ctx, txn, key, next); err != nil {
		return 0, err
	}
	return int64(next), nil
}

func readU64(ctx context.Context, txn kvstore.Txn, key []byte) (uint64, error) {
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return 0, kverrors.StorageError{Err: err}
	}
	if !ok {
		return 0, nil
	}
	row, err := types.DecodeRow(v)
	if err != nil {
		return 0, kverrors.StorageError{Err: err}
	}
	if len(row) != 1 {
		return 0, kverrors.StorageError{Err: err}
	}
	return uint64(row[0].I64), nil
}

func writeU64(ctx context.Context, txn kvstore.Txn, key []byte, v uint64) error {
	enc := types.EncodeRow(types.Row{types.Int64(int64(v))})
	if err := txn.Put(ctx, key, enc); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// CreateTable persists a new schema; fails with DuplicateObjectError if
// one already exists under that name.
func CreateTable(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema) error {
	key := codec.ApplyNamespace(namespace, codec.SchemaKey(schema.Name))
	_, exists, err := txn.Get(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if exists {
		return kverrors.DuplicateObjectError{Kind: "table", Name: schema.Name}
	}
	if err := txn.Put(ctx, key, types.EncodeTableSchema(schema)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	cacheFor(namespace).add(schema.TableID)
	return nil
}

// GetSchema returns the table's schema, or (nil, false) if it does not
// exist.
func GetSchema(ctx context.Context, txn kvstore.Txn, namespace, name string) (*types.TableSchema, bool, error) {
	key := codec.ApplyNamespace(namespace, codec.SchemaKey(name))
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	schema, err := types.DecodeTableSchema(v)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	return schema, true, nil
}

// MustGetSchema is GetSchema but surfaces TableNotFoundError for
// non-optional callers, per spec.md §4.2 "Failure semantics".
func MustGetSchema(ctx context.Context, txn kvstore.Txn, namespace, name string) (*types.TableSchema, error) {
	schema, ok, err := GetSchema(ctx, txn, namespace, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kverrors.TableNotFoundError{Name: name}
	}
	return schema, nil
}

// UpdateSchema rewrites a table's schema wholesale, per spec.md §9
// "Schema and row ownership": a statement that mutates a schema rereads
// and rewrites it as a value, never patches it in place.
func UpdateSchema(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema) error {
	key := codec.ApplyNamespace(namespace, codec.SchemaKey(schema.Name))
	if err := txn.Put(ctx, key, types.EncodeTableSchema(schema)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// TableExists reports whether a schema is registered under name.
func TableExists(ctx context.Context, txn kvstore.Txn, namespace, name string) (bool, error) {
	key := codec.ApplyNamespace(namespace, codec.SchemaKey(name))
	_, ok, err := txn.Get(ctx, key)
	if err != nil {
		return false, kverrors.StorageError{Err: err}
	}
	return ok, nil
}

// ListTables scans the schema prefix and returns table names in key
// (i.e. lexicographic) order.
func ListTables(ctx context.Context, txn kvstore.Txn, namespace string) ([]string, error) {
	schemas, err := scanPrefixDecoded(ctx, txn, namespace, codec.SchemaPrefix())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(schemas))
	for _, v := range schemas {
		s, err := types.DecodeTableSchema(v)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names, nil
}

func scanPrefixDecoded(ctx context.Context, txn kvstore.Txn, namespace string, rawPrefix []byte) ([][]byte, error) {
	start := codec.ApplyNamespace(namespace, rawPrefix)
	end := prefixUpperBound(start)
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	defer it.Close()
	var out [][]byte
	for it.Next() {
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		out = append(out, v)
	}
	if err := it.Err(); err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	return out, nil
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key carrying prefix, by incrementing the last byte that is not
// already 0xFF (and dropping any trailing 0xFF bytes first). An all-0xFF
// prefix has no finite upper bound in this scheme and scans to the end of
// the keyspace instead (empty end means "no bound" to kvstore.Txn.Scan
// implementations such as memstore, which treat a nil end key as
// unbounded). Raw prefixes here are short ASCII tags, so this never
// triggers in practice.
func prefixUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// PKValuesOf extracts the primary-key value vector from row, per
// schema.PKIndices. It panics if schema has no explicit primary key;
// callers must route PK-less tables through InsertAuto instead, since
// such a table's row identity is a synthesized UUID never reflected in
// any column (spec.md §3).
func PKValuesOf(schema *types.TableSchema, row types.Row) []types.Value {
	if !schema.HasPrimaryKey() {
		panic("catalog: PKValuesOf: table has no primary key")
	}
	pk := make([]types.Value, len(schema.PKIndices))
	for i, idx := range schema.PKIndices {
		pk[i] = row[idx]
	}
	return pk
}

func dataKeyFor(schema *types.TableSchema, row types.Row) []byte {
	return codec.DataKey(schema.TableID, PKValuesOf(schema, row))
}

// Insert writes row's data key, failing with DuplicatePrimaryKeyError if
// it already exists. schema must have an explicit primary key; use
// InsertAuto for PK-less tables.
func Insert(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, row types.Row) error {
	key := codec.ApplyNamespace(namespace, dataKeyFor(schema, row))
	_, exists, err := txn.Get(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if exists {
		return kverrors.DuplicatePrimaryKeyError{Table: schema.Name}
	}
	if err := txn.Put(ctx, key, types.EncodeRow(row)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// InsertAuto writes row under a freshly synthesized UUID row key, for
// tables with no explicit primary key (spec.md §3: "the storage mapper
// synthesizes a UUID PK per row at write time"). The synthesized key
// cannot collide with an existing entry, so there is no DuplicatePrimaryKey
// case to check.
func InsertAuto(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, row types.Row) error {
	rowID := uuid.New()
	key := codec.ApplyNamespace(namespace, codec.DataKey(schema.TableID, []types.Value{types.UUIDValue(rowID)}))
	if err := txn.Put(ctx, key, types.EncodeRow(row)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// Upsert writes row's data key unconditionally. schema must have an
// explicit primary key.
func Upsert(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, row types.Row) error {
	key := codec.ApplyNamespace(namespace, dataKeyFor(schema, row))
	if err := txn.Put(ctx, key, types.EncodeRow(row)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// Scan returns every row in the table's data range, in PK order.
func Scan(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema) ([]types.Row, error) {
	start := codec.ApplyNamespace(namespace, codec.DataRangeStart(schema.TableID))
	end := codec.ApplyNamespace(namespace, codec.DataRangeEnd(schema.TableID))
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	defer it.Close()

	var rows []types.Row
	for it.Next() {
		row, err := types.DecodeRow(it.Value())
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		rows = append(rows, FillDefaults(schema, row))
	}
	if err := it.Err(); err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	return rows, nil
}

// GetByPK returns one row by its primary-key value vector.
func GetByPK(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, pkValues []types.Value) (types.Row, bool, error) {
	key := codec.ApplyNamespace(namespace, codec.DataKey(schema.TableID, pkValues))
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	row, err := types.DecodeRow(v)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	return FillDefaults(schema, row), true, nil
}

// BatchGetRows looks up many rows by PK value vector, skipping any that
// are absent (a race with a concurrent delete; callers treat this as "no
// longer matches").
func BatchGetRows(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, pkVectors [][]types.Value) ([]types.Row, error) {
	rows := make([]types.Row, 0, len(pkVectors))
	for _, pk := range pkVectors {
		row, ok, err := GetByPK(ctx, txn, namespace, schema, pk)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// DeleteByPK removes a row's data key and reports whether it existed.
func DeleteByPK(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, pkValues []types.Value) (bool, error) {
	key := codec.ApplyNamespace(namespace, codec.DataKey(schema.TableID, pkValues))
	existed, err := txn.Delete(ctx, key)
	if err != nil {
		return false, kverrors.StorageError{Err: err}
	}
	return existed, nil
}

// LockRows takes a pessimistic lock on each row's data key, for
// `SELECT ... FOR UPDATE` (spec.md §4.2, §5).
func LockRows(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, rows []types.Row) error {
	for _, row := range rows {
		key := codec.ApplyNamespace(namespace, dataKeyFor(schema, row))
		if err := txn.Lock(ctx, key); err != nil {
			return kverrors.StorageError{Err: err}
		}
	}
	return nil
}

// CreateIndexEntry writes one index entry per spec.md §4.1's layout. For
// a unique index it fails with UniqueViolationError if an entry already
// exists for idxValues.
func CreateIndexEntry(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, idx *types.IndexDef, idxValues, pkValues []types.Value) error {
	if idx.Unique {
		key := codec.ApplyNamespace(namespace, codec.UniqueIndexKey(schema.TableID, idx.ID, idxValues))
		_, exists, err := txn.Get(ctx, key)
		if err != nil {
			return kverrors.StorageError{Err: err}
		}
		if exists {
			return kverrors.UniqueViolationError{Index: idx.Name}
		}
		if err := txn.Put(ctx, key, types.EncodeValues(pkValues)); err != nil {
			return kverrors.StorageError{Err: err}
		}
		return nil
	}

	key := codec.ApplyNamespace(namespace, codec.NonUniqueIndexKey(schema.TableID, idx.ID, idxValues, pkValues))
	if err := txn.Put(ctx, key, []byte{}); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// DeleteIndexEntry removes one index entry.
func DeleteIndexEntry(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, idx *types.IndexDef, idxValues, pkValues []types.Value) error {
	var key []byte
	if idx.Unique {
		key = codec.ApplyNamespace(namespace, codec.UniqueIndexKey(schema.TableID, idx.ID, idxValues))
	} else {
		key = codec.ApplyNamespace(namespace, codec.NonUniqueIndexKey(schema.TableID, idx.ID, idxValues, pkValues))
	}
	if _, err := txn.Delete(ctx, key); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// ScanIndex looks up PK vectors by index value vector: for a unique index,
// a point read returning zero or one PK vector; for non-unique, a prefix
// scan stripping the fixed prefix from each key (spec.md §4.2).
func ScanIndex(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema, idx *types.IndexDef, idxValues []types.Value) ([][]types.Value, error) {
	if idx.Unique {
		key := codec.ApplyNamespace(namespace, codec.UniqueIndexKey(schema.TableID, idx.ID, idxValues))
		v, ok, err := txn.Get(ctx, key)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		if !ok {
			return nil, nil
		}
		pk, err := types.DecodeRow(v)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		return [][]types.Value{pk}, nil
	}

	prefix := codec.ApplyNamespace(namespace, codec.UniqueIndexKey(schema.TableID, idx.ID, idxValues))
	start := append(append([]byte{}, prefix...), '_')
	end := prefixUpperBound(start)
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	defer it.Close()

	var pks [][]types.Value
	for it.Next() {
		stripped, err := codec.SplitNonUniqueIndexKey(mustStripNamespace(namespace, it.Key()), schema.TableID, idx.ID, idxValues)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		pk, err := types.DecodeRow(stripped)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		pks = append(pks, pk)
	}
	if err := it.Err(); err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	return pks, nil
}

func mustStripNamespace(namespace string, key []byte) []byte {
	stripped, err := codec.StripNamespace(namespace, key)
	if err != nil {
		// Scan only ever returns keys this same namespace wrote.
		panic(err)
	}
	return stripped
}

// TruncateTable scans and deletes the data range, leaving the schema
// intact.
func TruncateTable(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema) error {
	start := codec.ApplyNamespace(namespace, codec.DataRangeStart(schema.TableID))
	end := codec.ApplyNamespace(namespace, codec.DataRangeEnd(schema.TableID))
	return deleteRange(ctx, txn, start, end)
}

// DropTable deletes the schema key and the table's data range.
func DropTable(ctx context.Context, txn kvstore.Txn, namespace string, schema *types.TableSchema) error {
	if err := TruncateTable(ctx, txn, namespace, schema); err != nil {
		return err
	}
	key := codec.ApplyNamespace(namespace, codec.SchemaKey(schema.Name))
	if _, err := txn.Delete(ctx, key); err != nil {
		return kverrors.StorageError{Err: err}
	}
	cacheFor(namespace).remove(schema.TableID)
	return nil
}

func deleteRange(ctx context.Context, txn kvstore.Txn, start, end []byte) error {
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	var keys [][]byte
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	scanErr := it.Err()
	it.Close()
	if scanErr != nil {
		return kverrors.StorageError{Err: scanErr}
	}
	for _, k := range keys {
		if _, err := txn.Delete(ctx, k); err != nil {
			return kverrors.StorageError{Err: err}
		}
	}
	return nil
}

// CreateView registers a view's stored SELECT text.
func CreateView(ctx context.Context, txn kvstore.Txn, namespace, name, selectText string) error {
	key := codec.ApplyNamespace(namespace, codec.ViewKey(name))
	_, exists, err := txn.Get(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if exists {
		return kverrors.DuplicateObjectError{Kind: "view", Name: name}
	}
	if err := txn.Put(ctx, key, []byte(selectText)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// GetView returns a view's stored SELECT text.
func GetView(ctx context.Context, txn kvstore.Txn, namespace, name string) (string, bool, error) {
	key := codec.ApplyNamespace(namespace, codec.ViewKey(name))
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return "", false, kverrors.StorageError{Err: err}
	}
	if !ok {
		return "", false, nil
	}
	return string(v), true, nil
}

// DropView removes a view's registry entry, failing with
// ViewNotFoundError if absent.
func DropView(ctx context.Context, txn kvstore.Txn, namespace, name string) error {
	key := codec.ApplyNamespace(namespace, codec.ViewKey(name))
	existed, err := txn.Delete(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if !existed {
		return kverrors.ViewNotFoundError{Name: name}
	}
	return nil
}

// ListViews returns every registered view name.
func ListViews(ctx context.Context, txn kvstore.Txn, namespace string) ([]string, error) {
	start := codec.ApplyNamespace(namespace, codec.ViewPrefix())
	end := prefixUpperBound(start)
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	defer it.Close()
	var names []string
	for it.Next() {
		full := mustStripNamespace(namespace, it.Key())
		names = append(names, string(full[len(codec.ViewPrefix()):]))
	}
	if err := it.Err(); err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	sort.Strings(names)
	return names, nil
}

// FillDefaults implements spec.md §4.7's "row-default filling": a row
// read from storage that is shorter than its schema's current column
// count gets each missing trailing position filled from that column's
// literal default, or Null if it carries none. Evaluating an arbitrary
// default expression lives in pkg/executor, which calls FillDefaultsWith
// instead when a non-literal default is in play; this fast path covers
// the common Null/no-default case without an evaluator dependency from
// pkg/catalog.
func FillDefaults(schema *types.TableSchema, row types.Row) types.Row {
	if len(row) >= len(schema.Columns) {
		return row
	}
	out := make(types.Row, len(schema.Columns))
	copy(out, row)
	for i := len(row); i < len(schema.Columns); i++ {
		out[i] = types.Null()
	}
	return out
}

// FillDefaultsWith is FillDefaults for a missing column that carries a
// non-literal default_expr: evalDefault is called with that column's
// source text (pkg/executor supplies one backed by pkg/eval.Eval against
// an empty row context) whenever DefaultExpr is set, instead of Null.
func FillDefaultsWith(schema *types.TableSchema, row types.Row, evalDefault func(expr string) (types.Value, error)) (types.Row, error) {
	if len(row) >= len(schema.Columns) {
		return row, nil
	}
	out := make(types.Row, len(schema.Columns))
	copy(out, row)
	for i := len(row); i < len(schema.Columns); i++ {
		col := schema.Columns[i]
		if col.DefaultExpr == nil {
			out[i] = types.Null()
			continue
		}
		v, err := evalDefault(*col.DefaultExpr)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
