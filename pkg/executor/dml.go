// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"slices"
	"time"

	"github.com/google/uuid"
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/parser"
	"github.com/kvpg/kvpg/pkg/types"
)

// parseExprText re-parses a column's stored default-expression source
// text (itself produced by pgq.DeparseExpr when the column was defined)
// by wrapping it as a one-column SELECT and pulling the target's value
// node back out, since pg_query_go has no standalone "parse one
// expression" entry point.
func parseExprText(expr string) (pgq.Node, error) {
	result, err := parser.Parse("SELECT " + expr)
	if err != nil {
		return nil, err
	}
	if len(result.Statements) != 1 {
		return nil, kverrors.Unsupported{Reason: "default expression did not parse to a single statement"}
	}
	sel, ok := result.Statements[0].Node.(*pgq.Node_SelectStmt)
	if !ok || len(sel.SelectStmt.GetTargetList()) != 1 {
		return nil, kverrors.Unsupported{Reason: "default expression did not parse to a single value"}
	}
	return sel.SelectStmt.GetTargetList()[0].GetResTarget().GetVal().Node, nil
}

// statementVolatiles returns this statement's now() instant and its
// gen_random_uuid() generator, per spec.md §4.5's "bound once at
// statement start" rule. Every DML statement calls this once and threads
// the instant into each Context it builds, so every row it touches
// (target rows, default expressions, VALUES expressions) observes the
// same instant.
func statementVolatiles() (time.Time, func() uuid.UUID) {
	now := time.Now().UTC()
	return now, uuid.New
}

func emptyVolatileContext(now time.Time, newUUID func() uuid.UUID) *eval.Context {
	ctx := eval.EmptyContext()
	ctx.Now = &now
	ctx.NewUUID = newUUID
	return ctx
}

func rowVolatileContext(schema *types.TableSchema, row types.Row, now time.Time, newUUID func() uuid.UUID) *eval.Context {
	ctx := eval.NewRowContext(schema, row)
	ctx.Now = &now
	ctx.NewUUID = newUUID
	return ctx
}

// execInsert implements INSERT ... VALUES / INSERT ... SELECT, with
// optional ON CONFLICT DO NOTHING / DO UPDATE and RETURNING (spec.md
// §4.7).
func execInsert(es *execState, stmt *pgq.InsertStmt) (*Result, error) {
	name := stmt.GetRelation().GetRelname()
	schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, name)
	if err != nil {
		return nil, err
	}

	targetCols := insertTargetColumns(stmt, schema)
	now, newUUID := statementVolatiles()
	valueRows, err := es.insertValueRows(stmt, now, newUUID)
	if err != nil {
		return nil, err
	}

	var returned []types.Row
	var retCols []string
	var affected int64

	for _, values := range valueRows {
		row, err := buildInsertRow(schema, targetCols, values)
		if err != nil {
			return nil, err
		}
		for i, col := range schema.Columns {
			if col.DefaultExpr != nil && !slices.Contains(targetCols, col.Name) {
				if row[i], err = evalDefaultExpr(*col.DefaultExpr, now, newUUID); err != nil {
					return nil, err
				}
			}
		}
		row, err = fillSerialColumns(es, schema, row)
		if err != nil {
			return nil, err
		}
		row, err = coerceAndValidateRow(schema, row)
		if err != nil {
			return nil, err
		}

		inserted, conflicted, err := es.insertOrHandleConflict(schema, row, stmt.GetOnConflictClause(), now, newUUID)
		if err != nil {
			return nil, err
		}
		if conflicted && inserted == nil {
			continue
		}
		affected++

		if len(stmt.GetReturningList()) > 0 {
			cols, retRow, err := es.projectSingleTable(eval.NewRowContext(schema, inserted), stmt.GetReturningList(), schema)
			if err != nil {
				return nil, err
			}
			retCols = cols
			returned = append(returned, retRow)
		}
	}

	return &Result{RowsAffected: affected, Columns: retCols, Rows: returned}, nil
}

func insertTargetColumns(stmt *pgq.InsertStmt, schema *types.TableSchema) []string {
	cols := stmt.GetCols()
	if len(cols) == 0 {
		names := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			names[i] = c.Name
		}
		return names
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.GetResTarget().GetName()
	}
	return names
}

// insertValueRows returns one []types.Value per row to insert, each in
// target-column order: either INSERT ... VALUES's literal lists
// evaluated against an empty (no-row) context, or the already-evaluated
// rows of an INSERT ... SELECT source.
func (es *execState) insertValueRows(stmt *pgq.InsertStmt, now time.Time, newUUID func() uuid.UUID) ([][]types.Value, error) {
	sel := stmt.GetSelectStmt().GetSelectStmt()
	if sel == nil {
		return nil, nil
	}
	if lists := sel.GetValuesLists(); len(lists) > 0 {
		ctx := emptyVolatileContext(now, newUUID)
		rows := make([][]types.Value, len(lists))
		for i, l := range lists {
			items := l.GetList().GetItems()
			values := make([]types.Value, len(items))
			for j, it := range items {
				v, err := es.evalRow(ctx, nil, it.Node)
				if err != nil {
					return nil, err
				}
				values[j] = v
			}
			rows[i] = values
		}
		return rows, nil
	}

	result, err := es.executeSelectCore(sel)
	if err != nil {
		return nil, err
	}
	rows := make([][]types.Value, len(result.Rows))
	for i, r := range result.Rows {
		rows[i] = []types.Value(r)
	}
	return rows, nil
}

// castTargetFor maps a column's storage type to the type name eval.Cast
// expects (spec.md §4.7 "coerce each inserted value to its column's
// declared type"). Array-typed columns are left uncoerced: their element
// values already arrive shaped correctly from array-literal evaluation,
// and Cast has no array-target case of its own.
func castTargetFor(dt types.DataType) string {
	switch dt.Tag {
	case types.DataTypeInt32:
		return "int4"
	case types.DataTypeInt64:
		return "int8"
	case types.DataTypeFloat64:
		return "float8"
	case types.DataTypeText:
		return "text"
	case types.DataTypeBoolean:
		return "bool"
	case types.DataTypeUUID:
		return "uuid"
	case types.DataTypeTimestamp:
		return "timestamp"
	case types.DataTypeInterval:
		return "interval"
	case types.DataTypeJSON:
		return "json"
	case types.DataTypeJSONB:
		return "jsonb"
	case types.DataTypeBytes:
		return "bytea"
	default:
		return ""
	}
}

// coerceAndValidateRow casts every non-null value to its column's declared
// type (canonicalizing JSON/JSONB text along the way, via eval.Cast's own
// "json"/"jsonb" targets) and rejects a null left in a NOT NULL column
// (spec.md §4.7).
func coerceAndValidateRow(schema *types.TableSchema, row types.Row) (types.Row, error) {
	for i, col := range schema.Columns {
		if row[i].IsNull() {
			if !col.Nullable {
				return nil, kverrors.NotNullViolationError{Column: col.Name}
			}
			continue
		}
		target := castTargetFor(col.DataType)
		if target == "" {
			continue
		}
		v, err := eval.Cast(row[i], target)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func buildInsertRow(schema *types.TableSchema, targetCols []string, values []types.Value) (types.Row, error) {
	if len(values) != len(targetCols) {
		return nil, kverrors.InvalidUpdateError{Reason: "INSERT has more expressions than target columns"}
	}
	row := make(types.Row, len(schema.Columns))
	for i := range row {
		row[i] = types.Null()
	}
	for i, colName := range targetCols {
		idx := schema.ColumnIndex(colName)
		if idx < 0 {
			return nil, kverrors.ColumnNotFoundError{Column: colName}
		}
		row[idx] = values[i]
	}
	return row, nil
}

func evalDefaultExpr(expr string, now time.Time, newUUID func() uuid.UUID) (types.Value, error) {
	node, err := parseExprText(expr)
	if err != nil {
		return types.Value{}, err
	}
	return eval.Eval(emptyVolatileContext(now, newUUID), node)
}

// fillSerialColumns assigns the next sequence value to every IsSerial
// column still holding Null after default-filling (spec.md §4.7: "a
// SERIAL column not given an explicit value draws its next value from
// the table's sequence counter").
func fillSerialColumns(es *execState, schema *types.TableSchema, row types.Row) (types.Row, error) {
	for i, col := range schema.Columns {
		if !col.IsSerial || !row[i].IsNull() {
			continue
		}
		next, err := catalog.NextSequenceValue(es.ctx, es.txn, es.namespace, schema.TableID)
		if err != nil {
			return nil, err
		}
		if col.DataType.Tag == types.DataTypeInt64 {
			row[i] = types.Int64(next)
		} else {
			row[i] = types.Int32(int32(next))
		}
	}
	return row, nil
}

// insertOrHandleConflict writes row, applying ON CONFLICT semantics on a
// primary-key collision (spec.md §4.7). A unique-index violation is
// returned as an error without consulting ON CONFLICT, and a table with
// no primary key is inserted without any conflict check. It returns the
// row actually stored (nil if DO NOTHING skipped the insert) and whether
// a conflict was detected at all.
func (es *execState) insertOrHandleConflict(schema *types.TableSchema, row types.Row, onConflict *pgq.OnConflictClause, now time.Time, newUUID func() uuid.UUID) (types.Row, bool, error) {
	var insertErr error
	if schema.HasPrimaryKey() {
		insertErr = catalog.Insert(es.ctx, es.txn, es.namespace, schema, row)
	} else {
		return row, false, catalog.InsertAuto(es.ctx, es.txn, es.namespace, schema, row)
	}

	if insertErr == nil {
		if err := es.reindexRow(schema, nil, row); err != nil {
			return nil, false, err
		}
		return row, false, nil
	}

	if _, dup := insertErr.(kverrors.DuplicatePrimaryKeyError); !dup {
		return nil, false, insertErr
	}
	if onConflict == nil {
		return nil, false, insertErr
	}

	switch onConflict.GetAction() {
	case pgq.OnConflictAction_ONCONFLICT_NOTHING:
		return nil, true, nil

	case pgq.OnConflictAction_ONCONFLICT_UPDATE:
		pk := catalog.PKValuesOf(schema, row)
		old, ok, err := catalog.GetByPK(es.ctx, es.txn, es.namespace, schema, pk)
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return nil, true, kverrors.InvalidUpdateError{Reason: "ON CONFLICT target row vanished"}
		}
		excludedCtx := eval.NewJoinContext(append(append(types.Row{}, old...), row...))
		excludedCtx.AddTable(schema.Name, columnNames(schema), 0)
		excludedCtx.AddTable("excluded", columnNames(schema), len(schema.Columns))
		excludedCtx.Now = &now
		excludedCtx.NewUUID = newUUID

		updated := old.Clone()
		for _, t := range onConflict.GetTargetList() {
			rt := t.GetResTarget()
			v, err := es.evalRow(excludedCtx, nil, rt.GetVal().Node)
			if err != nil {
				return nil, true, err
			}
			idx := schema.ColumnIndex(rt.GetName())
			if idx < 0 {
				return nil, true, kverrors.ColumnNotFoundError{Column: rt.GetName()}
			}
			updated[idx] = v
		}
		if onConflict.GetWhereClause() != nil {
			ok, err := es.evalBoolRow(excludedCtx, nil, onConflict.GetWhereClause())
			if err != nil {
				return nil, true, err
			}
			if !ok {
				return nil, true, nil
			}
		}
		updated, err = coerceAndValidateRow(schema, updated)
		if err != nil {
			return nil, true, err
		}
		if err := catalog.Upsert(es.ctx, es.txn, es.namespace, schema, updated); err != nil {
			return nil, true, err
		}
		if err := es.reindexRow(schema, old, updated); err != nil {
			return nil, true, err
		}
		return updated, true, nil

	default:
		return nil, true, insertErr
	}
}

func columnNames(schema *types.TableSchema) []string {
	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = c.Name
	}
	return names
}

// execUpdate implements UPDATE ... SET ... [FROM ...] [WHERE ...]
// [RETURNING ...] (spec.md §4.7). At most one FROM table is supported;
// a target row is updated at most once, using the first FROM row (in
// scan order) that satisfies WHERE.
func execUpdate(es *execState, stmt *pgq.UpdateStmt) (*Result, error) {
	name := stmt.GetRelation().GetRelname()
	schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, name)
	if err != nil {
		return nil, err
	}
	now, newUUID := statementVolatiles()

	from := stmt.GetFromClause()
	if len(from) > 1 {
		return nil, kverrors.Unsupported{Reason: "UPDATE ... FROM supports at most one table"}
	}

	var affected int64
	var returned []types.Row
	var retCols []string

	targetRows, err := es.scanTable(schema, nil, func(row types.Row) *eval.Context {
		return rowVolatileContext(schema, row, now, newUUID)
	})
	if err != nil {
		return nil, err
	}

	var fromSchema *types.TableSchema
	var fromAlias string
	var fromRows []types.Row
	if len(from) == 1 {
		rv := from[0].GetRangeVar()
		fromAlias = rv.GetAlias().GetAliasname()
		if fromAlias == "" {
			fromAlias = rv.GetRelname()
		}
		fromSchema, err = catalog.MustGetSchema(es.ctx, es.txn, es.namespace, rv.GetRelname())
		if err != nil {
			return nil, err
		}
		fromRows, err = catalog.Scan(es.ctx, es.txn, es.namespace, fromSchema)
		if err != nil {
			return nil, err
		}
	}

	alias := stmt.GetRelation().GetAlias().GetAliasname()
	if alias == "" {
		alias = name
	}

	for _, oldRow := range targetRows {
		matched := true
		var rowCtx *eval.Context

		if fromSchema != nil {
			matched = false
			for _, fr := range fromRows {
				combined := append(append(types.Row{}, oldRow...), fr...)
				ctx := eval.NewJoinContext(combined)
				ctx.AddTable(alias, columnNames(schema), 0)
				ctx.AddTable(fromAlias, columnNames(fromSchema), len(schema.Columns))
				ctx.Now = &now
				ctx.NewUUID = newUUID
				if stmt.GetWhereClause() != nil {
					ok, err := es.evalBoolRow(ctx, nil, stmt.GetWhereClause())
					if err != nil {
						return nil, err
					}
					if !ok {
						continue
					}
				}
				matched = true
				rowCtx = ctx
				break
			}
		} else {
			rowCtx = rowVolatileContext(schema, oldRow, now, newUUID)
			if stmt.GetWhereClause() != nil {
				ok, err := es.evalBoolRow(rowCtx, nil, stmt.GetWhereClause())
				if err != nil {
					return nil, err
				}
				matched = ok
			}
		}
		if !matched {
			continue
		}

		updated := oldRow.Clone()
		for _, t := range stmt.GetTargetList() {
			rt := t.GetResTarget()
			v, err := es.evalRow(rowCtx, nil, rt.GetVal().Node)
			if err != nil {
				return nil, err
			}
			idx := schema.ColumnIndex(rt.GetName())
			if idx < 0 {
				return nil, kverrors.ColumnNotFoundError{Column: rt.GetName()}
			}
			updated[idx] = v
		}
		updated, err = coerceAndValidateRow(schema, updated)
		if err != nil {
			return nil, err
		}

		if err := es.writeUpdatedRow(schema, oldRow, updated); err != nil {
			return nil, err
		}
		affected++

		if len(stmt.GetReturningList()) > 0 {
			cols, retRow, err := es.projectSingleTable(eval.NewRowContext(schema, updated), stmt.GetReturningList(), schema)
			if err != nil {
				return nil, err
			}
			retCols = cols
			returned = append(returned, retRow)
		}
	}

	return &Result{RowsAffected: affected, Columns: retCols, Rows: returned}, nil
}

// writeUpdatedRow persists an updated row. The primary key may not be
// changed by an UPDATE (spec.md §4.7); index entries are always rebuilt,
// even for unchanged columns, trading a few redundant writes for not
// having to diff which indexes actually need it.
func (es *execState) writeUpdatedRow(schema *types.TableSchema, oldRow, newRow types.Row) error {
	if !schema.HasPrimaryKey() {
		return kverrors.Unsupported{Reason: "UPDATE on a table with no primary key is not supported"}
	}
	oldPK := catalog.PKValuesOf(schema, oldRow)
	newPK := catalog.PKValuesOf(schema, newRow)
	for i := range oldPK {
		if !oldPK[i].Equal(newPK[i]) {
			return kverrors.InvalidUpdateError{Reason: "primary key column may not be updated"}
		}
	}

	if err := catalog.Upsert(es.ctx, es.txn, es.namespace, schema, newRow); err != nil {
		return err
	}
	return es.reindexRow(schema, oldRow, newRow)
}

// execDelete implements DELETE FROM ... [USING ...] [WHERE ...]
// [RETURNING ...] (spec.md §4.7). USING is not supported; a correlated
// delete can be expressed with WHERE ... IN (subquery) instead.
func execDelete(es *execState, stmt *pgq.DeleteStmt) (*Result, error) {
	if len(stmt.GetUsingClause()) > 0 {
		return nil, kverrors.Unsupported{Reason: "DELETE ... USING is not supported"}
	}
	name := stmt.GetRelation().GetRelname()
	schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, name)
	if err != nil {
		return nil, err
	}
	now, newUUID := statementVolatiles()

	rows, err := es.scanTable(schema, stmt.GetWhereClause(), func(row types.Row) *eval.Context {
		return rowVolatileContext(schema, row, now, newUUID)
	})
	if err != nil {
		return nil, err
	}

	var returned []types.Row
	var retCols []string
	var affected int64

	for _, row := range rows {
		if len(stmt.GetReturningList()) > 0 {
			cols, retRow, err := es.projectSingleTable(eval.NewRowContext(schema, row), stmt.GetReturningList(), schema)
			if err != nil {
				return nil, err
			}
			retCols = cols
			returned = append(returned, retRow)
		}

		if schema.HasPrimaryKey() {
			pk := catalog.PKValuesOf(schema, row)
			for i := range schema.Indexes {
				idx := &schema.Indexes[i]
				if err := catalog.DeleteIndexEntry(es.ctx, es.txn, es.namespace, schema, idx, indexValuesOf(schema, idx, row), pk); err != nil {
					return nil, err
				}
			}
			if _, err := catalog.DeleteByPK(es.ctx, es.txn, es.namespace, schema, pk); err != nil {
				return nil, err
			}
		}
		affected++
	}

	return &Result{RowsAffected: affected, Columns: retCols, Rows: returned}, nil
}
