// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// execTopLevelSelect implements a top-level SELECT statement (spec.md
// §4.7 step 11): run the query, then forward to table creation when it
// carries an INTO clause ("SELECT ... INTO new_table"), mirroring CREATE
// TABLE AS's own semantics.
func execTopLevelSelect(es *execState, stmt *pgq.SelectStmt) (*Result, error) {
	result, err := es.executeSelectCore(stmt)
	if err != nil {
		return nil, err
	}
	into := stmt.GetIntoClause()
	if into == nil {
		return result, nil
	}
	return createTableFromQueryResult(es, into.GetRel().GetRelname(), false, stringListNames(into.GetColNames()), result)
}

// executeSelectCore runs one SELECT statement to a (columns, rows) result,
// without SELECT INTO forwarding (spec.md §4.7): used both for the
// top-level statement and for every nested use (subqueries, views, CTEs,
// FROM-clause subselects).
func (es *execState) executeSelectCore(stmt *pgq.SelectStmt) (*Result, error) {
	if err := es.bindCTEs(stmt); err != nil {
		return nil, err
	}

	var cols []string
	var rows []types.Row
	var err error
	switch {
	case stmt.GetOp() != pgq.SetOperation_SETOP_NONE:
		cols, rows, err = es.executeSetOp(stmt)
	case len(stmt.GetValuesLists()) > 0:
		cols, rows, err = es.executeValuesSelect(stmt)
	default:
		cols, rows, err = es.executeSimpleSelect(stmt)
	}
	if err != nil {
		return nil, err
	}

	rows, err = es.orderProjectedRows(stmt, cols, rows)
	if err != nil {
		return nil, err
	}
	rows = applyLimitOffset(stmt, rows)
	if isDistinctClause(stmt) {
		rows = dedupRows(rows)
	}
	return &Result{Columns: cols, Rows: rows}, nil
}

// bindCTEs pre-executes every WITH-clause entry in textual order and
// binds it into es.ctes for the remainder of this statement (spec.md
// §4.7 "CTEs"), restoring the caller's CTE set once this statement's
// sub-executions are complete so a nested statement's CTE names don't
// leak back out.
func (es *execState) bindCTEs(stmt *pgq.SelectStmt) error {
	with := stmt.GetWithClause()
	if with == nil || len(with.GetCtes()) == 0 {
		return nil
	}
	saved := es.ctes
	scoped := make(map[string]cteResult, len(saved)+len(with.GetCtes()))
	for k, v := range saved {
		scoped[k] = v
	}
	es.ctes = scoped
	for _, c := range with.GetCtes() {
		cte, ok := c.GetNode().(*pgq.Node_CommonTableExpr)
		if !ok {
			continue
		}
		sub := cte.CommonTableExpr.GetCtequery().GetSelectStmt()
		if sub == nil {
			es.ctes = saved
			return kverrors.Unsupported{Reason: "WITH query must be a SELECT"}
		}
		result, err := es.executeSelectCore(sub)
		if err != nil {
			es.ctes = saved
			return err
		}
		colNames := result.Columns
		if names := stringListNames(cte.CommonTableExpr.GetAliascolnames()); len(names) > 0 {
			colNames = names
		}
		scoped[cte.CommonTableExpr.GetCtename()] = cteResult{columns: colNames, rows: result.Rows}
	}
	return nil
}

// executeValuesSelect evaluates a bare "VALUES (...), (...)" statement
// (spec.md §4.7, shared with INSERT's own VALUES handling in dml.go).
func (es *execState) executeValuesSelect(stmt *pgq.SelectStmt) ([]string, []types.Row, error) {
	now, newUUID := statementVolatiles()
	ctx := emptyVolatileContext(now, newUUID)
	lists := stmt.GetValuesLists()
	rows := make([]types.Row, len(lists))
	var cols []string
	for i, list := range lists {
		items := list.GetList().GetItems()
		row := make(types.Row, len(items))
		for j, item := range items {
			v, err := es.evalRow(ctx, nil, item.GetNode())
			if err != nil {
				return nil, nil, err
			}
			row[j] = v
		}
		rows[i] = row
		if i == 0 {
			cols = make([]string, len(items))
			for j := range items {
				cols[j] = "column" + strconv.Itoa(j+1)
			}
		}
	}
	return cols, rows, nil
}

// executeSimpleSelect runs the single-table or join pipeline (spec.md
// §4.7 steps 1-10): resolve FROM, filter WHERE, group/aggregate, compute
// window functions, then project the target list. FOR UPDATE row locking
// (step 5) only applies to the plain single-table path, since the join
// path has no single schema/row set to lock against.
func (es *execState) executeSimpleSelect(stmt *pgq.SelectStmt) ([]string, []types.Row, error) {
	now, newUUID := statementVolatiles()

	from := stmt.GetFromClause()
	var rows []types.Row
	var ctxOf func(types.Row) *eval.Context
	var starCols []string

	if len(from) == 0 {
		ctx := emptyVolatileContext(now, newUUID)
		rows = []types.Row{{}}
		ctxOf = func(types.Row) *eval.Context { return ctx }
	} else if len(from) == 1 {
		if rv, ok := from[0].GetNode().(*pgq.Node_RangeVar); ok {
			if _, isCTE := es.ctes[rv.RangeVar.GetRelname()]; !isCTE {
				if _, isView, err := catalog.GetView(es.ctx, es.txn, es.namespace, rv.RangeVar.GetRelname()); err == nil && !isView {
					return es.executeSingleTableSelect(stmt, rv.RangeVar, now, newUUID)
				}
			}
		}
		jt, err := es.resolveFromItem(from[0], now, newUUID)
		if err != nil {
			return nil, nil, err
		}
		rows, starCols, ctxOf = jt.rows, jt.starColumns(), joinCtxOf(jt, now, newUUID)
	} else {
		jt, err := es.resolveFromClause(from, now, newUUID)
		if err != nil {
			return nil, nil, err
		}
		rows, starCols, ctxOf = jt.rows, jt.starColumns(), joinCtxOf(jt, now, newUUID)
	}

	if where := stmt.GetWhereClause(); where != nil {
		filtered := make([]types.Row, 0, len(rows))
		for _, row := range rows {
			ok, err := es.evalBoolRow(ctxOf(row), nil, where)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	targets := stmt.GetTargetList()
	if len(stmt.GetGroupClause()) > 0 || hasAggregateTarget(targets, stmt.GetHavingClause()) {
		return es.groupAndAggregate(rows, ctxOf, stmt.GetGroupClause(), stmt.GetHavingClause(), targets, starCols)
	}

	var windowFuncs []*pgq.FuncCall
	collectWindowCalls(targets, &windowFuncs)
	var windowVals map[*pgq.FuncCall][]types.Value
	if len(windowFuncs) > 0 {
		windowVals = make(map[*pgq.FuncCall][]types.Value, len(windowFuncs))
		for _, fc := range windowFuncs {
			vals, err := es.computeWindowFunc(fc, rows, ctxOf)
			if err != nil {
				return nil, nil, err
			}
			windowVals[fc] = vals
		}
	}

	var cols []string
	var outRows []types.Row
	for i, row := range rows {
		rowVals := map[*pgq.FuncCall]types.Value{}
		for fc, vals := range windowVals {
			rowVals[fc] = vals[i]
		}
		c, r, err := es.projectTargets(ctxOf(row), rowVals, targets, starCols)
		if err != nil {
			return nil, nil, err
		}
		cols = c
		outRows = append(outRows, r)
	}
	return cols, outRows, nil
}

func joinCtxOf(jt *joinedTable, now time.Time, newUUID func() uuid.UUID) func(types.Row) *eval.Context {
	return func(row types.Row) *eval.Context { return jt.ctxFor(row, now, newUUID) }
}

func hasAggregateTarget(targets []*pgq.Node, having pgq.Node) bool {
	var funcs []*pgq.FuncCall
	for _, t := range targets {
		if rt := t.GetResTarget(); rt != nil {
			collectAggregateCalls(rt.GetVal().GetNode(), &funcs)
		}
	}
	collectAggregateCalls(having, &funcs)
	return len(funcs) > 0
}

// executeSingleTableSelect is the access-path-aware plain single-table
// path (spec.md §4.7 step 1's "base table" case without a join): it
// reuses scanTable's index-or-full-scan choice and optionally locks the
// matched rows for FOR UPDATE (step 5).
func (es *execState) executeSingleTableSelect(stmt *pgq.SelectStmt, rv *pgq.RangeVar, now time.Time, newUUID func() uuid.UUID) ([]string, []types.Row, error) {
	schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, rv.GetRelname())
	if err != nil {
		return nil, nil, err
	}
	newCtx := func(row types.Row) *eval.Context {
		ctx := eval.NewRowContext(schema, row)
		ctx.Now = &now
		ctx.NewUUID = newUUID
		return ctx
	}
	rows, err := es.scanTable(schema, stmt.GetWhereClause(), newCtx)
	if err != nil {
		return nil, nil, err
	}

	if forUpdate(stmt) {
		if err := catalog.LockRows(es.ctx, es.txn, es.namespace, schema, rows); err != nil {
			return nil, nil, err
		}
	}

	targets := stmt.GetTargetList()
	starCols := columnNames(schema)
	if len(stmt.GetGroupClause()) > 0 || hasAggregateTarget(targets, stmt.GetHavingClause()) {
		return es.groupAndAggregate(rows, newCtx, stmt.GetGroupClause(), stmt.GetHavingClause(), targets, starCols)
	}

	var windowFuncs []*pgq.FuncCall
	collectWindowCalls(targets, &windowFuncs)
	var windowVals map[*pgq.FuncCall][]types.Value
	if len(windowFuncs) > 0 {
		windowVals = make(map[*pgq.FuncCall][]types.Value, len(windowFuncs))
		for _, fc := range windowFuncs {
			vals, err := es.computeWindowFunc(fc, rows, newCtx)
			if err != nil {
				return nil, nil, err
			}
			windowVals[fc] = vals
		}
	}

	var cols []string
	var outRows []types.Row
	for i, row := range rows {
		rowVals := map[*pgq.FuncCall]types.Value{}
		for fc, vals := range windowVals {
			rowVals[fc] = vals[i]
		}
		c, r, err := es.projectTargets(newCtx(row), rowVals, targets, starCols)
		if err != nil {
			return nil, nil, err
		}
		cols = c
		outRows = append(outRows, r)
	}
	return cols, outRows, nil
}

func forUpdate(stmt *pgq.SelectStmt) bool {
	for _, lc := range stmt.GetLockingClause() {
		lockStmt := lc.GetLockingClause()
		if lockStmt == nil {
			continue
		}
		switch lockStmt.GetStrength() {
		case pgq.LockClauseStrength_LCS_FORUPDATE, pgq.LockClauseStrength_LCS_FORNOKEYUPDATE:
			return true
		}
	}
	return false
}

// projectTargets evaluates a target list against rowCtx (spec.md §4.7
// step 10), resolving aggregate/window FuncCalls from rowVals by AST
// identity and expanding a bare `*` to starColumns (the full combined
// column list for a join, or a single table's own columns).
func (es *execState) projectTargets(rowCtx *eval.Context, rowVals map[*pgq.FuncCall]types.Value, targets []*pgq.Node, starColumns []string) ([]string, types.Row, error) {
	var columns []string
	var row types.Row
	for i, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		if isStarTarget(rt.GetVal().GetNode()) {
			columns = append(columns, starColumns...)
			row = append(row, rowCtx.Row...)
			continue
		}
		v, err := es.evalRow(rowCtx, rowVals, rt.GetVal().GetNode())
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, targetLabel(rt, i+1))
		row = append(row, v)
	}
	return columns, row, nil
}

// executeSetOp implements UNION/INTERSECT/EXCEPT (spec.md §4.7): both
// sides are executed independently, their column counts must match, and
// rows combine by the operator's own ALL/DISTINCT rule using the bincode
// encoding as the dedup key.
func (es *execState) executeSetOp(stmt *pgq.SelectStmt) ([]string, []types.Row, error) {
	left, err := es.executeSelectCore(stmt.GetLarg())
	if err != nil {
		return nil, nil, err
	}
	right, err := es.executeSelectCore(stmt.GetRarg())
	if err != nil {
		return nil, nil, err
	}
	if len(left.Columns) != len(right.Columns) {
		return nil, nil, kverrors.Unsupported{Reason: "set operation operands must have the same number of columns"}
	}

	var out []types.Row
	switch stmt.GetOp() {
	case pgq.SetOperation_SETOP_UNION:
		out = append(out, left.Rows...)
		out = append(out, right.Rows...)
	case pgq.SetOperation_SETOP_INTERSECT:
		rightKeys := map[string]int{}
		for _, r := range right.Rows {
			rightKeys[string(types.EncodeValues(r))]++
		}
		for _, r := range left.Rows {
			k := string(types.EncodeValues(r))
			if rightKeys[k] > 0 {
				out = append(out, r)
				if !stmt.GetAll() {
					rightKeys[k] = 0
				} else {
					rightKeys[k]--
				}
			}
		}
	case pgq.SetOperation_SETOP_EXCEPT:
		rightKeys := map[string]bool{}
		for _, r := range right.Rows {
			rightKeys[string(types.EncodeValues(r))] = true
		}
		for _, r := range left.Rows {
			if !rightKeys[string(types.EncodeValues(r))] {
				out = append(out, r)
			}
		}
	default:
		return nil, nil, kverrors.Unsupported{Reason: "unsupported set operation"}
	}

	if !stmt.GetAll() {
		out = dedupRows(out)
	}
	return left.Columns, out, nil
}

// orderProjectedRows implements step 8's ORDER BY over the already
// projected output columns: each sort item resolves to an output column
// by ordinal literal or by matching an output alias, since by this point
// the underlying source row context (for a set operation's branches, or
// a grouped result) may no longer be available.
func (es *execState) orderProjectedRows(stmt *pgq.SelectStmt, cols []string, rows []types.Row) ([]types.Row, error) {
	sortClause := stmt.GetSortClause()
	if len(sortClause) == 0 {
		return rows, nil
	}
	type key struct {
		idx        int
		desc       bool
		nullsFirst bool
	}
	keys := make([]key, 0, len(sortClause))
	for _, n := range sortClause {
		sb, ok := n.GetNode().(*pgq.Node_SortBy)
		if !ok {
			continue
		}
		idx, err := resolveOutputColumn(sb.SortBy.GetNode(), cols)
		if err != nil {
			return nil, err
		}
		desc := sb.SortBy.GetSortbyDir() == pgq.SortByDir_SORTBY_DESC
		nullsFirst := !desc
		switch sb.SortBy.GetSortbyNulls() {
		case pgq.SortByNulls_SORTBY_NULLS_FIRST:
			nullsFirst = true
		case pgq.SortByNulls_SORTBY_NULLS_LAST:
			nullsFirst = false
		}
		keys = append(keys, key{idx: idx, desc: desc, nullsFirst: nullsFirst})
	}

	idxs := make([]int, len(rows))
	for i := range rows {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool {
		a, b := idxs[i], idxs[j]
		for _, k := range keys {
			cmp := orderCompare(rows[a][k.idx], rows[b][k.idx], k.desc, k.nullsFirst)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	out := make([]types.Row, len(rows))
	for i, idx := range idxs {
		out[i] = rows[idx]
	}
	return out, nil
}

// resolveOutputColumn resolves one ORDER BY item against the projected
// output column list: an integer literal is a 1-based ordinal, a bare
// column reference matches an output alias by name.
func resolveOutputColumn(node pgq.Node, cols []string) (int, error) {
	switch n := node.(type) {
	case *pgq.Node_AConst:
		if iv, ok := n.AConst.GetVal().(*pgq.A_Const_Ival); ok {
			pos := int(iv.Ival.GetIval())
			if pos < 1 || pos > len(cols) {
				return 0, kverrors.Unsupported{Reason: "ORDER BY position out of range"}
			}
			return pos - 1, nil
		}
	case *pgq.Node_ColumnRef:
		fields := n.ColumnRef.GetFields()
		if len(fields) > 0 {
			if s := fields[len(fields)-1].GetString_(); s != nil {
				name := s.GetSval()
				for i, c := range cols {
					if c == name {
						return i, nil
					}
				}
			}
		}
	}
	return 0, kverrors.Unsupported{Reason: "ORDER BY expression must reference an output column"}
}

// applyLimitOffset implements step 9: OFFSET, then LIMIT / FETCH FIRST
// (which defaults to 1 row when a bare "FETCH FIRST FROM ..." gives no
// quantity).
func applyLimitOffset(stmt *pgq.SelectStmt, rows []types.Row) []types.Row {
	offset := 0
	if off := stmt.GetLimitOffset(); off != nil {
		if v, err := eval.Eval(eval.EmptyContext(), off); err == nil {
			offset = intOf(v)
		}
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]

	limitNode := stmt.GetLimitCount()
	if limitNode == nil {
		return rows
	}
	limit := -1
	if v, err := eval.Eval(eval.EmptyContext(), limitNode); err == nil {
		limit = intOf(v)
	} else if stmt.GetLimitOption() == pgq.LimitOption_LIMIT_OPTION_COUNT {
		limit = 1
	}
	if limit < 0 || limit > len(rows) {
		return rows
	}
	return rows[:limit]
}

func intOf(v types.Value) int {
	switch v.Kind {
	case types.KindInt32:
		return int(v.I32)
	case types.KindInt64:
		return int(v.I64)
	default:
		return 0
	}
}

// isDistinctClause reports whether this SELECT's own DISTINCT clause
// applies to the whole row (DISTINCT ON is not supported: spec.md scopes
// it out along with any other Postgres extension not explicitly named).
func isDistinctClause(stmt *pgq.SelectStmt) bool {
	return stmt.GetDistinctClause() != nil && len(stmt.GetDistinctClause()) > 0
}

func dedupRows(rows []types.Row) []types.Row {
	seen := map[string]bool{}
	out := make([]types.Row, 0, len(rows))
	for _, r := range rows {
		k := string(types.EncodeValues(r))
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
