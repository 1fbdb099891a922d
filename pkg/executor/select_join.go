// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"time"

	"github.com/google/uuid"
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/parser"
	"github.com/kvpg/kvpg/pkg/types"
)

// joinedTable is the evolving combined row set built while walking a
// FROM clause (spec.md §4.7 "SELECT — join path"): names is the join
// order, colsByName gives each table's column list, and rows holds one
// concatenated row per surviving combination, each row's width equal to
// the sum of every table's own column count in names order.
type joinedTable struct {
	names      []string
	colsByName map[string][]string
	rows       []types.Row
}

func singleTableSource(alias string, columns []string, rows []types.Row) *joinedTable {
	return &joinedTable{
		names:      []string{alias},
		colsByName: map[string][]string{alias: columns},
		rows:       rows,
	}
}

func (jt *joinedTable) starColumns() []string {
	var out []string
	for _, n := range jt.names {
		out = append(out, jt.colsByName[n]...)
	}
	return out
}

// ctxFor builds a join-aware row context for one combined row, binding
// both `alias.col` and bare `col` per table in names order (spec.md
// §4.7: "bare key binds first to the first table providing it").
func (jt *joinedTable) ctxFor(row types.Row, now time.Time, newUUID func() uuid.UUID) *eval.Context {
	ctx := eval.NewJoinContext(row)
	offset := 0
	for _, n := range jt.names {
		cols := jt.colsByName[n]
		ctx.AddTable(n, cols, offset)
		offset += len(cols)
	}
	ctx.Now = &now
	ctx.NewUUID = newUUID
	return ctx
}

// resolveFromClause folds a (possibly comma-separated) FROM list left to
// right, implicit-cross-joining successive items (spec.md §4.7's join
// path describes "FROM t0" plus "each subsequent join clause"; a bare
// comma list is the degenerate all-CROSS-JOIN case of the same walk).
func (es *execState) resolveFromClause(items []*pgq.Node, now time.Time, newUUID func() uuid.UUID) (*joinedTable, error) {
	if len(items) == 0 {
		return nil, nil
	}
	combined, err := es.resolveFromItem(items[0], now, newUUID)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		next, err := es.resolveFromItem(item, now, newUUID)
		if err != nil {
			return nil, err
		}
		combined = crossJoin(combined, next)
	}
	return combined, nil
}

func (es *execState) resolveFromItem(node *pgq.Node, now time.Time, newUUID func() uuid.UUID) (*joinedTable, error) {
	switch n := node.Node.(type) {
	case *pgq.Node_RangeVar:
		return es.resolveBaseRelation(n.RangeVar, now, newUUID)
	case *pgq.Node_JoinExpr:
		return es.resolveJoinExpr(n.JoinExpr, now, newUUID)
	case *pgq.Node_RangeSubselect:
		alias := n.RangeSubselect.GetAlias().GetAliasname()
		sub := n.RangeSubselect.GetSubquery().GetSelectStmt()
		if sub == nil {
			return nil, kverrors.Unsupported{Reason: "FROM subquery must be a SELECT"}
		}
		result, err := es.executeSelectCore(sub)
		if err != nil {
			return nil, err
		}
		if alias == "" {
			alias = "unnamed_subquery"
		}
		return singleTableSource(alias, result.Columns, result.Rows), nil
	default:
		return nil, kverrors.Unsupported{Reason: "unsupported FROM clause item"}
	}
}

// resolveBaseRelation resolves a bare name against, in order, the
// statement's own CTEs, then the information_schema relations, then views
// (recursively executing the stored defining query), then base tables
// (spec.md §4.7 step 1).
func (es *execState) resolveBaseRelation(rv *pgq.RangeVar, now time.Time, newUUID func() uuid.UUID) (*joinedTable, error) {
	relname := rv.GetRelname()
	alias := rv.GetAlias().GetAliasname()
	if alias == "" {
		alias = relname
	}

	if cte, ok := es.ctes[relname]; ok {
		return singleTableSource(alias, cte.columns, cte.rows), nil
	}

	if isTable, ok, err := es.resolveInformationSchemaRelation(relname); err != nil {
		return nil, err
	} else if ok {
		cols := isTable.colsByName[isTable.names[0]]
		return singleTableSource(alias, cols, isTable.rows), nil
	}

	viewSQL, ok, err := catalog.GetView(es.ctx, es.txn, es.namespace, relname)
	if err != nil {
		return nil, err
	}
	if ok {
		result, err := es.executeView(viewSQL)
		if err != nil {
			return nil, err
		}
		return singleTableSource(alias, result.Columns, result.Rows), nil
	}

	schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, relname)
	if err != nil {
		return nil, err
	}
	rows, err := catalog.Scan(es.ctx, es.txn, es.namespace, schema)
	if err != nil {
		return nil, err
	}
	return singleTableSource(alias, columnNames(schema), rows), nil
}

// executeView re-parses a stored CREATE VIEW statement's source text
// (see execCreateView) and executes its defining query.
func (es *execState) executeView(viewSQL string) (*Result, error) {
	parsed, err := parser.Parse(viewSQL)
	if err != nil {
		return nil, err
	}
	if len(parsed.Statements) != 1 {
		return nil, kverrors.Unsupported{Reason: "stored view text did not parse to a single statement"}
	}
	vs, ok := parsed.Statements[0].Node.(*pgq.Node_ViewStmt)
	if !ok {
		return nil, kverrors.Unsupported{Reason: "stored view text is not a CREATE VIEW statement"}
	}
	sel, ok := vs.ViewStmt.GetQuery().Node.(*pgq.Node_SelectStmt)
	if !ok {
		return nil, kverrors.Unsupported{Reason: "view query is not a SELECT"}
	}
	return es.executeSelectCore(sel.SelectStmt)
}

func crossJoin(left, right *joinedTable) *joinedTable {
	out := mergeTableShapes(left, right)
	out.rows = make([]types.Row, 0, len(left.rows)*len(right.rows))
	for _, lr := range left.rows {
		for _, rr := range right.rows {
			out.rows = append(out.rows, concatRows(lr, rr))
		}
	}
	return out
}

func mergeTableShapes(left, right *joinedTable) *joinedTable {
	colsByName := make(map[string][]string, len(left.colsByName)+len(right.colsByName))
	for k, v := range left.colsByName {
		colsByName[k] = v
	}
	for k, v := range right.colsByName {
		colsByName[k] = v
	}
	names := make([]string, 0, len(left.names)+len(right.names))
	names = append(names, left.names...)
	names = append(names, right.names...)
	return &joinedTable{names: names, colsByName: colsByName}
}

func concatRows(a, b types.Row) types.Row {
	out := make(types.Row, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func nullRow(n int) types.Row {
	out := make(types.Row, n)
	for i := range out {
		out[i] = types.Null()
	}
	return out
}

func stringListNames(nodes []*pgq.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s, ok := n.Node.(*pgq.Node_String_); ok {
			names = append(names, s.String_.GetSval())
		}
	}
	return names
}

// commonColumnNames implements NATURAL JOIN's implicit column set: every
// name that appears in both sides' column lists.
func commonColumnNames(left, right *joinedTable) []string {
	rightCols := map[string]bool{}
	for _, c := range right.starColumns() {
		rightCols[c] = true
	}
	var out []string
	for _, c := range left.starColumns() {
		if rightCols[c] {
			out = append(out, c)
		}
	}
	return out
}

// resolveJoinExpr implements one JOIN clause (spec.md §4.7 "SELECT —
// join path"): INNER/LEFT/RIGHT/FULL/CROSS with ON, and NATURAL/USING
// variants resolved as an implicit equality condition over their shared
// column names rather than an AST predicate, since Postgres's own parser
// leaves NATURAL/USING joins with no Quals node at all.
func (es *execState) resolveJoinExpr(je *pgq.JoinExpr, now time.Time, newUUID func() uuid.UUID) (*joinedTable, error) {
	left, err := es.resolveFromItem(je.GetLarg(), now, newUUID)
	if err != nil {
		return nil, err
	}
	right, err := es.resolveFromItem(je.GetRarg(), now, newUUID)
	if err != nil {
		return nil, err
	}

	usingCols := stringListNames(je.GetUsingClause())
	if je.GetIsNatural() {
		usingCols = commonColumnNames(left, right)
	}

	shape := mergeTableShapes(left, right)
	leftWidth := len(left.starColumns())
	rightWidth := len(right.starColumns())

	matches := func(lr, rr types.Row) (bool, error) {
		if len(usingCols) > 0 {
			for _, col := range usingCols {
				lv, err := columnValue(left, lr, col)
				if err != nil {
					return false, err
				}
				rv, err := columnValue(right, rr, col)
				if err != nil {
					return false, err
				}
				if lv.IsNull() || rv.IsNull() {
					return false, nil
				}
				cmp, err := eval.Compare(lv, rv)
				if err != nil {
					return false, err
				}
				if cmp != 0 {
					return false, nil
				}
			}
			return true, nil
		}
		if je.GetQuals() == nil {
			return true, nil
		}
		ctx := shape.ctxFor(concatRows(lr, rr), now, newUUID)
		return es.evalBoolRow(ctx, nil, je.GetQuals())
	}

	wantsLeftOuter := je.GetJointype() == pgq.JoinType_JOIN_LEFT || je.GetJointype() == pgq.JoinType_JOIN_FULL
	wantsRightOuter := je.GetJointype() == pgq.JoinType_JOIN_RIGHT || je.GetJointype() == pgq.JoinType_JOIN_FULL

	rightMatched := make([]bool, len(right.rows))
	out := &joinedTable{names: shape.names, colsByName: shape.colsByName}
	for _, lr := range left.rows {
		leftMatchedAny := false
		for ri, rr := range right.rows {
			ok, err := matches(lr, rr)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			leftMatchedAny = true
			rightMatched[ri] = true
			out.rows = append(out.rows, concatRows(lr, rr))
		}
		if !leftMatchedAny && wantsLeftOuter {
			out.rows = append(out.rows, concatRows(lr, nullRow(rightWidth)))
		}
	}
	if wantsRightOuter {
		for ri, rr := range right.rows {
			if !rightMatched[ri] {
				out.rows = append(out.rows, concatRows(nullRow(leftWidth), rr))
			}
		}
	}
	return out, nil
}

// columnValue reads a known-owned column's value out of a single table's
// own (not yet combined) row, by name, for NATURAL/USING join matching.
func columnValue(t *joinedTable, row types.Row, col string) (types.Value, error) {
	offset := 0
	for _, n := range t.names {
		cols := t.colsByName[n]
		for i, c := range cols {
			if c == col {
				return row[offset+i], nil
			}
		}
		offset += len(cols)
	}
	return types.Value{}, kverrors.ColumnNotFoundError{Column: col}
}
