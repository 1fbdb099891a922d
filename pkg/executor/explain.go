// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/planner"
	"github.com/kvpg/kvpg/pkg/types"
)

// execExplain implements EXPLAIN/EXPLAIN ANALYZE, supplemented from the
// original implementation's src/sql/explain.rs. It runs the same
// access-path selection SELECT uses (pkg/planner.ChooseAccessPath) and
// reports the chosen path as a "QUERY PLAN" text column instead of
// producing the query's own result rows. EXPLAIN ANALYZE additionally
// executes the query for real and appends the actual row count.
func execExplain(es *execState, stmt *pgq.ExplainStmt) (*Result, error) {
	sel, ok := stmt.GetQuery().GetNode().(*pgq.Node_SelectStmt)
	if !ok {
		return nil, kverrors.Unsupported{Reason: "EXPLAIN only supports SELECT"}
	}
	analyze := explainOptionSet(stmt.GetOptions(), "analyze")

	lines, err := explainLines(es, sel.SelectStmt)
	if err != nil {
		return nil, err
	}

	if analyze {
		result, err := execTopLevelSelect(es, sel.SelectStmt)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("Actual Rows: %d", len(result.Rows)))
	}

	rows := make([]types.Row, len(lines))
	for i, l := range lines {
		rows[i] = types.Row{types.Text(l)}
	}
	return &Result{Columns: []string{"QUERY PLAN"}, Rows: rows}, nil
}

func explainOptionSet(options []*pgq.Node, name string) bool {
	for _, o := range options {
		if def, ok := o.Node.(*pgq.Node_DefElem); ok && def.DefElem.GetDefname() == name {
			return true
		}
	}
	return false
}

// explainLines describes the access path SELECT would choose for stmt's
// FROM-clause table. Multi-table and FROM-less queries report a fixed
// description rather than duplicating select_join.go's full join-order
// walk, since the point of this supplement is surfacing the single-table
// index-vs-scan decision spec.md §4.6 already makes, not a full plan tree.
func explainLines(es *execState, stmt *pgq.SelectStmt) ([]string, error) {
	from := stmt.GetFromClause()
	if len(from) != 1 {
		count, err := catalog.LiveTableCount(es.ctx, es.txn, es.namespace)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("Scan (multi-table or FROM-less query over %d live tables; plan not broken down further)", count)}, nil
	}
	rv, ok := from[0].GetNode().(*pgq.Node_RangeVar)
	if !ok {
		return []string{"Scan (subquery or join source)"}, nil
	}
	name := rv.RangeVar.GetRelname()
	schema, ok, err := catalog.GetSchema(es.ctx, es.txn, es.namespace, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{fmt.Sprintf("Scan on %s (view)", name)}, nil
	}

	where := stmt.GetWhereClause()
	var predicates []planner.Predicate
	if where != nil {
		predicates = planner.ExtractPredicates(where.GetNode())
	}
	path := planner.ChooseAccessPath(schema, predicates, estimatedTableRows)

	switch path.Kind {
	case planner.IndexScan:
		return []string{fmt.Sprintf("Index Scan using %s on %s (cost=%.2f rows=%.0f)", path.Index.Name, name, path.Cost, path.EstimatedRows)}, nil
	case planner.IndexRangeScan:
		return []string{fmt.Sprintf("Index Range Scan using %s on %s (cost=%.2f rows=%.0f)", path.Index.Name, name, path.Cost, path.EstimatedRows)}, nil
	default:
		return []string{fmt.Sprintf("Seq Scan on %s (cost=%.2f rows=%.0f)", name, path.Cost, path.EstimatedRows)}, nil
	}
}
