// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strconv"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/types"
)

// isStarTarget reports whether a target-list entry is a bare `*`
// (SELECT * / RETURNING *): a ResTarget whose value is a ColumnRef ending
// in an A_Star field.
func isStarTarget(val pgq.Node) bool {
	ref, ok := val.(*pgq.Node_ColumnRef)
	if !ok {
		return false
	}
	fields := ref.ColumnRef.GetFields()
	if len(fields) == 0 {
		return false
	}
	_, ok = fields[len(fields)-1].Node.(*pgq.Node_AStar)
	return ok
}

// targetLabel picks the output column name for one target-list entry:
// its explicit AS alias, or its bare column name when the expression is
// a plain column reference, or a positional placeholder otherwise
// (spec.md §4.7 "unnamed expressions get a positional column name").
func targetLabel(rt *pgq.ResTarget, pos int) string {
	if rt.GetName() != "" {
		return rt.GetName()
	}
	if ref, ok := rt.GetVal().Node.(*pgq.Node_ColumnRef); ok {
		fields := ref.ColumnRef.GetFields()
		if len(fields) > 0 {
			if s := fields[len(fields)-1].GetString_(); s != nil {
				return s.GetSval()
			}
		}
	}
	return "column" + strconv.Itoa(pos)
}

// projectSingleTable evaluates a target list (SELECT's, or an
// INSERT/UPDATE/DELETE RETURNING clause) against a single-table row
// context, expanding a bare `*` into every one of schema's columns in
// order. It does not support aggregates/window results or joins; those
// are handled by select.go's own richer projection path for top-level
// SELECT.
func (es *execState) projectSingleTable(rowCtx *eval.Context, targets []*pgq.Node, schema *types.TableSchema) ([]string, types.Row, error) {
	var columns []string
	var row types.Row
	for i, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		if isStarTarget(rt.GetVal().Node) {
			for _, c := range schema.Columns {
				columns = append(columns, c.Name)
			}
			row = append(row, rowCtx.Row...)
			continue
		}
		v, err := es.evalRow(rowCtx, nil, rt.GetVal().Node)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, targetLabel(rt, i+1))
		row = append(row, v)
	}
	return columns, row, nil
}
