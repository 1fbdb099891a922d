// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"testing"

	pgq "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/types"
)

func whereOf(t *testing.T, sql string) pgq.Node {
	t.Helper()
	tree, err := pgq.Parse("SELECT * FROM t WHERE " + sql)
	require.NoError(t, err)
	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	require.NotNil(t, sel)
	return sel.GetWhereClause()
}

func TestExtractPredicatesSimple(t *testing.T) {
	preds := ExtractPredicates(whereOf(t, "a = 1 AND b > 2"))
	require.Len(t, preds, 2)
	require.Equal(t, "a", preds[0].Column)
	require.Equal(t, "=", preds[0].Op)
	require.Equal(t, "b", preds[1].Column)
	require.Equal(t, ">", preds[1].Op)
}

func TestExtractPredicatesFlipsReversedOperands(t *testing.T) {
	preds := ExtractPredicates(whereOf(t, "1 < a"))
	require.Len(t, preds, 1)
	require.Equal(t, "a", preds[0].Column)
	require.Equal(t, ">", preds[0].Op)
}

func TestExtractPredicatesSkipsOr(t *testing.T) {
	preds := ExtractPredicates(whereOf(t, "a = 1 OR b = 2"))
	require.Empty(t, preds)
}

func TestExtractPredicatesIsNull(t *testing.T) {
	preds := ExtractPredicates(whereOf(t, "a IS NULL AND b IS NOT NULL"))
	require.Len(t, preds, 2)
	require.Equal(t, "isnull", preds[0].Op)
	require.Equal(t, "isnotnull", preds[1].Op)
}

func schemaWithIndex(unique bool, cols ...string) *types.TableSchema {
	return &types.TableSchema{
		Name: "t",
		Indexes: []types.IndexDef{
			{Name: "idx", Columns: cols, Unique: unique},
		},
	}
}

func TestChooseAccessPathFullIndexMatch(t *testing.T) {
	schema := schemaWithIndex(true, "a")
	preds := ExtractPredicates(whereOf(t, "a = 1"))
	path := ChooseAccessPath(schema, preds, 1_000_000)
	require.Equal(t, IndexScan, path.Kind)
	require.InDelta(t, 1.0, path.EstimatedRows, 0.001)
}

func TestChooseAccessPathPrefixMatch(t *testing.T) {
	schema := schemaWithIndex(false, "a", "b")
	preds := ExtractPredicates(whereOf(t, "a = 1"))
	path := ChooseAccessPath(schema, preds, 1_000_000)
	require.Equal(t, IndexRangeScan, path.Kind)
}

func TestChooseAccessPathFallsBackToFullScan(t *testing.T) {
	schema := &types.TableSchema{Name: "t"}
	preds := ExtractPredicates(whereOf(t, "a = 1"))
	path := ChooseAccessPath(schema, preds, 100)
	require.Equal(t, FullScan, path.Kind)
	require.Equal(t, float64(100), path.EstimatedRows)
}

func TestPushdownPredicates(t *testing.T) {
	preds := []Predicate{{Column: "a", Op: "="}, {Column: "b", Op: "="}, {Column: "c", Op: "="}}
	owned := map[string]map[string]bool{
		"t1": {"a": true},
		"t2": {"b": true},
	}
	perTable, remaining := PushdownPredicates(preds, owned)
	require.Len(t, perTable["t1"], 1)
	require.Len(t, perTable["t2"], 1)
	require.Len(t, remaining, 1)
	require.Equal(t, "c", remaining[0].Column)
}

func TestJoinOrder(t *testing.T) {
	in := []TableCardinality{{Table: "big", Rows: 1000}, {Table: "small", Rows: 10}}
	out := JoinOrder(in)
	require.Equal(t, "small", out[0].Table)
	require.Equal(t, "big", out[1].Table)
}
