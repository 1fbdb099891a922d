// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"testing"

	pgq "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/types"
)

// parseExpr parses "SELECT <expr>" and returns the first target list
// entry's expression node, the same shape the executor will hand Eval
// once it rewrites a SELECT's target list.
func parseExpr(t *testing.T, expr string) pgq.Node {
	t.Helper()
	tree, err := pgq.Parse("SELECT " + expr)
	require.NoError(t, err)
	require.Len(t, tree.GetStmts(), 1)
	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	require.NotNil(t, sel)
	require.Len(t, sel.GetTargetList(), 1)
	return sel.GetTargetList()[0].GetResTarget().GetVal()
}

func evalExpr(t *testing.T, ctx *Context, expr string) types.Value {
	t.Helper()
	v, err := Eval(ctx, parseExpr(t, expr))
	require.NoError(t, err)
	return v
}

func TestEvalArithmetic(t *testing.T) {
	ctx := EmptyContext()

	v := evalExpr(t, ctx, "1 + 2")
	require.Equal(t, types.Int32(3), v)

	v = evalExpr(t, ctx, "1 + 2.5")
	require.Equal(t, types.Float64(3.5), v)

	v = evalExpr(t, ctx, "10 / 3")
	require.Equal(t, types.Int32(3), v)

	v = evalExpr(t, ctx, "10 % 3")
	require.Equal(t, types.Int32(1), v)

	v = evalExpr(t, ctx, "-5")
	require.Equal(t, types.Int32(-5), v)
}

func TestEvalComparison(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "1 < 2"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "2 < 1"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "'a' = 'a'"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "NULL = 1"))
}

func TestEvalBooleanLogic(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "true AND true"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "true AND NULL"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "false OR true"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "NOT true"))
}

func TestEvalLike(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "'hello' LIKE 'h%'"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "'hello' LIKE 'x%'"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "'HELLO' ILIKE 'h%'"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "'cat' LIKE 'c_t'"))
}

func TestEvalBetweenAndIn(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "5 BETWEEN 1 AND 10"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "15 BETWEEN 1 AND 10"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "5 IN (1, 5, 10)"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "5 NOT IN (1, 5, 10)"))
}

func TestEvalNullAndBooleanTests(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "NULL IS NULL"))
	require.Equal(t, types.Boolean(false), evalExpr(t, ctx, "1 IS NULL"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "true IS TRUE"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "NULL IS UNKNOWN"))
}

func TestEvalCase(t *testing.T) {
	ctx := EmptyContext()

	v := evalExpr(t, ctx, "CASE WHEN 1 > 2 THEN 'a' WHEN 2 > 1 THEN 'b' ELSE 'c' END")
	require.Equal(t, types.Text("b"), v)

	v = evalExpr(t, ctx, "CASE 2 WHEN 1 THEN 'a' WHEN 2 THEN 'b' ELSE 'c' END")
	require.Equal(t, types.Text("b"), v)

	v = evalExpr(t, ctx, "CASE WHEN false THEN 'a' END")
	require.True(t, v.IsNull())
}

func TestEvalCast(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Int32(42), evalExpr(t, ctx, "'42'::int"))
	require.Equal(t, types.Float64(3.5), evalExpr(t, ctx, "'3.5'::float8"))
	require.Equal(t, types.Boolean(true), evalExpr(t, ctx, "'yes'::boolean"))
	require.Equal(t, types.Text("42"), evalExpr(t, ctx, "42::text"))
}

func TestEvalFunctions(t *testing.T) {
	ctx := EmptyContext()

	require.Equal(t, types.Int32(5), evalExpr(t, ctx, "COALESCE(NULL, 5, 10)"))
	require.Equal(t, types.Text("ABC"), evalExpr(t, ctx, "UPPER('abc')"))
	require.Equal(t, types.Int32(3), evalExpr(t, ctx, "LENGTH('abc')"))
	require.Equal(t, types.Text("abcdef"), evalExpr(t, ctx, "CONCAT('abc', 'def')"))
	require.Equal(t, types.Float64(4), evalExpr(t, ctx, "SQRT(16)"))
	require.Equal(t, types.Int32(5), evalExpr(t, ctx, "ABS(-5)"))
	require.Equal(t, types.Int32(10), evalExpr(t, ctx, "GREATEST(1, 10, 5)"))
}

func TestEvalFunctionsUnknown(t *testing.T) {
	ctx := EmptyContext()
	_, err := Eval(ctx, parseExpr(t, "NOT_A_REAL_FUNCTION(1)"))
	require.Error(t, err)
}

func TestEvalColumnResolution(t *testing.T) {
	schema := &types.TableSchema{
		Columns: []types.ColumnDef{
			{Name: "id", DataType: types.DataType{Tag: types.DataTypeInt32}},
			{Name: "name", DataType: types.DataType{Tag: types.DataTypeText}},
		},
	}
	row := types.Row{types.Int32(1), types.Text("alice")}
	ctx := NewRowContext(schema, row)

	v, err := ctx.Resolve("", "name")
	require.NoError(t, err)
	require.Equal(t, types.Text("alice"), v)

	_, err = ctx.Resolve("", "missing")
	require.Error(t, err)
}

func TestCompareForOrderByNullHandling(t *testing.T) {
	require.Equal(t, 0, CompareForOrderBy(types.Null(), types.Null()))
	require.Equal(t, -1, CompareForOrderBy(types.Null(), types.Int32(1)))
	require.Equal(t, 1, CompareForOrderBy(types.Int32(1), types.Null()))
	require.Equal(t, -1, CompareForOrderBy(types.Int32(1), types.Int32(2)))
}

func TestJSONOperators(t *testing.T) {
	ctx := EmptyContext()

	v := evalExpr(t, ctx, `'{"a": {"b": 1}}'::json -> 'a'`)
	require.Equal(t, types.KindJSON, v.Kind)

	v = evalExpr(t, ctx, `'{"a": "x"}'::json ->> 'a'`)
	require.Equal(t, types.Text("x"), v)

	v = evalExpr(t, ctx, `'{"a": {"b": 2}}'::json #>> '{a,b}'`)
	require.Equal(t, types.Text("2"), v)

	v = evalExpr(t, ctx, `'{"a": 1, "b": 2}'::jsonb @> '{"a": 1}'::jsonb`)
	require.Equal(t, types.Boolean(true), v)
}

func TestCanonicalizeJSON(t *testing.T) {
	canonical, err := CanonicalizeJSON(`{"b": 2, "a": 1}`)
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2}`, canonical)
}
