// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// aggregateFuncNames is the closed set of aggregate names the executor
// recognizes in a target list, HAVING clause or ORDER BY item (spec.md
// §4.7 "GROUP BY / aggregates"). Any other FuncCall reaching evalRow is
// left for pkg/eval's scalar function library.
var aggregateFuncNames = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

// isAggregateCall excludes any FuncCall carrying an OVER clause: a
// window-form "sum(x) OVER (...)" shares its name with the plain
// aggregate but is evaluated by window.go's own pipeline, not by
// groupAndAggregate.
func isAggregateCall(fc *pgq.FuncCall) bool {
	return fc.GetOver() == nil && aggregateFuncNames[lastNamePart(fc.GetFuncname())]
}

func lastNamePart(names []*pgq.Node) string {
	if len(names) == 0 {
		return ""
	}
	return strings.ToLower(names[len(names)-1].GetString_().GetSval())
}

// collectAggregateCalls walks a target-list/HAVING/ORDER-BY expression
// tree looking for aggregate FuncCall nodes, appending each one found (by
// AST identity, not text) to *out. It only needs to be read-only since
// aggregates are evaluated once per group and then looked up by pointer
// from evalRow's aggVals map, never spliced back into the tree.
func collectAggregateCalls(node pgq.Node, out *[]*pgq.FuncCall) {
	switch n := node.(type) {
	case nil:
		return
	case *pgq.Node_FuncCall:
		if isAggregateCall(n.FuncCall) {
			*out = append(*out, n.FuncCall)
			return
		}
		for _, a := range n.FuncCall.GetArgs() {
			collectAggregateCalls(a.GetNode(), out)
		}
	case *pgq.Node_AExpr:
		collectAggregateCalls(n.AExpr.GetLexpr(), out)
		collectAggregateCalls(n.AExpr.GetRexpr(), out)
	case *pgq.Node_BoolExpr:
		for _, a := range n.BoolExpr.GetArgs() {
			collectAggregateCalls(a.GetNode(), out)
		}
	case *pgq.Node_CaseExpr:
		for _, w := range n.CaseExpr.GetArgs() {
			when := w.GetCaseWhen()
			if when == nil {
				continue
			}
			collectAggregateCalls(when.GetExpr(), out)
			collectAggregateCalls(when.GetResult(), out)
		}
		collectAggregateCalls(n.CaseExpr.GetDefresult(), out)
	case *pgq.Node_TypeCast:
		collectAggregateCalls(n.TypeCast.GetArg(), out)
	case *pgq.Node_NullTest:
		collectAggregateCalls(n.NullTest.GetArg(), out)
	}
}

// evalRow evaluates a WHERE/HAVING/target-list/ORDER-BY expression against
// rowCtx, intercepting two node shapes pkg/eval's generic Eval refuses to
// handle on its own (spec.md §4.7): an aggregate FuncCall, resolved by AST
// identity from aggVals (nil outside a GROUP BY), and a SubLink, executed
// as its own statement. Aggregates and subqueries are only recognized as
// a whole operand of a comparison or boolean combinator, not nested inside
// arithmetic or CASE — matching how deep the WHERE predicate-pushdown
// walk in pkg/planner already goes.
func (es *execState) evalRow(rowCtx *eval.Context, aggVals map[*pgq.FuncCall]types.Value, node pgq.Node) (types.Value, error) {
	switch n := node.(type) {
	case nil:
		return types.Null(), nil
	case *pgq.Node_FuncCall:
		if aggVals != nil {
			if v, ok := aggVals[n.FuncCall]; ok {
				return v, nil
			}
			if isAggregateCall(n.FuncCall) {
				return types.Value{}, kverrors.Unsupported{Reason: "aggregate function used outside an aggregate context"}
			}
		}
		return eval.Eval(rowCtx, node)
	case *pgq.Node_SubLink:
		return es.evalSubLink(rowCtx, n.SubLink)
	case *pgq.Node_BoolExpr:
		return es.evalBoolExprRow(rowCtx, aggVals, n.BoolExpr)
	case *pgq.Node_AExpr:
		return es.evalAExprRow(rowCtx, aggVals, n.AExpr)
	default:
		return eval.Eval(rowCtx, node)
	}
}

func (es *execState) evalBoolExprRow(rowCtx *eval.Context, aggVals map[*pgq.FuncCall]types.Value, e *pgq.BoolExpr) (types.Value, error) {
	switch e.GetBoolop() {
	case pgq.BoolExprType_AND_EXPR:
		for _, a := range e.GetArgs() {
			v, err := es.evalRow(rowCtx, aggVals, a.GetNode())
			if err != nil {
				return types.Value{}, err
			}
			if v.IsNull() || (v.Kind == types.KindBoolean && !v.Bool) {
				return types.Boolean(false), nil
			}
		}
		return types.Boolean(true), nil
	case pgq.BoolExprType_OR_EXPR:
		for _, a := range e.GetArgs() {
			v, err := es.evalRow(rowCtx, aggVals, a.GetNode())
			if err != nil {
				return types.Value{}, err
			}
			if v.Kind == types.KindBoolean && v.Bool {
				return types.Boolean(true), nil
			}
		}
		return types.Boolean(false), nil
	case pgq.BoolExprType_NOT_EXPR:
		if len(e.GetArgs()) != 1 {
			return types.Value{}, kverrors.TypeError{Reason: "NOT takes exactly one argument"}
		}
		v, err := es.evalRow(rowCtx, aggVals, e.GetArgs()[0].GetNode())
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			return types.Boolean(false), nil
		}
		return types.Boolean(!v.Bool), nil
	default:
		return types.Value{}, kverrors.Unsupported{Reason: "unknown boolean expression operator"}
	}
}

func isSpecialOperand(node pgq.Node, aggVals map[*pgq.FuncCall]types.Value) bool {
	switch n := node.(type) {
	case *pgq.Node_FuncCall:
		if aggVals == nil {
			return false
		}
		_, ok := aggVals[n.FuncCall]
		return ok
	case *pgq.Node_SubLink:
		return true
	}
	return false
}

func (es *execState) evalAExprRow(rowCtx *eval.Context, aggVals map[*pgq.FuncCall]types.Value, e *pgq.A_Expr) (types.Value, error) {
	special := isSpecialOperand(e.GetLexpr(), aggVals) || isSpecialOperand(e.GetRexpr(), aggVals)
	if e.GetKind() != pgq.A_Expr_Kind_AEXPR_OP || !special {
		return eval.Eval(rowCtx, &pgq.Node_AExpr{AExpr: e})
	}
	op := lastNamePart(e.GetName())
	l, err := es.evalRow(rowCtx, aggVals, e.GetLexpr())
	if err != nil {
		return types.Value{}, err
	}
	r, err := es.evalRow(rowCtx, aggVals, e.GetRexpr())
	if err != nil {
		return types.Value{}, err
	}
	if l.IsNull() || r.IsNull() {
		return types.Boolean(false), nil
	}
	cmp, err := eval.Compare(l, r)
	if err != nil {
		return types.Value{}, err
	}
	switch op {
	case "=":
		return types.Boolean(cmp == 0), nil
	case "<>", "!=":
		return types.Boolean(cmp != 0), nil
	case "<":
		return types.Boolean(cmp < 0), nil
	case "<=":
		return types.Boolean(cmp <= 0), nil
	case ">":
		return types.Boolean(cmp > 0), nil
	case ">=":
		return types.Boolean(cmp >= 0), nil
	default:
		return types.Value{}, kverrors.Unsupported{Reason: "aggregate/subquery operand only supported under a comparison operator"}
	}
}

// evalBoolRow evaluates node and coerces its result to a plain Go bool
// under WHERE's two-valued semantics (Null treated as false).
func (es *execState) evalBoolRow(rowCtx *eval.Context, aggVals map[*pgq.FuncCall]types.Value, node pgq.Node) (bool, error) {
	v, err := es.evalRow(rowCtx, aggVals, node)
	if err != nil {
		return false, err
	}
	return !v.IsNull() && v.Kind == types.KindBoolean && v.Bool, nil
}

// evalSubLink executes a subquery used as a value expression. Subqueries
// are always run fresh as an independent statement (no outer-row
// correlation): the outer row context is accepted for symmetry with
// evalRow's call sites but unused.
func (es *execState) evalSubLink(outerCtx *eval.Context, sl *pgq.SubLink) (types.Value, error) {
	sub := sl.GetSubselect().GetSelectStmt()
	if sub == nil {
		return types.Value{}, kverrors.SubqueryShapeError{Reason: "subquery is not a SELECT"}
	}
	result, err := es.executeSelectCore(sub)
	if err != nil {
		return types.Value{}, err
	}

	switch sl.GetSubLinkType() {
	case pgq.SubLinkType_EXISTS_SUBLINK:
		return types.Boolean(len(result.Rows) > 0), nil

	case pgq.SubLinkType_EXPR_SUBLINK:
		if len(result.Rows) == 0 {
			return types.Null(), nil
		}
		if len(result.Rows) != 1 || len(result.Columns) != 1 {
			return types.Value{}, kverrors.SubqueryShapeError{Reason: "scalar subquery must return exactly one column and at most one row"}
		}
		return result.Rows[0][0], nil

	case pgq.SubLinkType_ANY_SUBLINK, pgq.SubLinkType_ALL_SUBLINK:
		if len(result.Columns) != 1 {
			return types.Value{}, kverrors.SubqueryShapeError{Reason: "subquery used with IN/ANY/ALL must return exactly one column"}
		}
		testVal, err := es.evalRow(outerCtx, nil, sl.GetTestexpr())
		if err != nil {
			return types.Value{}, err
		}
		op := lastNamePart(sl.GetOperName())
		if op == "" {
			op = "="
		}
		matchAll := sl.GetSubLinkType() == pgq.SubLinkType_ALL_SUBLINK
		for _, row := range result.Rows {
			if testVal.IsNull() || row[0].IsNull() {
				if matchAll {
					return types.Boolean(false), nil
				}
				continue
			}
			cmp, err := eval.Compare(testVal, row[0])
			if err != nil {
				return types.Value{}, err
			}
			ok := compareMatches(op, cmp)
			if ok && !matchAll {
				return types.Boolean(true), nil
			}
			if !ok && matchAll {
				return types.Boolean(false), nil
			}
		}
		return types.Boolean(matchAll), nil

	default:
		return types.Value{}, kverrors.Unsupported{Reason: "unsupported subquery shape"}
	}
}

func compareMatches(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
