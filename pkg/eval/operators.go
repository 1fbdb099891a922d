// SPDX-License-Identifier: Apache-2.0

package eval

import (
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

func evalAExpr(ctx *Context, e *pgq.A_Expr) (types.Value, error) {
	switch e.GetKind() {
	case pgq.A_Expr_Kind_AEXPR_OP:
		return evalBinaryOp(ctx, operatorName(e.GetName()), e.GetLexpr(), e.GetRexpr())
	case pgq.A_Expr_Kind_AEXPR_LIKE:
		return evalLike(ctx, e, false)
	case pgq.A_Expr_Kind_AEXPR_ILIKE:
		return evalLike(ctx, e, true)
	case pgq.A_Expr_Kind_AEXPR_IN:
		return evalIn(ctx, e)
	case pgq.A_Expr_Kind_AEXPR_BETWEEN, pgq.A_Expr_Kind_AEXPR_BETWEEN_SYM:
		return evalBetween(ctx, e, false)
	case pgq.A_Expr_Kind_AEXPR_NOT_BETWEEN, pgq.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM:
		return evalBetween(ctx, e, true)
	case pgq.A_Expr_Kind_AEXPR_DISTINCT:
		return evalDistinct(ctx, e, false)
	case pgq.A_Expr_Kind_AEXPR_NOT_DISTINCT:
		return evalDistinct(ctx, e, true)
	default:
		return types.Value{}, kverrors.Unsupported{Reason: "unsupported expression operator kind"}
	}
}

func evalBinaryOp(ctx *Context, op string, lnode, rnode pgq.Node) (types.Value, error) {
	if lnode == nil {
		// Unary (e.g. -x parses as A_Expr with Name "-" and only Rexpr).
		r, err := Eval(ctx, rnode)
		if err != nil {
			return types.Value{}, err
		}
		return evalUnary(op, r)
	}

	l, err := Eval(ctx, lnode)
	if err != nil {
		return types.Value{}, err
	}
	r, err := Eval(ctx, rnode)
	if err != nil {
		return types.Value{}, err
	}

	switch op {
	case "+", "-", "*", "/", "%":
		return evalArith(op, l, r)
	case "=", "<>", "!=", "<", "<=", ">", ">=":
		return evalComparisonOp(op, l, r)
	case "||":
		return evalConcat(l, r)
	case "->", "->>", "#>", "#>>", "@>", "<@":
		return evalJSONOp(op, l, r)
	default:
		return types.Value{}, kverrors.UnknownFunctionError{Name: "operator " + op}
	}
}

func evalUnary(op string, v types.Value) (types.Value, error) {
	if v.IsNull() {
		return types.Null(), nil
	}
	switch op {
	case "-":
		switch v.Kind {
		case types.KindInt32:
			return types.Int32(-v.I32), nil
		case types.KindInt64:
			return types.Int64(-v.I64), nil
		case types.KindFloat64:
			return types.Float64(-v.F64), nil
		}
	case "+":
		return v, nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "invalid operand for unary " + op}
}

// evalComparisonOp implements spec.md §4.5's WHERE-predicate comparison
// rule: any comparison involving Null yields false, not three-valued
// logic. ORDER BY uses CompareForOrderBy instead (compare.go).
func evalComparisonOp(op string, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Boolean(false), nil
	}
	cmp, err := Compare(l, r)
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
	}
	return types.Value{}, kverrors.UnknownFunctionError{Name: "operator " + op}
}

func evalDistinct(ctx *Context, e *pgq.A_Expr, not bool) (types.Value, error) {
	l, err := Eval(ctx, e.GetLexpr())
	if err != nil {
		return types.Value{}, err
	}
	r, err := Eval(ctx, e.GetRexpr())
	if err != nil {
		return types.Value{}, err
	}
	eq := l.Kind == r.Kind && l.Equal(r)
	distinct := !eq
	if not {
		return types.Boolean(!distinct), nil
	}
	return types.Boolean(distinct), nil
}

func evalConcat(l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}
	ls, err := coerceToText(l)
	if err != nil {
		return types.Value{}, err
	}
	rs, err := coerceToText(r)
	if err != nil {
		return types.Value{}, err
	}
	return types.Text(ls + rs), nil
}

func evalBetween(ctx *Context, e *pgq.A_Expr, not bool) (types.Value, error) {
	operand, err := Eval(ctx, e.GetLexpr())
	if err != nil {
		return types.Value{}, err
	}
	list := e.GetRexpr().GetList()
	if list == nil || len(list.GetItems()) != 2 {
		return types.Value{}, kverrors.TypeError{Reason: "BETWEEN requires exactly two bounds"}
	}
	low, err := Eval(ctx, list.GetItems()[0].GetNode())
	if err != nil {
		return types.Value{}, err
	}
	high, err := Eval(ctx, list.GetItems()[1].GetNode())
	if err != nil {
		return types.Value{}, err
	}
	if operand.IsNull() || low.IsNull() || high.IsNull() {
		return types.Boolean(false), nil
	}
	cmpLow, err := Compare(operand, low)
	if err != nil {
		return types.Value{}, err
	}
	cmpHigh, err := Compare(operand, high)
	if err != nil {
		return types.Value{}, err
	}
	between := cmpLow >= 0 && cmpHigh <= 0
	if not {
		return types.Boolean(!between), nil
	}
	return types.Boolean(between), nil
}

func evalIn(ctx *Context, e *pgq.A_Expr) (types.Value, error) {
	operand, err := Eval(ctx, e.GetLexpr())
	if err != nil {
		return types.Value{}, err
	}
	negated := operatorName(e.GetName()) == "<>"

	list := e.GetRexpr().GetList()
	if list == nil {
		return types.Value{}, kverrors.TypeError{Reason: "IN requires a value list"}
	}
	if operand.IsNull() {
		return types.Boolean(false), nil
	}
	found := false
	for _, item := range list.GetItems() {
		v, err := Eval(ctx, item.GetNode())
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			continue
		}
		cmp, err := Compare(operand, v)
		if err == nil && cmp == 0 {
			found = true
			break
		}
	}
	if negated {
		return types.Boolean(!found), nil
	}
	return types.Boolean(found), nil
}

func evalBoolExpr(ctx *Context, e *pgq.BoolExpr) (types.Value, error) {
	switch e.GetBoolop() {
	case pgq.BoolExprType_AND_EXPR:
		result := true
		for _, arg := range e.GetArgs() {
			v, err := Eval(ctx, arg.GetNode())
			if err != nil {
				return types.Value{}, err
			}
			if v.IsNull() || (v.Kind == types.KindBoolean && !v.Bool) {
				return types.Boolean(false), nil
			}
			result = result && v.Bool
		}
		return types.Boolean(result), nil
	case pgq.BoolExprType_OR_EXPR:
		for _, arg := range e.GetArgs() {
			v, err := Eval(ctx, arg.GetNode())
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
		v, err := Eval(ctx, e.GetArgs()[0].GetNode())
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

func evalNullTest(ctx *Context, nt *pgq.NullTest) (types.Value, error) {
	v, err := Eval(ctx, nt.GetArg())
	if err != nil {
		return types.Value{}, err
	}
	switch nt.GetNulltesttype() {
	case pgq.NullTestType_IS_NULL:
		return types.Boolean(v.IsNull()), nil
	case pgq.NullTestType_IS_NOT_NULL:
		return types.Boolean(!v.IsNull()), nil
	default:
		return types.Value{}, kverrors.Unsupported{Reason: "unknown null test"}
	}
}

func evalBooleanTest(ctx *Context, bt *pgq.BooleanTest) (types.Value, error) {
	v, err := Eval(ctx, bt.GetArg())
	if err != nil {
		return types.Value{}, err
	}
	switch bt.GetBooltesttype() {
	case pgq.BoolTestType_IS_TRUE:
		return types.Boolean(!v.IsNull() && v.Bool), nil
	case pgq.BoolTestType_IS_NOT_TRUE:
		return types.Boolean(v.IsNull() || !v.Bool), nil
	case pgq.BoolTestType_IS_FALSE:
		return types.Boolean(!v.IsNull() && !v.Bool), nil
	case pgq.BoolTestType_IS_NOT_FALSE:
		return types.Boolean(v.IsNull() || v.Bool), nil
	case pgq.BoolTestType_IS_UNKNOWN:
		return types.Boolean(v.IsNull()), nil
	case pgq.BoolTestType_IS_NOT_UNKNOWN:
		return types.Boolean(!v.IsNull()), nil
	default:
		return types.Value{}, kverrors.Unsupported{Reason: "unknown boolean test"}
	}
}

func evalCaseExpr(ctx *Context, c *pgq.CaseExpr) (types.Value, error) {
	var operand *types.Value
	if arg := c.GetArg(); arg != nil {
		v, err := Eval(ctx, arg)
		if err != nil {
			return types.Value{}, err
		}
		operand = &v
	}

	for _, whenNode := range c.GetArgs() {
		when := whenNode.GetCaseWhen()
		if when == nil {
			continue
		}
		var matched bool
		if operand != nil {
			whenVal, err := Eval(ctx, when.GetExpr())
			if err != nil {
				return types.Value{}, err
			}
			if !operand.IsNull() && !whenVal.IsNull() {
				cmp, err := Compare(*operand, whenVal)
				matched = err == nil && cmp == 0
			}
		} else {
			cond, err := Eval(ctx, when.GetExpr())
			if err != nil {
				return types.Value{}, err
			}
			matched = !cond.IsNull() && cond.Kind == types.KindBoolean && cond.Bool
		}
		if matched {
			return Eval(ctx, when.GetResult())
		}
	}

	if def := c.GetDefresult(); def != nil {
		return Eval(ctx, def)
	}
	return types.Null(), nil
}
