// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"fmt"
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// Eval evaluates node against ctx, returning the resulting Value.
func Eval(ctx *Context, node pgq.Node) (types.Value, error) {
	switch n := node.(type) {
	case nil:
		return types.Null(), nil
	case *pgq.Node_AConst:
		return evalConst(n.AConst)
	case *pgq.Node_ColumnRef:
		return evalColumnRef(ctx, n.ColumnRef)
	case *pgq.Node_AExpr:
		return evalAExpr(ctx, n.AExpr)
	case *pgq.Node_BoolExpr:
		return evalBoolExpr(ctx, n.BoolExpr)
	case *pgq.Node_NullTest:
		return evalNullTest(ctx, n.NullTest)
	case *pgq.Node_BooleanTest:
		return evalBooleanTest(ctx, n.BooleanTest)
	case *pgq.Node_CaseExpr:
		return evalCaseExpr(ctx, n.CaseExpr)
	case *pgq.Node_TypeCast:
		return evalTypeCast(ctx, n.TypeCast)
	case *pgq.Node_FuncCall:
		return evalFuncCall(ctx, n.FuncCall)
	case *pgq.Node_AArrayExpr:
		return evalArrayExpr(ctx, n.AArrayExpr)
	case *pgq.Node_AIndirection:
		return Eval(ctx, n.AIndirection.GetArg())
	case *pgq.Node_ParamRef:
		return types.Null(), kverrors.Unsupported{Reason: "parameterized expressions are not supported outside the wire layer's Bind substitution"}
	case *pgq.Node_SubLink:
		return types.Value{}, kverrors.SubqueryShapeError{Reason: "subquery was not rewritten before evaluation"}
	default:
		return types.Value{}, kverrors.Unsupported{Reason: fmt.Sprintf("expression node %T is not supported", node)}
	}
}

func evalConst(c *pgq.A_Const) (types.Value, error) {
	if c == nil || c.GetIsnull() {
		return types.Null(), nil
	}
	switch v := c.GetVal().(type) {
	case *pgq.A_Const_Ival:
		return types.Int32(v.Ival.GetIval()), nil
	case *pgq.A_Const_Fval:
		f, err := parseFloat(v.Fval.GetFval())
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: err.Error()}
		}
		return types.Float64(f), nil
	case *pgq.A_Const_Sval:
		return types.Text(v.Sval.GetSval()), nil
	case *pgq.A_Const_Boolval:
		return types.Boolean(v.Boolval.GetBoolval()), nil
	case *pgq.A_Const_Bsval:
		return types.Text(v.Bsval.GetBsval()), nil
	default:
		return types.Null(), nil
	}
}

func evalColumnRef(ctx *Context, ref *pgq.ColumnRef) (types.Value, error) {
	fields := ref.GetFields()
	if len(fields) == 0 {
		return types.Value{}, kverrors.TypeError{Reason: "empty column reference"}
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := f.GetString_(); s != nil {
			names = append(names, s.GetSval())
			continue
		}
		if f.GetAStar() != nil {
			return types.Value{}, kverrors.TypeError{Reason: "* is not a value expression"}
		}
	}
	switch len(names) {
	case 1:
		return ctx.Resolve("", names[0])
	default:
		qualifier := strings.Join(names[:len(names)-1], ".")
		return ctx.Resolve(qualifier, names[len(names)-1])
	}
}

func evalArrayExpr(ctx *Context, arr *pgq.A_ArrayExpr) (types.Value, error) {
	elems := make([]types.Value, 0, len(arr.GetElements()))
	for _, e := range arr.GetElements() {
		v, err := Eval(ctx, e.GetNode())
		if err != nil {
			return types.Value{}, err
		}
		elems = append(elems, v)
	}
	return types.Array(elems), nil
}

// operatorName joins a possibly schema-qualified operator name list
// (e.g. OPERATOR(pg_catalog.+)) down to its bare symbol, the last element.
func operatorName(nameNodes []*pgq.Node) string {
	if len(nameNodes) == 0 {
		return ""
	}
	last := nameNodes[len(nameNodes)-1]
	return last.GetString_().GetSval()
}

func funcName(nameNodes []*pgq.Node) string {
	if len(nameNodes) == 0 {
		return ""
	}
	last := nameNodes[len(nameNodes)-1]
	return strings.ToLower(last.GetString_().GetSval())
}
