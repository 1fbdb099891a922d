// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"strconv"
	"strings"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func isNumeric(k types.Kind) bool {
	return k == types.KindInt32 || k == types.KindInt64 || k == types.KindFloat64
}

func asFloat(v types.Value) float64 {
	switch v.Kind {
	case types.KindInt32:
		return float64(v.I32)
	case types.KindInt64:
		return float64(v.I64)
	case types.KindFloat64:
		return v.F64
	}
	return 0
}

func coerceToText(v types.Value) (string, error) {
	switch v.Kind {
	case types.KindText, types.KindJSON, types.KindJSONB:
		return v.Text, nil
	case types.KindInt32:
		return strconv.FormatInt(int64(v.I32), 10), nil
	case types.KindInt64:
		return strconv.FormatInt(v.I64, 10), nil
	case types.KindFloat64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64), nil
	case types.KindBoolean:
		return strconv.FormatBool(v.Bool), nil
	case types.KindUUID:
		return v.UUID.String(), nil
	case types.KindBytes:
		return string(v.Bytes), nil
	default:
		return "", kverrors.TypeError{Reason: "cannot coerce " + v.Kind.String() + " to text"}
	}
}

// evalArith implements + - * / % per spec.md §4.5. Int/Float mixing
// promotes to Float64; Timestamp/Interval combinations follow PostgreSQL
// rules (Timestamp ± Interval -> Timestamp, Timestamp - Timestamp ->
// Interval); both operands are milliseconds, so the arithmetic itself is
// plain int64 addition/subtraction.
func evalArith(op string, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}

	if l.Kind == types.KindTimestamp || r.Kind == types.KindTimestamp || l.Kind == types.KindInterval || r.Kind == types.KindInterval {
		return evalTemporalArith(op, l, r)
	}

	if !isNumeric(l.Kind) || !isNumeric(r.Kind) {
		return types.Value{}, kverrors.TypeError{Reason: "operands to arithmetic operator " + op + " must be numeric"}
	}

	if l.Kind == types.KindFloat64 || r.Kind == types.KindFloat64 {
		lf, rf := asFloat(l), asFloat(r)
		switch op {
		case "+":
			return types.Float64(lf + rf), nil
		case "-":
			return types.Float64(lf - rf), nil
		case "*":
			return types.Float64(lf * rf), nil
		case "/":
			if rf == 0 {
				return types.Value{}, kverrors.TypeError{Reason: "division by zero"}
			}
			return types.Float64(lf / rf), nil
		case "%":
			if rf == 0 {
				return types.Value{}, kverrors.TypeError{Reason: "division by zero"}
			}
			return types.Float64(float64(int64(lf) % int64(rf))), nil
		}
	}

	if l.Kind == types.KindInt64 || r.Kind == types.KindInt64 {
		li, ri := asInt64(l), asInt64(r)
		return intArith(op, li, ri, types.Int64)
	}

	li, ri := int64(l.I32), int64(r.I32)
	return intArith(op, li, ri, func(v int64) types.Value { return types.Int32(int32(v)) })
}

func asInt64(v types.Value) int64 {
	if v.Kind == types.KindInt32 {
		return int64(v.I32)
	}
	return v.I64
}

func intArith(op string, l, r int64, wrap func(int64) types.Value) (types.Value, error) {
	switch op {
	case "+":
		return wrap(l + r), nil
	case "-":
		return wrap(l - r), nil
	case "*":
		return wrap(l * r), nil
	case "/":
		if r == 0 {
			return types.Value{}, kverrors.TypeError{Reason: "division by zero"}
		}
		return wrap(l / r), nil
	case "%":
		if r == 0 {
			return types.Value{}, kverrors.TypeError{Reason: "division by zero"}
		}
		return wrap(l % r), nil
	}
	return types.Value{}, kverrors.UnknownFunctionError{Name: "operator " + op}
}

func evalTemporalArith(op string, l, r types.Value) (types.Value, error) {
	switch {
	case l.Kind == types.KindTimestamp && r.Kind == types.KindInterval && op == "+":
		return types.Timestamp(l.I64 + r.I64), nil
	case l.Kind == types.KindTimestamp && r.Kind == types.KindInterval && op == "-":
		return types.Timestamp(l.I64 - r.I64), nil
	case l.Kind == types.KindInterval && r.Kind == types.KindTimestamp && op == "+":
		return types.Timestamp(l.I64 + r.I64), nil
	case l.Kind == types.KindTimestamp && r.Kind == types.KindTimestamp && op == "-":
		return types.Interval(l.I64 - r.I64), nil
	case l.Kind == types.KindInterval && r.Kind == types.KindInterval && (op == "+" || op == "-"):
		if op == "+" {
			return types.Interval(l.I64 + r.I64), nil
		}
		return types.Interval(l.I64 - r.I64), nil
	default:
		return types.Value{}, kverrors.TypeError{Reason: "invalid operand types for " + op}
	}
}

// Compare implements spec.md §4.5's comparison semantics for a predicate
// or IN/BETWEEN context (not ORDER BY, see CompareForOrderBy): Int/Float
// mixing promotes to Float64; Text vs numeric coerces the text side via
// parse-if-possible else falls back to lexicographic comparison on the
// string forms (spec.md §9 open question, kept literally); Json/Jsonb
// refuse ordering.
func Compare(a, b types.Value) (int, error) {
	if a.Kind == types.KindJSON || a.Kind == types.KindJSONB || b.Kind == types.KindJSON || b.Kind == types.KindJSONB {
		return 0, kverrors.TypeError{Reason: "json/jsonb do not support ordering comparisons"}
	}

	if isNumeric(a.Kind) && isNumeric(b.Kind) {
		af, bf := asFloat(a), asFloat(b)
		return compareFloats(af, bf), nil
	}

	if a.Kind == types.KindText && isNumeric(b.Kind) {
		return compareTextNumeric(a.Text, b)
	}
	if isNumeric(a.Kind) && b.Kind == types.KindText {
		c, err := compareTextNumeric(b.Text, a)
		return -c, err
	}

	if a.Kind == types.KindText && b.Kind == types.KindText {
		return strings.Compare(a.Text, b.Text), nil
	}

	if a.Kind == types.KindBoolean && b.Kind == types.KindBoolean {
		if a.Bool == b.Bool {
			return 0, nil
		}
		if !a.Bool {
			return -1, nil
		}
		return 1, nil
	}

	if a.Kind == types.KindTimestamp && b.Kind == types.KindTimestamp {
		return compareInt64(a.I64, b.I64), nil
	}
	if a.Kind == types.KindInterval && b.Kind == types.KindInterval {
		return compareInt64(a.I64, b.I64), nil
	}
	if a.Kind == types.KindUUID && b.Kind == types.KindUUID {
		return strings.Compare(a.UUID.String(), b.UUID.String()), nil
	}
	if a.Kind == types.KindBytes && b.Kind == types.KindBytes {
		if string(a.Bytes) == string(b.Bytes) {
			return 0, nil
		}
		if string(a.Bytes) < string(b.Bytes) {
			return -1, nil
		}
		return 1, nil
	}

	return 0, kverrors.TypeError{Reason: "cannot compare " + a.Kind.String() + " with " + b.Kind.String()}
}

func compareTextNumeric(text string, num types.Value) (int, error) {
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return compareFloats(f, asFloat(num)), nil
	}
	numText, err := coerceToText(num)
	if err != nil {
		return 0, err
	}
	return strings.Compare(text, numText), nil
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareForOrderBy implements the three-valued ORDER BY comparator
// (spec.md §4.5, §9): two Nulls compare equal; otherwise a NULL compares
// least in ASC (and, per spec.md §9's open-question resolution, also
// sorts last only when paired with DESC — callers apply that flip, this
// function always treats NULL as the minimum so ASC is correct as-is and
// DESC reverses everything including NULL placement, which yields
// NULLS-LAST for DESC and NULLS-FIRST for ASC).
func CompareForOrderBy(a, b types.Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	cmp, err := Compare(a, b)
	if err != nil {
		// Incomparable types (e.g. json) sort as equal rather than
		// aborting a whole ORDER BY.
		return 0
	}
	return cmp
}
