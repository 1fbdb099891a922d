// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"math"
	"strconv"
	"strings"
	"time"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// evalFuncCall implements spec.md §4.5's closed scalar function library.
// Aggregate and window calls are rewritten by the planner/executor before
// reaching here; a FuncCall surviving to Eval is always scalar.
func evalFuncCall(ctx *Context, fc *pgq.FuncCall) (types.Value, error) {
	name := funcName(fc.GetFuncname())

	args := make([]types.Value, 0, len(fc.GetArgs()))
	for _, a := range fc.GetArgs() {
		v, err := Eval(ctx, a.GetNode())
		if err != nil {
			return types.Value{}, err
		}
		args = append(args, v)
	}

	switch name {
	case "coalesce":
		return fnCoalesce(args)
	case "nullif":
		return fnNullIf(args)
	case "greatest":
		return fnExtreme(args, 1)
	case "least":
		return fnExtreme(args, -1)

	case "upper":
		return fnString1(args, strings.ToUpper)
	case "lower":
		return fnString1(args, strings.ToLower)
	case "initcap":
		return fnString1(args, strings.Title)
	case "reverse":
		return fnString1(args, reverseString)
	case "length", "char_length", "character_length":
		return fnLength(args)
	case "octet_length":
		return fnOctetLength(args)
	case "concat":
		return fnConcat(args)
	case "concat_ws":
		return fnConcatWs(args)
	case "left":
		return fnLeft(args)
	case "right":
		return fnRight(args)
	case "lpad":
		return fnPad(args, true)
	case "rpad":
		return fnPad(args, false)
	case "replace":
		return fnReplace(args)
	case "repeat":
		return fnRepeat(args)
	case "split_part":
		return fnSplitPart(args)
	case "trim":
		return fnTrim(args)
	case "position":
		return fnPosition(args)
	case "substring":
		return fnSubstring(args)

	case "abs":
		return fnAbs(args)
	case "ceil", "ceiling":
		return fnRound1(args, math.Ceil)
	case "floor":
		return fnRound1(args, math.Floor)
	case "round":
		return fnRound(args)
	case "trunc":
		return fnRound1(args, math.Trunc)
	case "sqrt":
		return fnMath1(args, math.Sqrt)
	case "power":
		return fnPower(args)
	case "exp":
		return fnMath1(args, math.Exp)
	case "ln":
		return fnMath1(args, math.Log)
	case "log", "log10":
		return fnMath1(args, math.Log10)
	case "sign":
		return fnSign(args)
	case "mod":
		return fnMod(args)
	case "pi":
		return types.Float64(math.Pi), nil
	case "random":
		return types.Value{}, kverrors.Unsupported{Reason: "random() is non-deterministic and not supported in this evaluator"}

	case "now", "current_timestamp", "statement_timestamp", "clock_timestamp":
		if ctx.Now == nil {
			return types.Value{}, kverrors.Unsupported{Reason: "now()/current_timestamp must be bound by the executor at statement start, not evaluated per-row"}
		}
		return types.Timestamp(ctx.Now.UnixMilli()), nil
	case "current_date":
		if ctx.Now == nil {
			return types.Value{}, kverrors.Unsupported{Reason: "current_date must be bound by the executor at statement start, not evaluated per-row"}
		}
		y, m, d := ctx.Now.Date()
		return types.Timestamp(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli()), nil
	case "date_trunc":
		return fnDateTrunc(args)
	case "extract":
		return fnExtract(args)
	case "to_char":
		return fnToChar(args)
	case "age":
		return fnAge(args)
	case "gen_random_uuid", "uuid_generate_v4":
		if ctx.NewUUID == nil {
			return types.Value{}, kverrors.Unsupported{Reason: "gen_random_uuid() is non-deterministic and must be bound by the executor, not evaluated per-row"}
		}
		return types.UUIDValue(ctx.NewUUID()), nil

	case "array_length":
		return fnArrayLength(args)
	case "array_upper":
		return fnArrayUpper(args)
	case "array_lower":
		return fnArrayLower(args)
	case "cardinality":
		return fnCardinality(args)
	case "array_position":
		return fnArrayPosition(args)
	case "array_cat":
		return fnArrayCat(args)
	case "array_append":
		return fnArrayAppend(args)
	case "array_prepend":
		return fnArrayPrepend(args)
	case "array_remove":
		return fnArrayRemove(args)

	default:
		return types.Value{}, kverrors.UnknownFunctionError{Name: name}
	}
}

func anyNull(args []types.Value) bool {
	for _, a := range args {
		if a.IsNull() {
			return true
		}
	}
	return false
}

func fnCoalesce(args []types.Value) (types.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return types.Null(), nil
}

func fnNullIf(args []types.Value) (types.Value, error) {
	if len(args) != 2 {
		return types.Value{}, kverrors.TypeError{Reason: "nullif takes exactly two arguments"}
	}
	if args[0].IsNull() || args[1].IsNull() {
		return args[0], nil
	}
	cmp, err := Compare(args[0], args[1])
	if err == nil && cmp == 0 {
		return types.Null(), nil
	}
	return args[0], nil
}

// fnExtreme implements GREATEST (dir=1) / LEAST (dir=-1), ignoring NULLs
// per Postgres semantics (unlike a plain comparison chain).
func fnExtreme(args []types.Value, dir int) (types.Value, error) {
	var best *types.Value
	for i := range args {
		if args[i].IsNull() {
			continue
		}
		if best == nil {
			best = &args[i]
			continue
		}
		cmp, err := Compare(args[i], *best)
		if err != nil {
			return types.Value{}, err
		}
		if cmp*dir > 0 {
			best = &args[i]
		}
	}
	if best == nil {
		return types.Null(), nil
	}
	return *best, nil
}

func fnString1(args []types.Value, f func(string) string) (types.Value, error) {
	if len(args) != 1 {
		return types.Value{}, kverrors.TypeError{Reason: "function takes exactly one argument"}
	}
	if args[0].IsNull() {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	return types.Text(f(s)), nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func fnLength(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	return types.Int32(int32(len([]rune(s)))), nil
}

func fnOctetLength(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	return types.Int32(int32(len(s))), nil
}

func fnConcat(args []types.Value) (types.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		s, err := coerceToText(a)
		if err != nil {
			return types.Value{}, err
		}
		sb.WriteString(s)
	}
	return types.Text(sb.String()), nil
}

func fnConcatWs(args []types.Value) (types.Value, error) {
	if len(args) < 1 || args[0].IsNull() {
		return types.Null(), nil
	}
	sep, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	parts := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		if a.IsNull() {
			continue
		}
		s, err := coerceToText(a)
		if err != nil {
			return types.Value{}, err
		}
		parts = append(parts, s)
	}
	return types.Text(strings.Join(parts, sep)), nil
}

func fnLeft(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	n, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	r := []rune(s)
	if n < 0 {
		n = len(r) + n
		if n < 0 {
			n = 0
		}
	}
	if n > len(r) {
		n = len(r)
	}
	return types.Text(string(r[:n])), nil
}

func fnRight(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	n, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	r := []rune(s)
	if n < 0 {
		n = len(r) + n
		if n < 0 {
			n = 0
		}
	}
	if n > len(r) {
		n = len(r)
	}
	return types.Text(string(r[len(r)-n:])), nil
}

func fnPad(args []types.Value, left bool) (types.Value, error) {
	if len(args) < 2 || args[0].IsNull() || args[1].IsNull() {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	targetLen, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	fill := " "
	if len(args) >= 3 {
		if args[2].IsNull() {
			return types.Null(), nil
		}
		fill, err = coerceToText(args[2])
		if err != nil {
			return types.Value{}, err
		}
		if fill == "" {
			fill = " "
		}
	}
	r := []rune(s)
	if targetLen <= len(r) {
		if left {
			return types.Text(string(r[:targetLen])), nil
		}
		return types.Text(string(r[len(r)-targetLen:])), nil
	}
	need := targetLen - len(r)
	fillRunes := []rune(fill)
	var pad strings.Builder
	for pad.Len() < need*4 && len([]rune(pad.String())) < need {
		pad.WriteString(string(fillRunes))
	}
	padded := []rune(pad.String())[:need]
	if left {
		return types.Text(string(padded) + s), nil
	}
	return types.Text(s + string(padded)), nil
}

func fnReplace(args []types.Value) (types.Value, error) {
	if len(args) != 3 || anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	from, err := coerceToText(args[1])
	if err != nil {
		return types.Value{}, err
	}
	to, err := coerceToText(args[2])
	if err != nil {
		return types.Value{}, err
	}
	return types.Text(strings.ReplaceAll(s, from, to)), nil
}

func fnRepeat(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	n, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	if n < 0 {
		n = 0
	}
	return types.Text(strings.Repeat(s, n)), nil
}

func fnSplitPart(args []types.Value) (types.Value, error) {
	if len(args) != 3 || anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	sep, err := coerceToText(args[1])
	if err != nil {
		return types.Value{}, err
	}
	n, err := asIntArg(args[2])
	if err != nil {
		return types.Value{}, err
	}
	if n < 1 {
		return types.Value{}, kverrors.TypeError{Reason: "split_part field position must be positive"}
	}
	parts := strings.Split(s, sep)
	if n > len(parts) {
		return types.Text(""), nil
	}
	return types.Text(parts[n-1]), nil
}

func fnTrim(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	cutset := " "
	if len(args) >= 2 {
		cutset, err = coerceToText(args[1])
		if err != nil {
			return types.Value{}, err
		}
	}
	return types.Text(strings.Trim(s, cutset)), nil
}

func fnPosition(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	substr, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	s, err := coerceToText(args[1])
	if err != nil {
		return types.Value{}, err
	}
	idx := strings.Index(s, substr)
	if idx < 0 {
		return types.Int32(0), nil
	}
	return types.Int32(int32(len([]rune(s[:idx])) + 1)), nil
}

func fnSubstring(args []types.Value) (types.Value, error) {
	if len(args) < 2 || args[0].IsNull() || args[1].IsNull() {
		return types.Null(), nil
	}
	s, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	start, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	r := []rune(s)
	from := start - 1
	length := len(r)
	if len(args) >= 3 {
		if args[2].IsNull() {
			return types.Null(), nil
		}
		l, err := asIntArg(args[2])
		if err != nil {
			return types.Value{}, err
		}
		length = l
	}
	end := from + length
	if from < 0 {
		from = 0
	}
	if end > len(r) {
		end = len(r)
	}
	if end <= from {
		return types.Text(""), nil
	}
	return types.Text(string(r[from:end])), nil
}

func asIntArg(v types.Value) (int, error) {
	switch v.Kind {
	case types.KindInt32:
		return int(v.I32), nil
	case types.KindInt64:
		return int(v.I64), nil
	case types.KindFloat64:
		return int(v.F64), nil
	case types.KindText:
		i, err := strconv.Atoi(strings.TrimSpace(v.Text))
		if err != nil {
			return 0, kverrors.TypeError{Reason: "expected integer argument, got " + v.Text}
		}
		return i, nil
	default:
		return 0, kverrors.TypeError{Reason: "expected integer argument, got " + v.Kind.String()}
	}
}

func fnAbs(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	switch args[0].Kind {
	case types.KindInt32:
		v := args[0].I32
		if v < 0 {
			v = -v
		}
		return types.Int32(v), nil
	case types.KindInt64:
		v := args[0].I64
		if v < 0 {
			v = -v
		}
		return types.Int64(v), nil
	case types.KindFloat64:
		return types.Float64(math.Abs(args[0].F64)), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "abs() requires a numeric argument"}
}

func fnMath1(args []types.Value, f func(float64) float64) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	if !isNumeric(args[0].Kind) {
		return types.Value{}, kverrors.TypeError{Reason: "function requires a numeric argument"}
	}
	return types.Float64(f(asFloat(args[0]))), nil
}

func fnRound1(args []types.Value, f func(float64) float64) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	switch args[0].Kind {
	case types.KindInt32, types.KindInt64:
		return args[0], nil
	case types.KindFloat64:
		return types.Float64(f(args[0].F64)), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "function requires a numeric argument"}
}

func fnRound(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind == types.KindInt32 || args[0].Kind == types.KindInt64 {
		return args[0], nil
	}
	if args[0].Kind != types.KindFloat64 {
		return types.Value{}, kverrors.TypeError{Reason: "round() requires a numeric argument"}
	}
	if len(args) == 1 {
		return types.Float64(math.Round(args[0].F64)), nil
	}
	prec, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	mult := math.Pow(10, float64(prec))
	return types.Float64(math.Round(args[0].F64*mult) / mult), nil
}

func fnPower(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if !isNumeric(args[0].Kind) || !isNumeric(args[1].Kind) {
		return types.Value{}, kverrors.TypeError{Reason: "power() requires numeric arguments"}
	}
	return types.Float64(math.Pow(asFloat(args[0]), asFloat(args[1]))), nil
}

func fnSign(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	f := asFloat(args[0])
	switch {
	case f > 0:
		return types.Int32(1), nil
	case f < 0:
		return types.Int32(-1), nil
	default:
		return types.Int32(0), nil
	}
}

func fnMod(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	return evalArith("%", args[0], args[1])
}

// fnDateTrunc truncates a Timestamp value to the given unit boundary.
func fnDateTrunc(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	unit, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	if args[1].Kind != types.KindTimestamp {
		return types.Value{}, kverrors.TypeError{Reason: "date_trunc() requires a timestamp argument"}
	}
	t := time.UnixMilli(args[1].I64).UTC()
	var trunc time.Time
	switch strings.ToLower(unit) {
	case "year":
		trunc = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case "month":
		trunc = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "day":
		trunc = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "hour":
		trunc = t.Truncate(time.Hour)
	case "minute":
		trunc = t.Truncate(time.Minute)
	case "second":
		trunc = t.Truncate(time.Second)
	case "week":
		offset := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		trunc = day.AddDate(0, 0, -offset)
	default:
		return types.Value{}, kverrors.TypeError{Reason: "unsupported date_trunc unit: " + unit}
	}
	return types.Timestamp(trunc.UnixMilli()), nil
}

func fnExtract(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	field, err := coerceToText(args[0])
	if err != nil {
		return types.Value{}, err
	}
	if args[1].Kind != types.KindTimestamp {
		return types.Value{}, kverrors.TypeError{Reason: "extract() requires a timestamp argument"}
	}
	t := time.UnixMilli(args[1].I64).UTC()
	switch strings.ToLower(field) {
	case "year":
		return types.Float64(float64(t.Year())), nil
	case "month":
		return types.Float64(float64(t.Month())), nil
	case "day":
		return types.Float64(float64(t.Day())), nil
	case "hour":
		return types.Float64(float64(t.Hour())), nil
	case "minute":
		return types.Float64(float64(t.Minute())), nil
	case "second":
		return types.Float64(float64(t.Second())), nil
	case "dow":
		return types.Float64(float64(t.Weekday())), nil
	case "doy":
		return types.Float64(float64(t.YearDay())), nil
	case "epoch":
		return types.Float64(float64(args[1].I64) / 1000.0), nil
	default:
		return types.Value{}, kverrors.TypeError{Reason: "unsupported extract field: " + field}
	}
}

func fnToChar(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindTimestamp {
		return types.Value{}, kverrors.TypeError{Reason: "to_char() requires a timestamp argument"}
	}
	format, err := coerceToText(args[1])
	if err != nil {
		return types.Value{}, err
	}
	t := time.UnixMilli(args[0].I64).UTC()
	goLayout := pgFormatToGoLayout(format)
	return types.Text(t.Format(goLayout)), nil
}

// pgFormatToGoLayout supports the closed subset of Postgres to_char
// template tokens this evaluator needs, translated to Go's reference-time
// layout syntax.
func pgFormatToGoLayout(format string) string {
	replacer := strings.NewReplacer(
		"YYYY", "2006",
		"MM", "01",
		"DD", "02",
		"HH24", "15",
		"HH12", "03",
		"MI", "04",
		"SS", "05",
	)
	return replacer.Replace(format)
}

func fnAge(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindTimestamp || args[1].Kind != types.KindTimestamp {
		return types.Value{}, kverrors.TypeError{Reason: "age() requires two timestamp arguments"}
	}
	return types.Interval(args[0].I64 - args[1].I64), nil
}

func fnArrayLength(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_length() requires an array argument"}
	}
	dim, err := asIntArg(args[1])
	if err != nil {
		return types.Value{}, err
	}
	if dim != 1 {
		return types.Null(), nil
	}
	return types.Int32(int32(len(args[0].Elems))), nil
}

func fnArrayUpper(args []types.Value) (types.Value, error) {
	v, err := fnArrayLength(args)
	return v, err
}

func fnArrayLower(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_lower() requires an array argument"}
	}
	if len(args[0].Elems) == 0 {
		return types.Null(), nil
	}
	return types.Int32(1), nil
}

func fnCardinality(args []types.Value) (types.Value, error) {
	if anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "cardinality() requires an array argument"}
	}
	return types.Int32(int32(len(args[0].Elems))), nil
}

func fnArrayPosition(args []types.Value) (types.Value, error) {
	if len(args) < 2 || args[0].IsNull() || args[1].IsNull() {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_position() requires an array argument"}
	}
	for i, e := range args[0].Elems {
		if e.IsNull() {
			continue
		}
		cmp, err := Compare(e, args[1])
		if err == nil && cmp == 0 {
			return types.Int32(int32(i + 1)), nil
		}
	}
	return types.Null(), nil
}

func fnArrayCat(args []types.Value) (types.Value, error) {
	if len(args) != 2 || anyNull(args) {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray || args[1].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_cat() requires two array arguments"}
	}
	out := make([]types.Value, 0, len(args[0].Elems)+len(args[1].Elems))
	out = append(out, args[0].Elems...)
	out = append(out, args[1].Elems...)
	return types.Array(out), nil
}

func fnArrayAppend(args []types.Value) (types.Value, error) {
	if len(args) != 2 || args[0].IsNull() {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_append() requires an array argument"}
	}
	out := append(append([]types.Value{}, args[0].Elems...), args[1])
	return types.Array(out), nil
}

func fnArrayPrepend(args []types.Value) (types.Value, error) {
	if len(args) != 2 || args[1].IsNull() {
		return types.Null(), nil
	}
	if args[1].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_prepend() requires an array argument"}
	}
	out := append([]types.Value{args[0]}, args[1].Elems...)
	return types.Array(out), nil
}

func fnArrayRemove(args []types.Value) (types.Value, error) {
	if len(args) != 2 || args[0].IsNull() {
		return types.Null(), nil
	}
	if args[0].Kind != types.KindArray {
		return types.Value{}, kverrors.TypeError{Reason: "array_remove() requires an array argument"}
	}
	out := make([]types.Value, 0, len(args[0].Elems))
	for _, e := range args[0].Elems {
		if args[1].IsNull() && e.IsNull() {
			continue
		}
		if !args[1].IsNull() && !e.IsNull() {
			cmp, err := Compare(e, args[1])
			if err == nil && cmp == 0 {
				continue
			}
		}
		out = append(out, e)
	}
	return types.Array(out), nil
}
