// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	pgq "github.com/pganalyze/pg_query_go/v6"
	"github.com/google/uuid"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// timestampFormats is the closed list of formats CAST tries, in order,
// when coercing text to a Timestamp (spec.md §4.5).
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func evalTypeCast(ctx *Context, tc *pgq.TypeCast) (types.Value, error) {
	v, err := Eval(ctx, tc.GetArg())
	if err != nil {
		return types.Value{}, err
	}
	target := deparseTypeNameLower(tc.GetTypeName())
	return Cast(v, target)
}

func deparseTypeNameLower(tn *pgq.TypeName) string {
	s, err := pgq.DeparseTypeName(tn)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(s, "[]"))
}

// Cast implements spec.md §4.5's CAST/`::` coercions. target is the
// lower-cased, array-suffix-stripped Postgres type name as produced by
// pgq.DeparseTypeName (the same helper pgroll's pkg/sql2pgroll/typename.go
// uses to turn a TypeName node into Postgres's canonical spelling).
func Cast(v types.Value, target string) (types.Value, error) {
	if v.IsNull() {
		return types.Null(), nil
	}

	switch target {
	case "int4", "integer", "int", "serial":
		return castToInt32(v)
	case "int8", "bigint", "bigserial":
		return castToInt64(v)
	case "float8", "double precision", "float4", "real", "numeric", "decimal":
		return castToFloat64(v)
	case "text", "varchar", "character varying", "char", "bpchar", "name":
		s, err := coerceToText(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Text(s), nil
	case "bool", "boolean":
		return castToBool(v)
	case "uuid":
		return castToUUID(v)
	case "timestamp", "timestamp without time zone", "timestamptz", "timestamp with time zone", "date":
		return castToTimestamp(v)
	case "interval":
		return castToInterval(v)
	case "json":
		return castToJSON(v, false)
	case "jsonb":
		return castToJSON(v, true)
	case "bytea":
		return castToBytes(v)
	default:
		return types.Value{}, kverrors.TypeError{Reason: "unknown cast target type " + target}
	}
}

func castToInt32(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindInt32:
		return v, nil
	case types.KindInt64:
		return types.Int32(int32(v.I64)), nil
	case types.KindFloat64:
		return types.Int32(int32(v.F64)), nil
	case types.KindText:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Text), 10, 32)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid integer text: " + v.Text}
		}
		return types.Int32(int32(i)), nil
	case types.KindBoolean:
		if v.Bool {
			return types.Int32(1), nil
		}
		return types.Int32(0), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to int4"}
}

func castToInt64(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindInt32:
		return types.Int64(int64(v.I32)), nil
	case types.KindInt64:
		return v, nil
	case types.KindFloat64:
		return types.Int64(int64(v.F64)), nil
	case types.KindText:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Text), 10, 64)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid integer text: " + v.Text}
		}
		return types.Int64(i), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to int8"}
}

func castToFloat64(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindInt32:
		return types.Float64(float64(v.I32)), nil
	case types.KindInt64:
		return types.Float64(float64(v.I64)), nil
	case types.KindFloat64:
		return v, nil
	case types.KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid numeric text: " + v.Text}
		}
		return types.Float64(f), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to float8"}
}

// castToBool implements spec.md §4.5's text->boolean truth table:
// t/true/yes/y/1 -> true (and their negations, matched loosely on the
// rest: f/false/no/n/0 -> false).
func castToBool(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindBoolean:
		return v, nil
	case types.KindText:
		switch strings.ToLower(strings.TrimSpace(v.Text)) {
		case "t", "true", "yes", "y", "1":
			return types.Boolean(true), nil
		case "f", "false", "no", "n", "0":
			return types.Boolean(false), nil
		}
		return types.Value{}, kverrors.TypeError{Reason: "invalid boolean text: " + v.Text}
	case types.KindInt32:
		return types.Boolean(v.I32 != 0), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to boolean"}
}

func castToUUID(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindUUID:
		return v, nil
	case types.KindText:
		u, err := uuid.Parse(v.Text)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid uuid text: " + v.Text}
		}
		return types.UUIDValue(u), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to uuid"}
}

func castToTimestamp(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindTimestamp:
		return v, nil
	case types.KindText:
		text := strings.TrimSpace(v.Text)
		for _, layout := range timestampFormats {
			if t, err := time.Parse(layout, text); err == nil {
				return types.Timestamp(t.UnixMilli()), nil
			}
		}
		return types.Value{}, kverrors.TypeError{Reason: "invalid timestamp text: " + v.Text}
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to timestamp"}
}

// castToInterval parses "N {unit}" sequences (spec.md §4.5) for year,
// week, day, hour, minute, second, ms, summing each term's contribution
// in milliseconds.
func castToInterval(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindInterval:
		return v, nil
	case types.KindText:
		ms, err := parseIntervalText(v.Text)
		if err != nil {
			return types.Value{}, err
		}
		return types.Interval(ms), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to interval"}
}

func parseIntervalText(text string) (int64, error) {
	fields := strings.Fields(text)
	if len(fields)%2 != 0 || len(fields) == 0 {
		return 0, kverrors.TypeError{Reason: "invalid interval text: " + text}
	}
	var total int64
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, kverrors.TypeError{Reason: "invalid interval quantity: " + fields[i]}
		}
		unit := strings.ToLower(strings.TrimSuffix(fields[i+1], "s"))
		var unitMs float64
		switch unit {
		case "year":
			unitMs = 365 * 24 * 60 * 60 * 1000
		case "week":
			unitMs = 7 * 24 * 60 * 60 * 1000
		case "day":
			unitMs = 24 * 60 * 60 * 1000
		case "hour":
			unitMs = 60 * 60 * 1000
		case "minute":
			unitMs = 60 * 1000
		case "second":
			unitMs = 1000
		case "ms", "millisecond":
			unitMs = 1
		default:
			return 0, kverrors.TypeError{Reason: "unknown interval unit: " + fields[i+1]}
		}
		total += int64(n * unitMs)
	}
	return total, nil
}

func castToJSON(v types.Value, binary bool) (types.Value, error) {
	switch v.Kind {
	case types.KindJSON, types.KindJSONB:
		if binary {
			canonical, err := CanonicalizeJSON(v.Text)
			if err != nil {
				return types.Value{}, err
			}
			return types.JSONB(canonical), nil
		}
		return types.JSON(v.Text), nil
	case types.KindText:
		var probe any
		if err := json.Unmarshal([]byte(v.Text), &probe); err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid json text: " + err.Error()}
		}
		if binary {
			canonical, err := CanonicalizeJSON(v.Text)
			if err != nil {
				return types.Value{}, err
			}
			return types.JSONB(canonical), nil
		}
		return types.JSON(v.Text), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to json"}
}

func castToBytes(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindBytes:
		return v, nil
	case types.KindText:
		return types.Bytes([]byte(v.Text)), nil
	}
	return types.Value{}, kverrors.TypeError{Reason: "cannot cast " + v.Kind.String() + " to bytea"}
}
