// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// resolveColumnType maps a parsed column type name to its storage DataType,
// reporting whether it is a SERIAL variant (spec.md §4.7 CREATE TABLE: "a
// SERIAL-typed column becomes Int32 with is_serial=true and nullable=false").
// libpg_query's raw parser leaves SERIAL/SMALLSERIAL/BIGSERIAL unexpanded as
// a bare type name (Postgres only rewrites it into a sequence+default during
// parse analysis, a phase this module has no analogue of), so the executor
// has to recognize those names itself rather than treating them as ordinary
// user types.
//
// Grounded on pgroll's sql2pgroll/typename.go, which walks the same
// TypeName.Names/ArrayBounds shape to build a display string; this builds a
// types.DataType instead.
func resolveColumnType(tn *pgq.TypeName) (types.DataType, bool, error) {
	name, isArray := baseTypeName(tn)

	var tag types.DataTypeTag
	isSerial := false

	switch name {
	case "int2", "smallint":
		tag = types.DataTypeInt32
	case "smallserial", "serial2":
		tag, isSerial = types.DataTypeInt32, true
	case "int4", "int", "integer":
		tag = types.DataTypeInt32
	case "serial", "serial4":
		tag, isSerial = types.DataTypeInt32, true
	case "int8", "bigint":
		tag = types.DataTypeInt64
	case "bigserial", "serial8":
		tag, isSerial = types.DataTypeInt64, true
	case "float4", "real":
		tag = types.DataTypeFloat64
	case "float8", "float", "double precision":
		tag = types.DataTypeFloat64
	case "numeric", "decimal":
		tag = types.DataTypeFloat64
	case "text", "varchar", "character varying", "bpchar", "char", "character", "name", "citext":
		tag = types.DataTypeText
	case "bool", "boolean":
		tag = types.DataTypeBoolean
	case "bytea":
		tag = types.DataTypeBytes
	case "timestamp", "timestamptz", "date", "time", "timetz":
		tag = types.DataTypeTimestamp
	case "interval":
		tag = types.DataTypeInterval
	case "uuid":
		tag = types.DataTypeUUID
	case "json":
		tag = types.DataTypeJSON
	case "jsonb":
		tag = types.DataTypeJSONB
	default:
		return types.DataType{}, false, kverrors.Unsupported{Reason: "unsupported column type " + name}
	}

	dt := types.DataType{Tag: tag}
	if isArray {
		dt = types.ArrayOf(dt)
	}
	return dt, isSerial, nil
}

// baseTypeName lower-cases and joins a TypeName's schema-qualified name
// parts (dropping a leading "pg_catalog" qualifier, as the teacher's
// convertTypeName does), and reports whether the type carries array bounds.
func baseTypeName(tn *pgq.TypeName) (string, bool) {
	parts := make([]string, 0, len(tn.GetNames()))
	for _, n := range tn.GetNames() {
		s := n.GetString_().GetSval()
		if s == "pg_catalog" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.ToLower(strings.Join(parts, " ")), len(tn.GetArrayBounds()) > 0
}
