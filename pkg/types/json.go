// SPDX-License-Identifier: Apache-2.0

package types

import (
	"strconv"
	"strings"

	"github.com/oapi-codegen/nullable"
)

// ToJSONCell converts a Value to the wire-boundary representation the
// ExecuteResult row encoding exposes: nullable.Nullable distinguishes an
// explicit SQL NULL (NewNullNullable, serializes as JSON null) from a
// present value (NewNullableWithValue), the same distinction the original
// implementation's row encoding needs at the JSON boundary and which a
// plain *string or "omitempty" string can't express once the column type
// is text and the empty string is itself a valid value.
func ToJSONCell(v Value) nullable.Nullable[string] {
	if v.IsNull() {
		return nullable.NewNullNullable[string]()
	}
	return nullable.NewNullableWithValue(formatValueText(v))
}

// RowToJSONCells maps ToJSONCell across a full row, the shape the wire
// layer's ExecuteResult response serializes one output row as.
func RowToJSONCells(row Row) []nullable.Nullable[string] {
	out := make([]nullable.Nullable[string], len(row))
	for i, v := range row {
		out[i] = ToJSONCell(v)
	}
	return out
}

// formatValueText renders a non-null Value as the text Postgres's own
// wire protocol would send for it in text format, since ToJSONCell's
// consumer is anything decoding the column by its advertised type, not
// this encoding itself.
func formatValueText(v Value) string {
	switch v.Kind {
	case KindBoolean:
		if v.Bool {
			return "t"
		}
		return "f"
	case KindInt32:
		return strconv.FormatInt(int64(v.I32), 10)
	case KindInt64, KindTimestamp, KindInterval:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindText, KindJSON, KindJSONB:
		return v.Text
	case KindBytes:
		return "\\x" + hexEncode(v.Bytes)
	case KindUUID:
		return v.UUID.String()
	case KindArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			if e.IsNull() {
				parts[i] = "NULL"
			} else {
				parts[i] = formatValueText(e)
			}
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return ""
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
