// SPDX-License-Identifier: Apache-2.0

// Package types defines the data model shared by every component of the
// execution core: the tagged Value union, the parallel DataType tag set,
// and the column/index/table/row shapes that the catalog persists.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind tags a Value's variant. The numeric order is part of the on-disk
// format (pkg/codec serializes Values with this tag first): new variants
// must be appended here, never reordered or renumbered.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt32
	KindInt64
	KindFloat64
	KindText
	KindBytes
	KindTimestamp
	KindInterval
	KindUUID
	KindArray
	KindJSON
	KindJSONB
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindInterval:
		return "interval"
	case KindUUID:
		return "uuid"
	case KindArray:
		return "array"
	case KindJSON:
		return "json"
	case KindJSONB:
		return "jsonb"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union over every scalar and composite value the
// evaluator and storage layer exchange. Only the field(s) matching Kind
// are meaningful; zero values elsewhere are ignored.
//
// Timestamp and Interval are both milliseconds, signed 64-bit, matching
// spec.md §3 exactly (Interval is not a duration-of-component-parts; it is
// a flat millisecond count).
type Value struct {
	Kind Kind

	Bool  bool
	I32   int32
	I64   int64
	F64   float64
	Text  string
	Bytes []byte
	UUID  uuid.UUID
	Elems []Value // KindArray

	// Timestamp/Interval share I64 (milliseconds); kept as named
	// accessors below for readability at call sites.
}

func Null() Value                   { return Value{Kind: KindNull} }
func Boolean(b bool) Value          { return Value{Kind: KindBoolean, Bool: b} }
func Int32(v int32) Value           { return Value{Kind: KindInt32, I32: v} }
func Int64(v int64) Value           { return Value{Kind: KindInt64, I64: v} }
func Float64(v float64) Value       { return Value{Kind: KindFloat64, F64: v} }
func Text(v string) Value           { return Value{Kind: KindText, Text: v} }
func Bytes(v []byte) Value          { return Value{Kind: KindBytes, Bytes: v} }
func Timestamp(ms int64) Value      { return Value{Kind: KindTimestamp, I64: ms} }
func Interval(ms int64) Value       { return Value{Kind: KindInterval, I64: ms} }
func UUIDValue(u uuid.UUID) Value   { return Value{Kind: KindUUID, UUID: u} }
func Array(elems []Value) Value     { return Value{Kind: KindArray, Elems: elems} }
func JSON(text string) Value        { return Value{Kind: KindJSON, Text: text} }
func JSONB(canonical string) Value  { return Value{Kind: KindJSONB, Text: canonical} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// TimestampMillis and IntervalMillis are named accessors over the shared
// I64 field, used at call sites that already know the Kind.
func (v Value) TimestampMillis() int64 { return v.I64 }
func (v Value) IntervalMillis() int64  { return v.I64 }

// Equal implements structural equality (spec.md §3: "Equality is
// structural"). Two Nulls are equal; NaN float comparison is intentionally
// the Go default (NaN != NaN) since no function in the §4.5 library
// produces NaN from valid inputs without an explicit error path.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.Bool == other.Bool
	case KindInt32:
		return v.I32 == other.I32
	case KindInt64:
		return v.I64 == other.I64
	case KindFloat64:
		return v.F64 == other.F64
	case KindText, KindJSON, KindJSONB:
		return v.Text == other.Text
	case KindBytes:
		return string(v.Bytes) == string(other.Bytes)
	case KindTimestamp, KindInterval:
		return v.I64 == other.I64
	case KindUUID:
		return v.UUID == other.UUID
	case KindArray:
		if len(v.Elems) != len(other.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(other.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// DataType is the schema-level type tag, parallel to Kind. Its bincode-
// style layout is part of the on-disk schema format (spec.md §3): new
// variants MUST be appended, never reordered.
type DataType struct {
	Tag  DataTypeTag
	Elem *DataType // only set when Tag == DataTypeArray
}

type DataTypeTag uint8

const (
	DataTypeNull DataTypeTag = iota
	DataTypeBoolean
	DataTypeInt32
	DataTypeInt64
	DataTypeFloat64
	DataTypeText
	DataTypeBytes
	DataTypeTimestamp
	DataTypeInterval
	DataTypeUUID
	DataTypeArray
	DataTypeJSON
	DataTypeJSONB
)

func (t DataTypeTag) String() string {
	switch t {
	case DataTypeNull:
		return "null"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeInt32:
		return "int32"
	case DataTypeInt64:
		return "int64"
	case DataTypeFloat64:
		return "float64"
	case DataTypeText:
		return "text"
	case DataTypeBytes:
		return "bytes"
	case DataTypeTimestamp:
		return "timestamp"
	case DataTypeInterval:
		return "interval"
	case DataTypeUUID:
		return "uuid"
	case DataTypeArray:
		return "array"
	case DataTypeJSON:
		return "json"
	case DataTypeJSONB:
		return "jsonb"
	default:
		return fmt.Sprintf("datatype(%d)", uint8(t))
	}
}

func ArrayOf(elem DataType) DataType { return DataType{Tag: DataTypeArray, Elem: &elem} }

// KindOf returns the Value Kind a DataType's values carry.
func (t DataType) KindOf() Kind { return Kind(t.Tag) }

func (t DataType) String() string {
	if t.Tag == DataTypeArray && t.Elem != nil {
		return t.Elem.String() + "[]"
	}
	return t.Tag.String()
}
