// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// This file implements kvpg's own stable binary encoding for Value, Row
// and TableSchema (spec.md §4.1 "Serialization contract"). No library in
// the retrieved pack provides a Rust-bincode-compatible, append-only-enum
// Go codec (encoding/gob is not self-describing across struct-shape
// changes in the way an append-only tag needs, and the pack's protobuf/
// JSON-based options - pg_query_go's own wire format, k8s' apimachinery
// JSON - do not give the variant-ordinal stability spec.md §3 and §4.1
// require of DataType/Value). This is the one piece of the system built
// on the standard library rather than a pack dependency; see DESIGN.md.
//
// Layout: every Value is [Kind byte][payload]. Payloads are fixed-width
// for scalars, length-prefixed (uvarint) for Text/Bytes/JSON/JSONB, and
// count-prefixed + recursive for Array. This keeps encoding
// allocation-bounded by input size and keeps decoding self-describing,
// which is what lets Null and heterogeneous Arrays round-trip (spec.md
// §4.1).

// EncodeValue appends the canonical encoding of v to buf and returns the
// extended slice.
func EncodeValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBoolean:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt32:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v.I32))
		buf = append(buf, tmp[:]...)
	case KindInt64, KindTimestamp, KindInterval:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.I64))
		buf = append(buf, tmp[:]...)
	case KindFloat64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.F64))
		buf = append(buf, tmp[:]...)
	case KindText, KindJSON, KindJSONB:
		buf = appendBytesLP(buf, []byte(v.Text))
	case KindBytes:
		buf = appendBytesLP(buf, v.Bytes)
	case KindUUID:
		buf = append(buf, v.UUID[:]...)
	case KindArray:
		buf = appendUvarint(buf, uint64(len(v.Elems)))
		for _, e := range v.Elems {
			buf = EncodeValue(buf, e)
		}
	default:
		panic(fmt.Sprintf("types: EncodeValue: unknown kind %d", v.Kind))
	}
	return buf
}

// DecodeValue reads one Value from buf, returning the value and the
// number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, fmt.Errorf("types: DecodeValue: empty input")
	}
	kind := Kind(buf[0])
	n := 1
	switch kind {
	case KindNull:
		return Null(), n, nil
	case KindBoolean:
		if len(buf) < n+1 {
			return Value{}, 0, errShort("boolean")
		}
		v := Boolean(buf[n] != 0)
		return v, n + 1, nil
	case KindInt32:
		if len(buf) < n+4 {
			return Value{}, 0, errShort("int32")
		}
		v := Int32(int32(binary.BigEndian.Uint32(buf[n : n+4])))
		return v, n + 4, nil
	case KindInt64, KindTimestamp, KindInterval:
		if len(buf) < n+8 {
			return Value{}, 0, errShort("int64")
		}
		i64 := int64(binary.BigEndian.Uint64(buf[n : n+8]))
		switch kind {
		case KindTimestamp:
			return Timestamp(i64), n + 8, nil
		case KindInterval:
			return Interval(i64), n + 8, nil
		default:
			return Int64(i64), n + 8, nil
		}
	case KindFloat64:
		if len(buf) < n+8 {
			return Value{}, 0, errShort("float64")
		}
		bits := binary.BigEndian.Uint64(buf[n : n+8])
		return Float64(math.Float64frombits(bits)), n + 8, nil
	case KindText, KindJSON, KindJSONB:
		b, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return Value{}, 0, err
		}
		s := string(b)
		switch kind {
		case KindJSON:
			return JSON(s), n + adv, nil
		case KindJSONB:
			return JSONB(s), n + adv, nil
		default:
			return Text(s), n + adv, nil
		}
	case KindBytes:
		b, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return Value{}, 0, err
		}
		return Bytes(b), n + adv, nil
	case KindUUID:
		if len(buf) < n+16 {
			return Value{}, 0, errShort("uuid")
		}
		var u uuid.UUID
		copy(u[:], buf[n:n+16])
		return UUIDValue(u), n + 16, nil
	case KindArray:
		count, adv, err := readUvarint(buf[n:])
		if err != nil {
			return Value{}, 0, err
		}
		n += adv
		elems := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			v, adv, err := DecodeValue(buf[n:])
			if err != nil {
				return Value{}, 0, err
			}
			elems = append(elems, v)
			n += adv
		}
		return Array(elems), n, nil
	default:
		return Value{}, 0, fmt.Errorf("types: DecodeValue: unknown kind tag %d", kind)
	}
}

// EncodeRow serializes a Row as a count-prefixed sequence of Values.
func EncodeRow(r Row) []byte {
	buf := appendUvarint(nil, uint64(len(r)))
	for _, v := range r {
		buf = EncodeValue(buf, v)
	}
	return buf
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(buf []byte) (Row, error) {
	count, adv, err := readUvarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[adv:]
	row := make(Row, 0, count)
	for i := uint64(0); i < count; i++ {
		v, adv, err := DecodeValue(buf)
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		buf = buf[adv:]
	}
	return row, nil
}

// EncodeValues serializes a bare []Value vector the same way a Row is
// serialized; used for index key/value payloads (pk_bytes, idx_vals_bytes
// in spec.md §4.1) and for GROUP BY / DISTINCT dedup keys (spec.md §4.7).
func EncodeValues(vs []Value) []byte { return EncodeRow(Row(vs)) }

func errShort(what string) error {
	return fmt.Errorf("types: DecodeValue: short buffer decoding %s", what)
}

func appendBytesLP(buf, b []byte) []byte {
	buf = appendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytesLP(buf []byte) ([]byte, int, error) {
	n, adv, err := readUvarint(buf)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(buf)-adv) < n {
		return nil, 0, errShort("length-prefixed bytes")
	}
	return buf[adv : adv+int(n)], adv + int(n), nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, fmt.Errorf("types: readUvarint: malformed varint")
	}
	return v, n, nil
}
