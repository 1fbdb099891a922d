// SPDX-License-Identifier: Apache-2.0

// Package codec implements the bijective mapping between (namespace,
// table, row/index) and byte keys described in spec.md §4.1 (C1 Key
// Codec). It is pure and allocation-bounded by its inputs; it performs
// no I/O.
package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/kvpg/kvpg/pkg/types"
)

const (
	rawNextTableID  = "_sys_next_table_id"
	rawSeqPrefix    = "_sys_seq_"
	rawSchemaPrefix = "_sys_schema_"
	rawViewPrefix   = "_sys_view_"
	rawUserPrefix   = "_sys_user_"
	rawRolePrefix   = "_sys_role_"
	tableDataTag    = "t_"
	indexTag        = "i_"
)

// ApplyNamespace prefixes key with "n_"+namespace+"_", or returns key
// unchanged when namespace is empty (spec.md §4.1).
func ApplyNamespace(namespace string, key []byte) []byte {
	if namespace == "" {
		return key
	}
	prefix := "n_" + namespace + "_"
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	out = append(out, key...)
	return out
}

// StripNamespace is the inverse of ApplyNamespace. It returns an error if
// key does not carry the expected prefix for a non-empty namespace.
func StripNamespace(namespace string, key []byte) ([]byte, error) {
	if namespace == "" {
		return key, nil
	}
	prefix := "n_" + namespace + "_"
	if !strings.HasPrefix(string(key), prefix) {
		return nil, fmt.Errorf("codec: key %q does not carry namespace prefix %q", key, prefix)
	}
	return key[len(prefix):], nil
}

func beU64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// NextTableIDKey returns the raw key for the process-wide table-id counter.
func NextTableIDKey() []byte { return []byte(rawNextTableID) }

// SequenceKey returns the raw key for table T's SERIAL sequence counter.
func SequenceKey(tableID uint64) []byte {
	return append([]byte(rawSeqPrefix), beU64(tableID)...)
}

// SchemaKey returns the raw key for a table's schema registry entry.
func SchemaKey(tableName string) []byte {
	return append([]byte(rawSchemaPrefix), tableName...)
}

// SchemaPrefix returns the raw prefix covering every schema registry entry,
// used by list_tables (spec.md §4.2).
func SchemaPrefix() []byte { return []byte(rawSchemaPrefix) }

// ViewKey returns the raw key for a view registry entry.
func ViewKey(viewName string) []byte {
	return append([]byte(rawViewPrefix), viewName...)
}

// ViewPrefix returns the raw prefix covering every view registry entry.
func ViewPrefix() []byte { return []byte(rawViewPrefix) }

// UserKey returns the raw key for a user's auth registry entry.
func UserKey(name string) []byte { return append([]byte(rawUserPrefix), name...) }

// UserPrefix returns the raw prefix covering every user registry entry,
// used to test whether a namespace's user registry is empty on bootstrap.
func UserPrefix() []byte { return []byte(rawUserPrefix) }

// RoleKey returns the raw key for a role's auth registry entry.
func RoleKey(name string) []byte { return append([]byte(rawRolePrefix), name...) }

// RolePrefix returns the raw prefix covering every role registry entry.
func RolePrefix() []byte { return []byte(rawRolePrefix) }

// DataKey returns the raw key for one row, keyed by its primary-key value
// vector (spec.md §4.1: "t_" ‖ be(table_id) ‖ "_" ‖ pk_bytes).
func DataKey(tableID uint64, pkValues []types.Value) []byte {
	pkBytes := types.EncodeValues(pkValues)
	buf := make([]byte, 0, len(tableDataTag)+8+1+len(pkBytes))
	buf = append(buf, tableDataTag...)
	buf = append(buf, beU64(tableID)...)
	buf = append(buf, '_')
	buf = append(buf, pkBytes...)
	return buf
}

// DataRangeStart and DataRangeEnd bound the half-open key range
// [start, end) that covers exactly one table's row data, per spec.md
// §4.1's invariant that big-endian table-id encoding makes ranges
// non-overlapping.
func DataRangeStart(tableID uint64) []byte {
	buf := make([]byte, 0, len(tableDataTag)+9)
	buf = append(buf, tableDataTag...)
	buf = append(buf, beU64(tableID)...)
	buf = append(buf, '_')
	return buf
}

func DataRangeEnd(tableID uint64) []byte {
	buf := make([]byte, 0, len(tableDataTag)+8)
	buf = append(buf, tableDataTag...)
	buf = append(buf, beU64(tableID+1)...)
	return buf
}

// IndexKeyPrefix returns "i_" ‖ be(table_id) ‖ "_" ‖ be(index_id) ‖ "_",
// the fixed prefix shared by every entry of one index.
func IndexKeyPrefix(tableID, indexID uint64) []byte {
	buf := make([]byte, 0, len(indexTag)+18)
	buf = append(buf, indexTag...)
	buf = append(buf, beU64(tableID)...)
	buf = append(buf, '_')
	buf = append(buf, beU64(indexID)...)
	buf = append(buf, '_')
	return buf
}

// UniqueIndexKey returns the key of a unique-index entry: the fixed
// prefix followed by the length-prefixed encoding of idxValues. Using a
// length-prefixed (not raw-concatenated) encoding for idxValues, rather
// than relying on a trailing separator byte, is what lets
// NonUniqueIndexKey below append a pk suffix unambiguously (spec.md §9
// open question on separator safety) — decoding a non-unique entry never
// needs to guess where idx_vals_bytes ends because EncodeValues is
// self-describing (each value already carries its own length prefix).
func UniqueIndexKey(tableID, indexID uint64, idxValues []types.Value) []byte {
	prefix := IndexKeyPrefix(tableID, indexID)
	return append(prefix, types.EncodeValues(idxValues)...)
}

// NonUniqueIndexKey returns the key of a non-unique-index entry: the
// unique-index key for the same values, followed by "_" and the pk bytes
// (spec.md §4.1).
func NonUniqueIndexKey(tableID, indexID uint64, idxValues []types.Value, pkValues []types.Value) []byte {
	base := UniqueIndexKey(tableID, indexID, idxValues)
	base = append(base, '_')
	return append(base, types.EncodeValues(pkValues)...)
}

// SplitNonUniqueIndexKey recovers the embedded pk bytes from a non-unique
// index entry key, given the known-length fixed prefix (table/index id
// prefix plus the length-prefixed idx values). Because idxValues is
// self-describing, the caller need only know the values it scanned for
// to reconstruct the exact prefix length and strip it, per spec.md §9.
func SplitNonUniqueIndexKey(key []byte, tableID, indexID uint64, idxValues []types.Value) ([]byte, error) {
	prefix := UniqueIndexKey(tableID, indexID, idxValues)
	want := string(prefix) + "_"
	if !strings.HasPrefix(string(key), want) {
		return nil, fmt.Errorf("codec: index key %q does not carry expected prefix %q", key, want)
	}
	return key[len(want):], nil
}
