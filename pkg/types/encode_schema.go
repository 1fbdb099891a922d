// SPDX-License-Identifier: Apache-2.0

package types

import "fmt"

// EncodeDataType appends the canonical encoding of t to buf. Tag order is
// part of the on-disk schema format (spec.md §3): append-only.
func EncodeDataType(buf []byte, t DataType) []byte {
	buf = append(buf, byte(t.Tag))
	if t.Tag == DataTypeArray {
		if t.Elem == nil {
			panic("types: EncodeDataType: array type with nil Elem")
		}
		buf = EncodeDataType(buf, *t.Elem)
	}
	return buf
}

// DecodeDataType is the inverse of EncodeDataType.
func DecodeDataType(buf []byte) (DataType, int, error) {
	if len(buf) < 1 {
		return DataType{}, 0, fmt.Errorf("types: DecodeDataType: empty input")
	}
	tag := DataTypeTag(buf[0])
	if tag > DataTypeJSONB {
		return DataType{}, 0, fmt.Errorf("types: DecodeDataType: unknown tag %d", tag)
	}
	if tag != DataTypeArray {
		return DataType{Tag: tag}, 1, nil
	}
	elem, adv, err := DecodeDataType(buf[1:])
	if err != nil {
		return DataType{}, 0, err
	}
	return ArrayOf(elem), 1 + adv, nil
}

func encodeOptString(buf []byte, s *string) []byte {
	if s == nil {
		buf = append(buf, 0)
		return buf
	}
	buf = append(buf, 1)
	return appendBytesLP(buf, []byte(*s))
}

func decodeOptString(buf []byte) (*string, int, error) {
	if len(buf) < 1 {
		return nil, 0, errShort("optional string tag")
	}
	if buf[0] == 0 {
		return nil, 1, nil
	}
	b, adv, err := readBytesLP(buf[1:])
	if err != nil {
		return nil, 0, err
	}
	s := string(b)
	return &s, 1 + adv, nil
}

func encodeBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func decodeBool(buf []byte) (bool, int, error) {
	if len(buf) < 1 {
		return false, 0, errShort("bool")
	}
	return buf[0] != 0, 1, nil
}

func encodeStringList(buf []byte, ss []string) []byte {
	buf = appendUvarint(buf, uint64(len(ss)))
	for _, s := range ss {
		buf = appendBytesLP(buf, []byte(s))
	}
	return buf
}

func decodeStringList(buf []byte) ([]string, int, error) {
	count, n, err := readUvarint(buf)
	if err != nil {
		return nil, 0, err
	}
	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		b, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, string(b))
		n += adv
	}
	return out, n, nil
}

func encodeIntList(buf []byte, is []int) []byte {
	buf = appendUvarint(buf, uint64(len(is)))
	for _, i := range is {
		buf = appendUvarint(buf, uint64(i))
	}
	return buf
}

func decodeIntList(buf []byte) ([]int, int, error) {
	count, n, err := readUvarint(buf)
	if err != nil {
		return nil, 0, err
	}
	out := make([]int, 0, count)
	for i := uint64(0); i < count; i++ {
		v, adv, err := readUvarint(buf[n:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, int(v))
		n += adv
	}
	return out, n, nil
}

// EncodeColumnDef appends the canonical encoding of c to buf.
func EncodeColumnDef(buf []byte, c ColumnDef) []byte {
	buf = appendBytesLP(buf, []byte(c.Name))
	buf = EncodeDataType(buf, c.DataType)
	buf = encodeBool(buf, c.Nullable)
	buf = encodeBool(buf, c.PrimaryKey)
	buf = encodeBool(buf, c.Unique)
	buf = encodeBool(buf, c.IsSerial)
	buf = encodeOptString(buf, c.DefaultExpr)
	return buf
}

// DecodeColumnDef is the inverse of EncodeColumnDef.
func DecodeColumnDef(buf []byte) (ColumnDef, int, error) {
	var c ColumnDef
	n := 0

	name, adv, err := readBytesLP(buf[n:])
	if err != nil {
		return c, 0, err
	}
	c.Name = string(name)
	n += adv

	dt, adv, err := DecodeDataType(buf[n:])
	if err != nil {
		return c, 0, err
	}
	c.DataType = dt
	n += adv

	c.Nullable, adv, err = decodeBool(buf[n:])
	if err != nil {
		return c, 0, err
	}
	n += adv

	c.PrimaryKey, adv, err = decodeBool(buf[n:])
	if err != nil {
		return c, 0, err
	}
	n += adv

	c.Unique, adv, err = decodeBool(buf[n:])
	if err != nil {
		return c, 0, err
	}
	n += adv

	c.IsSerial, adv, err = decodeBool(buf[n:])
	if err != nil {
		return c, 0, err
	}
	n += adv

	c.DefaultExpr, adv, err = decodeOptString(buf[n:])
	if err != nil {
		return c, 0, err
	}
	n += adv

	return c, n, nil
}

// EncodeIndexDef appends the canonical encoding of idx to buf.
func EncodeIndexDef(buf []byte, idx IndexDef) []byte {
	buf = appendBytesLP(buf, []byte(idx.Name))
	buf = appendUvarint(buf, idx.ID)
	buf = encodeStringList(buf, idx.Columns)
	buf = encodeBool(buf, idx.Unique)
	return buf
}

// DecodeIndexDef is the inverse of EncodeIndexDef.
func DecodeIndexDef(buf []byte) (IndexDef, int, error) {
	var idx IndexDef
	n := 0

	name, adv, err := readBytesLP(buf[n:])
	if err != nil {
		return idx, 0, err
	}
	idx.Name = string(name)
	n += adv

	id, adv, err := readUvarint(buf[n:])
	if err != nil {
		return idx, 0, err
	}
	idx.ID = id
	n += adv

	idx.Columns, adv, err = decodeStringList(buf[n:])
	if err != nil {
		return idx, 0, err
	}
	n += adv

	idx.Unique, adv, err = decodeBool(buf[n:])
	if err != nil {
		return idx, 0, err
	}
	n += adv

	return idx, n, nil
}

// EncodeTableSchema serializes a whole TableSchema. Check constraints and
// foreign keys are accepted syntactically by the executor but never
// enforced (spec.md §4.7), so they are persisted only for round-tripping
// `information_schema` queries and are encoded as their raw definitions.
func EncodeTableSchema(s *TableSchema) []byte {
	var buf []byte
	buf = appendBytesLP(buf, []byte(s.Name))
	buf = appendUvarint(buf, s.TableID)
	buf = appendUvarint(buf, uint64(len(s.Columns)))
	for _, c := range s.Columns {
		buf = EncodeColumnDef(buf, c)
	}
	buf = appendUvarint(buf, s.Version)
	buf = encodeIntList(buf, s.PKIndices)
	buf = appendUvarint(buf, uint64(len(s.Indexes)))
	for _, idx := range s.Indexes {
		buf = EncodeIndexDef(buf, idx)
	}
	buf = appendUvarint(buf, uint64(len(s.CheckConstraints)))
	for _, cc := range s.CheckConstraints {
		buf = appendBytesLP(buf, []byte(cc.Name))
		buf = appendBytesLP(buf, []byte(cc.Expression))
	}
	buf = appendUvarint(buf, uint64(len(s.ForeignKeys)))
	for _, fk := range s.ForeignKeys {
		buf = appendBytesLP(buf, []byte(fk.Name))
		buf = encodeStringList(buf, fk.Columns)
		buf = appendBytesLP(buf, []byte(fk.ReferencedTable))
		buf = encodeStringList(buf, fk.ReferencedColumns)
	}
	return buf
}

// DecodeTableSchema is the inverse of EncodeTableSchema.
func DecodeTableSchema(buf []byte) (*TableSchema, error) {
	s := &TableSchema{}
	n := 0

	name, adv, err := readBytesLP(buf[n:])
	if err != nil {
		return nil, err
	}
	s.Name = string(name)
	n += adv

	s.TableID, adv, err = readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv

	colCount, adv, err := readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv
	s.Columns = make([]ColumnDef, 0, colCount)
	for i := uint64(0); i < colCount; i++ {
		c, adv, err := DecodeColumnDef(buf[n:])
		if err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, c)
		n += adv
	}

	s.Version, adv, err = readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv

	s.PKIndices, adv, err = decodeIntList(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv

	idxCount, adv, err := readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv
	s.Indexes = make([]IndexDef, 0, idxCount)
	for i := uint64(0); i < idxCount; i++ {
		idx, adv, err := DecodeIndexDef(buf[n:])
		if err != nil {
			return nil, err
		}
		s.Indexes = append(s.Indexes, idx)
		n += adv
	}

	ccCount, adv, err := readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv
	for i := uint64(0); i < ccCount; i++ {
		name, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		expr, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		s.CheckConstraints = append(s.CheckConstraints, CheckConstraintDef{Name: string(name), Expression: string(expr)})
	}

	fkCount, adv, err := readUvarint(buf[n:])
	if err != nil {
		return nil, err
	}
	n += adv
	for i := uint64(0); i < fkCount; i++ {
		name, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		cols, adv, err := decodeStringList(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		refTable, adv, err := readBytesLP(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		refCols, adv, err := decodeStringList(buf[n:])
		if err != nil {
			return nil, err
		}
		n += adv
		s.ForeignKeys = append(s.ForeignKeys, ForeignKeyDef{
			Name:              string(name),
			Columns:           cols,
			ReferencedTable:   string(refTable),
			ReferencedColumns: refCols,
		})
	}

	return s, nil
}
