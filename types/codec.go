package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// On-disk encoding for values, rows and schemas. All integers are
// little-endian with explicit widths; native struct layout is never written
// to disk.
//
// Value:  tag(1) + payload
//   Null   -> no payload
//   Int    -> int64 (8)
//   Float  -> IEEE-754 bits (8)
//   String -> length u16 + bytes
//   Bool   -> 1 byte (0/1)
// Row:    count u16 + values
// Column: name length u16 + name bytes + type tag(1)
// Schema: count u16 + columns

const maxStringLen = math.MaxUint16

// EncodeValue appends the serialized value to buf.
func EncodeValue(buf []byte, v Value) ([]byte, error) {
	buf = append(buf, byte(v.Type))
	switch v.Type {
	case TypeNull:
	case TypeInt:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
	case TypeFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float))
	case TypeString:
		if len(v.Str) > maxStringLen {
			return nil, fmt.Errorf("string value too long: %d bytes (max %d)", len(v.Str), maxStringLen)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(v.Str)))
		buf = append(buf, v.Str...)
	case TypeBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	default:
		return nil, fmt.Errorf("unknown value type %d", v.Type)
	}
	return buf, nil
}

// DecodeValue reads one value from buf and returns it with the number of
// bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, fmt.Errorf("value truncated: missing type tag")
	}
	tag := DataType(buf[0])
	off := 1
	switch tag {
	case TypeNull:
		return NewNull(), off, nil
	case TypeInt:
		if len(buf) < off+8 {
			return Value{}, 0, fmt.Errorf("int value truncated")
		}
		n := int64(binary.LittleEndian.Uint64(buf[off:]))
		return NewInt(n), off + 8, nil
	case TypeFloat:
		if len(buf) < off+8 {
			return Value{}, 0, fmt.Errorf("float value truncated")
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		return NewFloat(f), off + 8, nil
	case TypeString:
		if len(buf) < off+2 {
			return Value{}, 0, fmt.Errorf("string length truncated")
		}
		n := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+n {
			return Value{}, 0, fmt.Errorf("string value truncated: want %d bytes, have %d", n, len(buf)-off)
		}
		return NewString(string(buf[off : off+n])), off + n, nil
	case TypeBool:
		if len(buf) < off+1 {
			return Value{}, 0, fmt.Errorf("bool value truncated")
		}
		return NewBool(buf[off] != 0), off + 1, nil
	default:
		return Value{}, 0, fmt.Errorf("unknown value tag %d", tag)
	}
}

// EncodeRow serializes a row to a fresh byte slice.
func EncodeRow(r Row) ([]byte, error) {
	if len(r.Values) > maxStringLen {
		return nil, fmt.Errorf("row has too many values: %d", len(r.Values))
	}
	buf := binary.LittleEndian.AppendUint16(nil, uint16(len(r.Values)))
	var err error
	for _, v := range r.Values {
		buf, err = EncodeValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeRow deserializes a row and returns the bytes consumed.
func DecodeRow(buf []byte) (Row, int, error) {
	if len(buf) < 2 {
		return Row{}, 0, fmt.Errorf("row truncated: missing value count")
	}
	count := int(binary.LittleEndian.Uint16(buf))
	off := 2
	values := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		v, n, err := DecodeValue(buf[off:])
		if err != nil {
			return Row{}, 0, fmt.Errorf("row value %d: %w", i, err)
		}
		values = append(values, v)
		off += n
	}
	return Row{Values: values}, off, nil
}

// EncodeSchema serializes a schema to a fresh byte slice.
func EncodeSchema(s Schema) ([]byte, error) {
	if len(s.Columns) > maxStringLen {
		return nil, fmt.Errorf("schema has too many columns: %d", len(s.Columns))
	}
	buf := binary.LittleEndian.AppendUint16(nil, uint16(len(s.Columns)))
	for _, c := range s.Columns {
		if len(c.Name) > maxStringLen {
			return nil, fmt.Errorf("column name too long: %d bytes", len(c.Name))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Name)))
		buf = append(buf, c.Name...)
		buf = append(buf, byte(c.Type))
	}
	return buf, nil
}

// DecodeSchema deserializes a schema and returns the bytes consumed.
func DecodeSchema(buf []byte) (Schema, int, error) {
	if len(buf) < 2 {
		return Schema{}, 0, fmt.Errorf("schema truncated: missing column count")
	}
	count := int(binary.LittleEndian.Uint16(buf))
	off := 2
	cols := make([]Column, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < off+2 {
			return Schema{}, 0, fmt.Errorf("schema column %d: name length truncated", i)
		}
		n := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+n+1 {
			return Schema{}, 0, fmt.Errorf("schema column %d truncated", i)
		}
		name := string(buf[off : off+n])
		off += n
		cols = append(cols, Column{Name: name, Type: DataType(buf[off])})
		off++
	}
	return Schema{Columns: cols}, off, nil
}
