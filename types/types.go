package types

import (
	"strconv"
	"strings"
)

// DataType enumerates the SQL column types the engine stores.
type DataType uint8

const (
	TypeNull DataType = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
)

func (dt DataType) String() string {
	switch dt {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeString:
		return "STRING"
	case TypeBool:
		return "BOOL"
	default:
		return "NULL"
	}
}

// Value is a single column value.
type Value struct {
	Type  DataType
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func NewNull() Value             { return Value{Type: TypeNull} }
func NewInt(v int64) Value       { return Value{Type: TypeInt, Int: v} }
func NewFloat(v float64) Value   { return Value{Type: TypeFloat, Float: v} }
func NewString(v string) Value   { return Value{Type: TypeString, Str: v} }
func NewBool(v bool) Value       { return Value{Type: TypeBool, Bool: v} }

// AsInt returns the integer value and whether the value holds one.
func (v Value) AsInt() (int64, bool) {
	if v.Type != TypeInt {
		return 0, false
	}
	return v.Int, true
}

func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case TypeString:
		return v.Str
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "NULL"
	}
}

// Row is an ordered list of values, one per schema column.
type Row struct {
	Values []Value
}

func NewRow(values ...Value) Row {
	return Row{Values: values}
}

func (r Row) Len() int {
	return len(r.Values)
}

func (r Row) Get(idx int) (Value, bool) {
	if idx < 0 || idx >= len(r.Values) {
		return Value{}, false
	}
	return r.Values[idx], true
}

// Column describes one schema column.
type Column struct {
	Name string
	Type DataType
}

// Schema is the ordered column list of a table, fixed at creation time.
type Schema struct {
	Columns []Column
}

func NewSchema(columns ...Column) Schema {
	return Schema{Columns: columns}
}

func (s Schema) Len() int {
	return len(s.Columns)
}

// ColumnIndex returns the position of the named column, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
