package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		NewNull(),
		NewInt(0),
		NewInt(-42),
		NewInt(1<<62 + 7),
		NewFloat(3.25),
		NewString(""),
		NewString("hello, disk"),
		NewBool(true),
		NewBool(false),
	}

	for _, v := range values {
		buf, err := EncodeValue(nil, v)
		require.NoError(t, err)

		got, n, err := DecodeValue(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, got)
	}
}

func TestRowRoundTrip(t *testing.T) {
	row := NewRow(NewInt(5), NewString("alice"), NewBool(true), NewNull())

	buf, err := EncodeRow(row)
	require.NoError(t, err)

	got, n, err := DecodeRow(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, row, got)
}

func TestRowDecodeTruncated(t *testing.T) {
	row := NewRow(NewInt(5), NewString("alice"))
	buf, err := EncodeRow(row)
	require.NoError(t, err)

	_, _, err = DecodeRow(buf[:len(buf)-3])
	assert.Error(t, err)

	_, _, err = DecodeRow(nil)
	assert.Error(t, err)
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: TypeInt},
		Column{Name: "name", Type: TypeString},
		Column{Name: "score", Type: TypeFloat},
	)

	buf, err := EncodeSchema(schema)
	require.NoError(t, err)

	got, n, err := DecodeSchema(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, schema, got)
}

func TestSchemaColumnIndex(t *testing.T) {
	schema := NewSchema(
		Column{Name: "Id", Type: TypeInt},
		Column{Name: "name", Type: TypeString},
	)

	assert.Equal(t, 0, schema.ColumnIndex("id"))
	assert.Equal(t, 1, schema.ColumnIndex("NAME"))
	assert.Equal(t, -1, schema.ColumnIndex("missing"))
}
