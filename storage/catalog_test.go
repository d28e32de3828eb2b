package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/flint/storage/segment"
	"github.com/alexhholmes/flint/types"
)

func sampleTables() map[string]*TableMetadata {
	return map[string]*TableMetadata{
		"users": {
			Schema: types.NewSchema(
				types.Column{Name: "id", Type: types.TypeInt},
				types.Column{Name: "name", Type: types.TypeString},
			),
			Segments: []segment.SegmentID{2, 5},
		},
		"events": {
			Schema: types.NewSchema(
				types.Column{Name: "ts", Type: types.TypeInt},
			),
			Segments: []segment.SegmentID{3},
		},
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	tables := sampleTables()

	payload, err := encodeCatalog(tables, 7)
	require.NoError(t, err)
	assert.Len(t, payload, segment.BlockSize-segment.BlockHeaderSize)

	header, got, err := decodeCatalog(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), header.Version)
	assert.Equal(t, uint32(2), header.NumTables)
	require.Len(t, got, 2)
	assert.Equal(t, tables["users"].Schema, got["users"].Schema)
	assert.Equal(t, tables["users"].Segments, got["users"].Segments)
	assert.Equal(t, tables["events"].Segments, got["events"].Segments)
}

func TestCatalogEmpty(t *testing.T) {
	payload, err := encodeCatalog(map[string]*TableMetadata{}, 1)
	require.NoError(t, err)

	header, got, err := decodeCatalog(payload)
	require.NoError(t, err)
	assert.Zero(t, header.NumTables)
	assert.Empty(t, got)
}

func TestCatalogDeterministicOffsets(t *testing.T) {
	payload1, err := encodeCatalog(sampleTables(), 3)
	require.NoError(t, err)
	payload2, err := encodeCatalog(sampleTables(), 3)
	require.NoError(t, err)
	assert.Equal(t, payload1, payload2, "map iteration order must not leak into the encoding")

	header, _, err := decodeCatalog(payload1)
	require.NoError(t, err)
	assert.Equal(t, "events", header.TableOffsets[0].Name, "tables are sorted by name")
	assert.Equal(t, "users", header.TableOffsets[1].Name)
	assert.Less(t, header.TableOffsets[0].Offset, header.TableOffsets[1].Offset)
}

func TestCatalogTooLarge(t *testing.T) {
	tables := make(map[string]*TableMetadata)
	for i := 0; i < 200; i++ {
		name := strings.Repeat("x", 20) + string(rune('a'+i%26)) + string(rune('a'+i/26))
		tables[name] = &TableMetadata{
			Schema: types.NewSchema(types.Column{Name: "id", Type: types.TypeInt}),
		}
	}

	_, err := encodeCatalog(tables, 1)
	assert.ErrorIs(t, err, ErrCatalogTooLarge)
}

func TestCatalogCorruption(t *testing.T) {
	payload, err := encodeCatalog(sampleTables(), 2)
	require.NoError(t, err)

	// Flip one byte in the table blob area, past the header.
	payload[len(payload)-1] ^= 0xFF
	_, _, err = decodeCatalog(payload)
	assert.ErrorIs(t, err, ErrCorruptCatalog)

	// A zeroed payload decodes as version 0, which is never written.
	_, _, err = decodeCatalog(make([]byte, len(payload)))
	assert.ErrorIs(t, err, ErrCorruptCatalog)

	_, _, err = decodeCatalog([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptCatalog)
}
