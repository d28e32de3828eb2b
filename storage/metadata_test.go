package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/flint/storage/segment"
	"github.com/alexhholmes/flint/types"
)

func openMetaFile(t *testing.T) (*segment.File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	f, err := segment.Open(path, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, path
}

func TestMetadataSaveLoad(t *testing.T) {
	f, _ := openMetaFile(t)
	m := NewMetadataManager(f)

	tables := sampleTables()
	require.NoError(t, m.Save(tables))

	got, err := m.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tables["users"].Segments, got["users"].Segments)
	assert.Equal(t, tables["events"].Schema, got["events"].Schema)
}

func TestMetadataLoadEmptyFile(t *testing.T) {
	f, _ := openMetaFile(t)
	m := NewMetadataManager(f)

	_, err := m.Load()
	assert.ErrorIs(t, err, ErrCorruptCatalog, "neither reserved segment holds a catalog yet")
}

func TestMetadataSaveAlternatesSegments(t *testing.T) {
	f, _ := openMetaFile(t)
	m := NewMetadataManager(f)

	first := m.Active()
	require.NoError(t, m.Save(sampleTables()))
	second := m.Active()
	assert.NotEqual(t, first, second, "save flips the active segment")

	require.NoError(t, m.Save(sampleTables()))
	assert.Equal(t, first, m.Active())
}

func TestMetadataHigherVersionWins(t *testing.T) {
	f, _ := openMetaFile(t)
	m := NewMetadataManager(f)

	v1 := sampleTables()
	require.NoError(t, m.Save(v1)) // version 1, segment 1

	v2 := sampleTables()
	v2["users"].Segments = append(v2["users"].Segments, 9)
	require.NoError(t, m.Save(v2)) // version 2, segment 0

	v3 := sampleTables()
	v3["users"].Segments = append(v3["users"].Segments, 9, 11)
	require.NoError(t, m.Save(v3)) // version 3, segment 1

	// A fresh manager starts presuming segment 0 is active; Load must still
	// pick the newer copy on segment 1 and flip to it.
	fresh := NewMetadataManager(f)
	got, err := fresh.Load()
	require.NoError(t, err)
	assert.Equal(t, v3["users"].Segments, got["users"].Segments)
	assert.Equal(t, segment.SegmentID(1), fresh.Active())
}

func TestMetadataRecoversFromCorruptActiveCopy(t *testing.T) {
	f, _ := openMetaFile(t)
	m := NewMetadataManager(f)

	old := sampleTables()
	require.NoError(t, m.Save(old)) // segment 1

	updated := sampleTables()
	updated["orders"] = &TableMetadata{
		Schema: types.NewSchema(types.Column{Name: "id", Type: types.TypeInt}),
	}
	require.NoError(t, m.Save(updated)) // segment 0, now active
	require.Equal(t, segment.SegmentID(0), m.Active())

	// Smash the active copy on disk, simulating a torn catalog write.
	garbage := segment.NewBlock()
	for i := range garbage.Data {
		garbage.Data[i] = 0xDB
	}
	require.NoError(t, f.WriteBlock(0, 0, garbage))

	fresh := NewMetadataManager(f)
	got, err := fresh.Load()
	require.NoError(t, err)
	assert.Equal(t, segment.SegmentID(1), fresh.Active(), "activity flips to the surviving copy")
	require.Len(t, got, 2, "the older but intact catalog wins over garbage")
	assert.NotContains(t, got, "orders")
}
