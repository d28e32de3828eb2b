package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/flint/storage/segment"
)

func leafEntry(key uint64) Entry {
	return Entry{Key: key, Ptr: segment.TuplePointer{Segment: 2, Block: 1, Slot: uint16(key)}}
}

func TestMaxEntries(t *testing.T) {
	assert.Equal(t, 268, MaxEntries())
}

func TestNewPageHeader(t *testing.T) {
	leaf := NewPage(true)
	h, err := leaf.Header()
	require.NoError(t, err)
	assert.True(t, h.Leaf)
	assert.Zero(t, h.NumKeys)

	internal := NewPage(false)
	h, err = internal.Header()
	require.NoError(t, err)
	assert.False(t, h.Leaf)
}

func TestLoadPageRejectsGarbage(t *testing.T) {
	_, err := LoadPage(make([]byte, PageSize))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = LoadPage(make([]byte, 100))
	assert.Error(t, err)

	p := NewPage(true)
	got, err := LoadPage(p.Data)
	require.NoError(t, err)
	h, err := got.Header()
	require.NoError(t, err)
	assert.True(t, h.Leaf)
}

func TestInsertAtKeepsOrder(t *testing.T) {
	p := NewPage(true)

	// Out-of-order inserts at computed positions.
	for _, key := range []uint64{30, 10, 20, 40, 5} {
		_, pos, err := p.BinarySearch(key)
		require.NoError(t, err)
		require.NoError(t, p.InsertAt(pos, leafEntry(key)))
	}

	entries, err := p.Entries()
	require.NoError(t, err)
	keys := make([]uint64, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []uint64{5, 10, 20, 30, 40}, keys)

	// Pointers shifted along with their keys.
	e, err := p.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(20), e.Ptr.Slot)
}

func TestBinarySearch(t *testing.T) {
	p := NewPage(true)
	for i, key := range []uint64{10, 20, 30} {
		require.NoError(t, p.InsertAt(i, leafEntry(key)))
	}

	found, pos, err := p.BinarySearch(20)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, pos)

	found, pos, err = p.BinarySearch(25)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, pos, "insertion point between 20 and 30")

	found, pos, err = p.BinarySearch(5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, pos)

	found, pos, err = p.BinarySearch(99)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 3, pos)
}

func TestInsertAtFull(t *testing.T) {
	p := NewPage(true)
	for i := 0; i < MaxEntries(); i++ {
		require.NoError(t, p.InsertAt(i, leafEntry(uint64(i))))
	}

	err := p.InsertAt(0, leafEntry(999))
	assert.ErrorIs(t, err, ErrPageFull)

	h, err := p.Header()
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxEntries()), h.NumKeys)
}

func TestInsertAtOutOfRange(t *testing.T) {
	p := NewPage(true)
	require.NoError(t, p.InsertAt(0, leafEntry(1)))

	assert.ErrorIs(t, p.InsertAt(5, leafEntry(2)), ErrPosOutOfRange)
	assert.ErrorIs(t, p.InsertAt(-1, leafEntry(2)), ErrPosOutOfRange)
}

func TestSetEntry(t *testing.T) {
	p := NewPage(true)
	require.NoError(t, p.InsertAt(0, leafEntry(7)))

	updated := Entry{Key: 7, Ptr: segment.TuplePointer{Segment: 5, Block: 3, Slot: 9}}
	require.NoError(t, p.SetEntry(0, updated))

	e, err := p.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, updated, e)

	assert.ErrorIs(t, p.SetEntry(1, updated), ErrPosOutOfRange)
}

func TestSetEntries(t *testing.T) {
	p := NewPage(true)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.InsertAt(i, leafEntry(uint64(i))))
	}

	repacked := []Entry{leafEntry(100), leafEntry(200)}
	require.NoError(t, p.SetEntries(false, repacked))

	h, err := p.Header()
	require.NoError(t, err)
	assert.False(t, h.Leaf, "SetEntries can change the page kind")
	assert.Equal(t, uint16(2), h.NumKeys)

	entries, err := p.Entries()
	require.NoError(t, err)
	assert.Equal(t, repacked, entries)

	tooMany := make([]Entry, MaxEntries()+1)
	assert.ErrorIs(t, p.SetEntries(true, tooMany), ErrPageFull)
}
