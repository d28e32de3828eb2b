package segment

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadTuples(t *testing.T) {
	b := NewBlock()

	tuples := [][]byte{
		[]byte("alice|20"),
		[]byte("bob|21"),
		[]byte("charlie|22"),
	}
	for i, tuple := range tuples {
		slot, err := b.AppendTuple(tuple)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), slot, "slot ids are assigned in order")
	}
	assert.Equal(t, uint16(len(tuples)), b.SlotCount())

	for i, want := range tuples {
		got, ok := b.ReadTuple(uint16(i))
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := b.ReadTuple(uint16(len(tuples)))
	assert.False(t, ok, "unassigned slot reads as absent")
}

func TestSlotIDsStableAcrossAppends(t *testing.T) {
	b := NewBlock()

	first, err := b.AppendTuple([]byte("first"))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := b.AppendTuple([]byte(fmt.Sprintf("tuple-%d", i)))
		require.NoError(t, err)
	}

	got, ok := b.ReadTuple(first)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)
}

func TestBlockFullOnSpace(t *testing.T) {
	b := NewBlock()

	big := bytes.Repeat([]byte{0xAB}, 2000)
	_, err := b.AppendTuple(big)
	require.NoError(t, err)
	_, err = b.AppendTuple(big)
	require.NoError(t, err)

	_, err = b.AppendTuple(big)
	assert.ErrorIs(t, err, ErrBlockFull)

	// The block is untouched by the failed append.
	assert.Equal(t, uint16(2), b.SlotCount())
}

func TestBlockFullOnSlots(t *testing.T) {
	b := NewBlock()
	tuple := bytes.Repeat([]byte{0x01}, 12)

	// 12-byte tuples plus their 4-byte slots exhaust slots and space together.
	count := 0
	for {
		_, err := b.AppendTuple(tuple)
		if err != nil {
			assert.ErrorIs(t, err, ErrBlockFull)
			break
		}
		count++
	}
	assert.Equal(t, MaxTupleSlots, count)
}

func TestOversizedTupleRejected(t *testing.T) {
	b := NewBlock()
	_, err := b.AppendTuple(bytes.Repeat([]byte{1}, BlockSize))
	assert.ErrorIs(t, err, ErrBlockFull)
}
