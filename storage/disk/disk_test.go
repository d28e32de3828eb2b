package disk

import (
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Disk {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestAlignedReadWrite(t *testing.T) {
	d := openTemp(t)

	buf := AllocAligned(Alignment)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, d.WriteAt(Alignment, buf))

	got := AllocAligned(Alignment)
	require.NoError(t, d.ReadAt(Alignment, got))
	assert.Equal(t, buf, got)
}

func TestUnalignedOffset(t *testing.T) {
	d := openTemp(t)
	buf := AllocAligned(Alignment)

	err := d.WriteAt(Alignment+1, buf)
	assert.ErrorIs(t, err, ErrUnalignedOffset)

	err = d.ReadAt(7, buf)
	assert.ErrorIs(t, err, ErrUnalignedOffset)
}

func TestUnalignedLength(t *testing.T) {
	d := openTemp(t)
	buf := AllocAligned(2 * Alignment)

	err := d.WriteAt(0, buf[:Alignment+1])
	assert.ErrorIs(t, err, ErrUnalignedLength)

	err = d.ReadAt(0, buf[:Alignment-1])
	assert.ErrorIs(t, err, ErrUnalignedLength)
}

func TestUnalignedBuffer(t *testing.T) {
	d := openTemp(t)
	buf := AllocAligned(2 * Alignment)

	// Shift the window one byte: length stays aligned, the base address not.
	err := d.WriteAt(0, buf[1:Alignment+1])
	assert.ErrorIs(t, err, ErrUnalignedBuffer)

	err = d.ReadAt(0, buf[1:Alignment+1])
	assert.ErrorIs(t, err, ErrUnalignedBuffer)
}

func TestReadPastEOFZeroFills(t *testing.T) {
	d := openTemp(t)

	buf := AllocAligned(Alignment)
	buf[0] = 0xFF
	require.NoError(t, d.ReadAt(16*Alignment, buf))
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{0, 1, Alignment - 1, Alignment, Alignment + 1, 3 * Alignment} {
		buf := AllocAligned(size)
		assert.GreaterOrEqual(t, len(buf), size)
		assert.Zero(t, len(buf)%Alignment, "size %d rounds to %d", size, len(buf))
		assert.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%Alignment, "base address aligned")
	}
}
