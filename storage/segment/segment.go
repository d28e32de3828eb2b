// Package segment maps the database file into fixed-size segments, each a
// header block plus a bounded run of data blocks. Tables own whole segments;
// segments 0 and 1 are reserved for the double-buffered catalog.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BlockSize is the fixed on-disk block size. It matches the Direct I/O
	// alignment unit so every block write is a single aligned I/O.
	BlockSize = 4096

	// BlocksPerSegment bounds the data blocks per segment. Block ids are a
	// single byte on disk.
	BlocksPerSegment = 64

	// SegmentSize covers the header block plus the data blocks.
	SegmentSize = (1 + BlocksPerSegment) * BlockSize
)

// Reserved catalog segments, never owned by a table.
const (
	MetaSegmentA SegmentID = 0
	MetaSegmentB SegmentID = 1
)

// FirstDataSegment is the lowest segment id a table may own.
const FirstDataSegment SegmentID = 2

type (
	SegmentID = uint32
	BlockID   = uint8
)

var (
	// ErrSegmentFull reports that a segment has no free blocks left. It is
	// distinct from I/O failure so callers know to grow the table instead.
	ErrSegmentFull = errors.New("segment: no free blocks")

	// ErrBlockFull reports that a block cannot take another tuple.
	ErrBlockFull = errors.New("segment: block full")
)

// TuplePointer uniquely and stably locates one stored row.
type TuplePointer struct {
	Segment SegmentID
	Block   BlockID
	Slot    uint16
}

func (p TuplePointer) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.Segment, p.Block, p.Slot)
}

const segmentMagic uint32 = 0x5345474D // "SEGM"

// Header is the per-segment bookkeeping block: which data blocks are in use.
//
// Layout (start of the segment's header block, little-endian):
//
//	magic      u32
//	segment id u32
//	used bits  u64   (bit b set = block b allocated)
type Header struct {
	SegmentID SegmentID
	used      uint64
}

// NewHeader returns the header of a freshly initialized segment.
func NewHeader(id SegmentID) *Header {
	return &Header{SegmentID: id}
}

// IsBlockFree reports whether block id is unallocated.
func (h *Header) IsBlockFree(id BlockID) bool {
	if int(id) >= BlocksPerSegment {
		return false
	}
	return h.used&(1<<id) == 0
}

// AllocateBlock marks the lowest free block used and returns its id, or
// ErrSegmentFull when every block is taken.
func (h *Header) AllocateBlock() (BlockID, error) {
	for b := 0; b < BlocksPerSegment; b++ {
		if h.used&(1<<b) == 0 {
			h.used |= 1 << b
			return BlockID(b), nil
		}
	}
	return 0, ErrSegmentFull
}

// LastUsedBlock returns the highest allocated block id, the append target
// for new tuples. ok is false when the segment has no blocks yet.
func (h *Header) LastUsedBlock() (BlockID, bool) {
	for b := BlocksPerSegment - 1; b >= 0; b-- {
		if h.used&(1<<b) != 0 {
			return BlockID(b), true
		}
	}
	return 0, false
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(buf[4:8], h.SegmentID)
	binary.LittleEndian.PutUint64(buf[8:16], h.used)
}

func decodeHeader(buf []byte) (*Header, error) {
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != segmentMagic {
		return nil, fmt.Errorf("segment header magic %#x: not an initialized segment", magic)
	}
	return &Header{
		SegmentID: binary.LittleEndian.Uint32(buf[4:8]),
		used:      binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}
