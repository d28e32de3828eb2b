package segment

import (
	"encoding/binary"
)

const (
	// BlockHeaderSize is the fixed prefix of every data block.
	BlockHeaderSize = 16

	// SlotSize is one slot directory entry: offset u16 + length u16.
	SlotSize = 4

	// MaxTupleSlots bounds the tuples one block may hold.
	MaxTupleSlots = 255
)

// Block is one fixed-size data block. Tuples are appended after the header
// and addressed through a slot directory that grows backward from the end of
// the block, so slot ids stay stable for the life of the block.
//
// Layout (little-endian):
//
//	slot count u16
//	free ptr   u16   (offset of the next tuple write)
//	reserved   12 bytes
//	tuple data ...
//	...
//	slot directory (4 bytes per slot, slot 0 last)
type Block struct {
	Data []byte
}

// NewBlock returns an empty block.
func NewBlock() *Block {
	return &Block{Data: make([]byte, BlockSize)}
}

// SlotCount returns the number of tuple slots assigned in this block.
func (b *Block) SlotCount() uint16 {
	return binary.LittleEndian.Uint16(b.Data[0:2])
}

func (b *Block) setSlotCount(n uint16) {
	binary.LittleEndian.PutUint16(b.Data[0:2], n)
}

func (b *Block) freePtr() uint16 {
	p := binary.LittleEndian.Uint16(b.Data[2:4])
	if p < BlockHeaderSize {
		// A zeroed block has never been written; data starts after the header.
		return BlockHeaderSize
	}
	return p
}

func (b *Block) setFreePtr(p uint16) {
	binary.LittleEndian.PutUint16(b.Data[2:4], p)
}

// Payload exposes the raw bytes after the block header. The catalog writes
// its serialized form here directly, bypassing the slot machinery.
func (b *Block) Payload() []byte {
	return b.Data[BlockHeaderSize:]
}

// FreeSpace returns the bytes still available for one more tuple plus its
// slot entry.
func (b *Block) FreeSpace() int {
	slotDirStart := BlockSize - int(b.SlotCount())*SlotSize
	free := slotDirStart - int(b.freePtr()) - SlotSize
	if free < 0 {
		return 0
	}
	return free
}

// AppendTuple stores tuple bytes in the next free region and returns the new
// slot id. Tuples are never moved or compacted afterward. Returns
// ErrBlockFull when the block is out of space or slots.
func (b *Block) AppendTuple(tuple []byte) (uint16, error) {
	count := b.SlotCount()
	if count >= MaxTupleSlots {
		return 0, ErrBlockFull
	}
	if len(tuple) > b.FreeSpace() {
		return 0, ErrBlockFull
	}

	offset := b.freePtr()
	copy(b.Data[offset:], tuple)

	slot := count
	slotOffset := BlockSize - int(slot+1)*SlotSize
	binary.LittleEndian.PutUint16(b.Data[slotOffset:slotOffset+2], offset)
	binary.LittleEndian.PutUint16(b.Data[slotOffset+2:slotOffset+4], uint16(len(tuple)))

	b.setFreePtr(offset + uint16(len(tuple)))
	b.setSlotCount(count + 1)
	return slot, nil
}

// ReadTuple returns the bytes stored at slot id, or ok=false when the slot
// was never assigned.
func (b *Block) ReadTuple(slot uint16) ([]byte, bool) {
	if slot >= b.SlotCount() {
		return nil, false
	}
	slotOffset := BlockSize - int(slot+1)*SlotSize
	offset := binary.LittleEndian.Uint16(b.Data[slotOffset : slotOffset+2])
	length := binary.LittleEndian.Uint16(b.Data[slotOffset+2 : slotOffset+4])
	if int(offset)+int(length) > BlockSize {
		return nil, false
	}
	return b.Data[offset : offset+length], true
}
