// Package index implements the B+Tree key index: fixed 4096-byte pages of
// sorted 15-byte entries, and the tree operations built on them.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/alexhholmes/flint/storage/segment"
)

const (
	// PageSize is the fixed index page size.
	PageSize = 4096

	// HeaderSize is the fixed page header prefix.
	HeaderSize = 64

	// EntrySize is one index entry: key u64 + segment u32 + block u8 + slot u16.
	EntrySize = 15
)

const pageMagic uint32 = 0x494E4458 // "INDX"

var (
	// ErrPageFull signals the page is at MaxEntries; the tree reacts by
	// splitting.
	ErrPageFull = errors.New("index: page full")

	// ErrPosOutOfRange is a programmer error: an insert or read position past
	// the current entry count.
	ErrPosOutOfRange = errors.New("index: position out of range")

	// ErrBadMagic means the page bytes are not an index page. This is
	// corruption, a hard read failure.
	ErrBadMagic = errors.New("index: bad page magic")
)

// MaxEntries is how many entries fit after the header.
func MaxEntries() int {
	return (PageSize - HeaderSize) / EntrySize
}

// Entry is one key plus the tuple pointer it maps to. Internal pages reuse
// the pointer's segment field as a child page reference.
type Entry struct {
	Key uint64
	Ptr segment.TuplePointer
}

// Header is the decoded fixed prefix of a page.
//
// Layout (little-endian):
//
//	magic    u32
//	is leaf  u8
//	num keys u16
//	reserved 57 bytes
type Header struct {
	Leaf    bool
	NumKeys uint16
}

// Page is one 4096-byte B+Tree node, leaf or internal. Entries are kept in
// ascending key order with no duplicates.
type Page struct {
	Data []byte
}

// NewPage returns an empty page of the given kind.
func NewPage(leaf bool) *Page {
	p := &Page{Data: make([]byte, PageSize)}
	p.writeHeader(Header{Leaf: leaf})
	return p
}

// LoadPage wraps existing page bytes, validating size and magic.
func LoadPage(data []byte) (*Page, error) {
	if len(data) != PageSize {
		return nil, fmt.Errorf("index page size %d, want %d", len(data), PageSize)
	}
	p := &Page{Data: data}
	if _, err := p.Header(); err != nil {
		return nil, err
	}
	return p, nil
}

// Header decodes and validates the page header. A wrong magic is corruption.
func (p *Page) Header() (Header, error) {
	if magic := binary.LittleEndian.Uint32(p.Data[0:4]); magic != pageMagic {
		return Header{}, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}
	return Header{
		Leaf:    p.Data[4] != 0,
		NumKeys: binary.LittleEndian.Uint16(p.Data[5:7]),
	}, nil
}

func (p *Page) writeHeader(h Header) {
	binary.LittleEndian.PutUint32(p.Data[0:4], pageMagic)
	if h.Leaf {
		p.Data[4] = 1
	} else {
		p.Data[4] = 0
	}
	binary.LittleEndian.PutUint16(p.Data[5:7], h.NumKeys)
}

func entryOffset(pos int) int {
	return HeaderSize + pos*EntrySize
}

// Entry returns the entry at pos.
func (p *Page) Entry(pos int) (Entry, error) {
	h, err := p.Header()
	if err != nil {
		return Entry{}, err
	}
	if pos < 0 || pos >= int(h.NumKeys) {
		return Entry{}, fmt.Errorf("%w: entry %d of %d", ErrPosOutOfRange, pos, h.NumKeys)
	}
	return p.readEntry(pos), nil
}

func (p *Page) readEntry(pos int) Entry {
	off := entryOffset(pos)
	return Entry{
		Key: binary.LittleEndian.Uint64(p.Data[off : off+8]),
		Ptr: segment.TuplePointer{
			Segment: binary.LittleEndian.Uint32(p.Data[off+8 : off+12]),
			Block:   p.Data[off+12],
			Slot:    binary.LittleEndian.Uint16(p.Data[off+13 : off+15]),
		},
	}
}

func (p *Page) putEntry(pos int, e Entry) {
	off := entryOffset(pos)
	binary.LittleEndian.PutUint64(p.Data[off:off+8], e.Key)
	binary.LittleEndian.PutUint32(p.Data[off+8:off+12], e.Ptr.Segment)
	p.Data[off+12] = e.Ptr.Block
	binary.LittleEndian.PutUint16(p.Data[off+13:off+15], e.Ptr.Slot)
}

// BinarySearch locates key among the sorted entries. It returns (true, pos)
// on an exact match, or (false, pos) with the insertion point that keeps the
// page ordered. Classic lower-bound search.
func (p *Page) BinarySearch(key uint64) (bool, int, error) {
	h, err := p.Header()
	if err != nil {
		return false, 0, err
	}

	left, right := 0, int(h.NumKeys)
	for left < right {
		mid := (left + right) / 2
		midKey := binary.LittleEndian.Uint64(p.Data[entryOffset(mid) : entryOffset(mid)+8])
		switch {
		case midKey == key:
			return true, mid, nil
		case midKey < key:
			left = mid + 1
		default:
			right = mid
		}
	}
	return false, left, nil
}

// InsertAt places e at pos, shifting every entry at or after pos one slot to
// the right. ErrPageFull and ErrPosOutOfRange are distinct failures: the
// first drives splits, the second is a bug in the caller.
func (p *Page) InsertAt(pos int, e Entry) error {
	h, err := p.Header()
	if err != nil {
		return err
	}
	count := int(h.NumKeys)
	if count >= MaxEntries() {
		return ErrPageFull
	}
	if pos < 0 || pos > count {
		return fmt.Errorf("%w: insert at %d with %d entries", ErrPosOutOfRange, pos, count)
	}

	copy(p.Data[entryOffset(pos+1):entryOffset(count+1)], p.Data[entryOffset(pos):entryOffset(count)])
	p.putEntry(pos, e)

	h.NumKeys++
	p.writeHeader(h)
	return nil
}

// SetEntry overwrites the entry at pos in place, used for last-write-wins
// updates of an existing key.
func (p *Page) SetEntry(pos int, e Entry) error {
	h, err := p.Header()
	if err != nil {
		return err
	}
	if pos < 0 || pos >= int(h.NumKeys) {
		return fmt.Errorf("%w: set entry %d of %d", ErrPosOutOfRange, pos, h.NumKeys)
	}
	p.putEntry(pos, e)
	return nil
}

// Entries returns every entry in stored order.
func (p *Page) Entries() ([]Entry, error) {
	h, err := p.Header()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, int(h.NumKeys))
	for i := range entries {
		entries[i] = p.readEntry(i)
	}
	return entries, nil
}

// SetEntries rewrites the page wholesale from a sorted entry list, used
// after a split to repack both halves.
func (p *Page) SetEntries(leaf bool, entries []Entry) error {
	if len(entries) > MaxEntries() {
		return fmt.Errorf("%w: %d entries", ErrPageFull, len(entries))
	}
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.writeHeader(Header{Leaf: leaf, NumKeys: uint16(len(entries))})
	for i, e := range entries {
		p.putEntry(i, e)
	}
	return nil
}
