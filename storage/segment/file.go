package segment

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/alexhholmes/flint/storage/disk"
)

// File maps (segment id, block id) pairs onto one Direct I/O database file.
// Recently read data blocks are cached; writes go straight to disk and
// refresh the cache.
type File struct {
	disk  *disk.Disk
	cache *ristretto.Cache[uint64, []byte]
}

// Open opens or creates the database file at path. cacheBytes bounds the
// total size of cached data blocks.
func Open(path string, cacheBytes int64) (*File, error) {
	d, err := disk.Open(path)
	if err != nil {
		return nil, err
	}

	if cacheBytes < 64*BlockSize {
		cacheBytes = 64 * BlockSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: cacheBytes / BlockSize * 10,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("block cache: %w", err)
	}

	return &File{disk: d, cache: cache}, nil
}

// Buffered reports whether the underlying file fell back to buffered I/O.
func (f *File) Buffered() bool {
	return f.disk.Buffered()
}

func segmentOffset(seg SegmentID) int64 {
	return int64(seg) * SegmentSize
}

func blockOffset(seg SegmentID, blk BlockID) int64 {
	return segmentOffset(seg) + (1+int64(blk))*BlockSize
}

func cacheKey(seg SegmentID, blk BlockID) uint64 {
	return uint64(seg)<<8 | uint64(blk)
}

// ReadBlock returns a private copy of the block at (seg, blk). Never-written
// blocks come back zeroed.
func (f *File) ReadBlock(seg SegmentID, blk BlockID) (*Block, error) {
	if cached, ok := f.cache.Get(cacheKey(seg, blk)); ok {
		data := make([]byte, BlockSize)
		copy(data, cached)
		return &Block{Data: data}, nil
	}

	buf := disk.AllocAligned(BlockSize)
	if err := f.disk.ReadAt(blockOffset(seg, blk), buf); err != nil {
		return nil, fmt.Errorf("read block (%d,%d): %w", seg, blk, err)
	}

	cached := make([]byte, BlockSize)
	copy(cached, buf)
	f.cache.Set(cacheKey(seg, blk), cached, BlockSize)

	return &Block{Data: buf}, nil
}

// WriteBlock persists the block at (seg, blk) and refreshes the cache.
func (f *File) WriteBlock(seg SegmentID, blk BlockID, b *Block) error {
	buf := disk.AllocAligned(BlockSize)
	copy(buf, b.Data)
	if err := f.disk.WriteAt(blockOffset(seg, blk), buf); err != nil {
		return fmt.Errorf("write block (%d,%d): %w", seg, blk, err)
	}

	cached := make([]byte, BlockSize)
	copy(cached, b.Data)
	f.cache.Set(cacheKey(seg, blk), cached, BlockSize)
	return nil
}

// ReadSegmentHeader loads and validates the header block of seg.
func (f *File) ReadSegmentHeader(seg SegmentID) (*Header, error) {
	buf := disk.AllocAligned(BlockSize)
	if err := f.disk.ReadAt(segmentOffset(seg), buf); err != nil {
		return nil, fmt.Errorf("read segment %d header: %w", seg, err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", seg, err)
	}
	return h, nil
}

func (f *File) writeSegmentHeader(h *Header) error {
	buf := disk.AllocAligned(BlockSize)
	h.encode(buf)
	if err := f.disk.WriteAt(segmentOffset(h.SegmentID), buf); err != nil {
		return fmt.Errorf("write segment %d header: %w", h.SegmentID, err)
	}
	return nil
}

// InitializeSegment writes a fresh header for seg with every block free.
func (f *File) InitializeSegment(seg SegmentID) error {
	return f.writeSegmentHeader(NewHeader(seg))
}

// AllocateBlock marks the next free block of seg used and returns its id.
// Returns ErrSegmentFull (wrapped) when the segment is exhausted, which is
// the caller's cue to grow the table with a new segment.
func (f *File) AllocateBlock(seg SegmentID) (BlockID, error) {
	h, err := f.ReadSegmentHeader(seg)
	if err != nil {
		return 0, err
	}
	blk, err := h.AllocateBlock()
	if err != nil {
		return 0, fmt.Errorf("segment %d: %w", seg, err)
	}
	if err := f.writeSegmentHeader(h); err != nil {
		return 0, err
	}
	return blk, nil
}

// Sync flushes the database file.
func (f *File) Sync() error {
	return f.disk.Sync()
}

// Close releases the cache and the underlying file.
func (f *File) Close() error {
	f.cache.Close()
	return f.disk.Close()
}
