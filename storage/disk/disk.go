// Package disk provides the alignment-constrained Direct I/O layer under the
// segment store. Offsets, buffer lengths and buffer base addresses handed to
// it must all be multiples of Alignment so the kernel can bypass the page
// cache.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/ncw/directio"
	"github.com/rs/zerolog/log"
)

// Alignment is the unit Direct I/O requires for offsets, lengths and buffer
// base addresses (4KB on every platform we run on).
const Alignment = 4096

// Alignment violations are caller errors, distinct per operand and never
// retried.
var (
	ErrUnalignedOffset = errors.New("disk: offset not aligned")
	ErrUnalignedLength = errors.New("disk: buffer length not aligned")
	ErrUnalignedBuffer = errors.New("disk: buffer address not aligned")
)

// Disk owns one open database file and performs aligned positional I/O on it.
type Disk struct {
	file     *os.File
	buffered bool // true when the cache-bypass open failed and we fell back
}

// Open creates or opens the file at path with OS page-cache buffering
// disabled (O_DIRECT on Linux, F_NOCACHE on Darwin). If the platform or the
// filesystem refuses, it falls back to buffered I/O and logs a warning; the
// fallback is observable via Buffered.
func Open(path string) (*Disk, error) {
	file, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err == nil {
		return &Disk{file: file}, nil
	}

	log.Warn().Err(err).Str("path", path).
		Msg("direct I/O unavailable, falling back to buffered I/O")

	file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Disk{file: file, buffered: true}, nil
}

// Buffered reports whether the cache-bypass setup failed at Open.
func (d *Disk) Buffered() bool {
	return d.buffered
}

// ReadAt reads len(buf) bytes at offset. A read past the current end of file
// returns the written prefix with the remainder zero-filled, so callers can
// treat never-written blocks as empty.
func (d *Disk) ReadAt(offset int64, buf []byte) error {
	if err := checkAligned(offset, buf); err != nil {
		return err
	}
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read at %d: %w", offset, err)
	}
	// A short read means the tail was never written; it decodes as zeroes.
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WriteAt writes buf at offset.
func (d *Disk) WriteAt(offset int64, buf []byte) error {
	if err := checkAligned(offset, buf); err != nil {
		return err
	}
	if _, err := d.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("write at %d: %w", offset, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (d *Disk) Sync() error {
	return d.file.Sync()
}

// Close syncs and closes the underlying file.
func (d *Disk) Close() error {
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return fmt.Errorf("sync before close: %w", err)
	}
	return d.file.Close()
}

func checkAligned(offset int64, buf []byte) error {
	if offset%Alignment != 0 {
		return fmt.Errorf("%w: offset %d", ErrUnalignedOffset, offset)
	}
	if len(buf)%Alignment != 0 {
		return fmt.Errorf("%w: length %d", ErrUnalignedLength, len(buf))
	}
	if len(buf) > 0 && uintptr(unsafe.Pointer(&buf[0]))%Alignment != 0 {
		return ErrUnalignedBuffer
	}
	return nil
}

// AllocAligned rounds size up to the alignment unit and returns a buffer
// whose base address is also aligned. Direct I/O needs aligned memory as
// well as aligned file offsets.
func AllocAligned(size int) []byte {
	aligned := (size + Alignment - 1) / Alignment * Alignment
	if aligned == 0 {
		aligned = Alignment
	}
	return directio.AlignedBlock(aligned)
}
