// Package storage composes the disk, segment and index layers into the
// database: a crash-resilient catalog plus table create/insert/scan.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/alexhholmes/flint/storage/segment"
	"github.com/alexhholmes/flint/types"
)

var (
	// ErrCatalogTooLarge means the serialized catalog would not fit in one
	// block. Capacity exhaustion, not corruption.
	ErrCatalogTooLarge = errors.New("storage: catalog too large for one block")

	// ErrCorruptCatalog means a catalog copy failed checksum or magic
	// validation and cannot be trusted.
	ErrCorruptCatalog = errors.New("storage: corrupt catalog")
)

// catalogVersionFirst is the version written by the very first save.
const catalogVersionFirst = 1

// TableOffset records where one table's metadata blob starts, relative to
// the end of the catalog header.
type TableOffset struct {
	Name   string
	Offset uint32
}

// CatalogHeader prefixes the catalog block.
//
// Layout (little-endian):
//
//	version     u32
//	num tables  u32
//	per table:  name length u16 + name bytes + offset u32
//	checksum    u64   (xxhash64 of everything after the header)
type CatalogHeader struct {
	Version      uint32
	NumTables    uint32
	TableOffsets []TableOffset
	Checksum     uint64
}

// TableMetadata is the persisted state of one table: its fixed schema and
// the segments it owns, in the order they were added.
type TableMetadata struct {
	Schema   types.Schema
	Segments []segment.SegmentID
}

func (m *TableMetadata) clone() *TableMetadata {
	segs := make([]segment.SegmentID, len(m.Segments))
	copy(segs, m.Segments)
	return &TableMetadata{Schema: m.Schema, Segments: segs}
}

func encodeTableMetadata(m *TableMetadata) ([]byte, error) {
	buf, err := types.EncodeSchema(m.Schema)
	if err != nil {
		return nil, err
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Segments)))
	for _, seg := range m.Segments {
		buf = binary.LittleEndian.AppendUint32(buf, seg)
	}
	return buf, nil
}

func decodeTableMetadata(buf []byte) (*TableMetadata, int, error) {
	schema, off, err := types.DecodeSchema(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < off+2 {
		return nil, 0, fmt.Errorf("table metadata truncated: missing segment count")
	}
	count := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	segs := make([]segment.SegmentID, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < off+4 {
			return nil, 0, fmt.Errorf("table metadata truncated: segment %d", i)
		}
		segs = append(segs, binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return &TableMetadata{Schema: schema, Segments: segs}, off, nil
}

func catalogHeaderLen(h *CatalogHeader) int {
	n := 4 + 4 // version + num tables
	for _, t := range h.TableOffsets {
		n += 2 + len(t.Name) + 4
	}
	return n + 8 // checksum
}

// encodeCatalog serializes every table into one block payload: header, then
// the concatenated metadata blobs at the recorded offsets, zero padding to
// the end. Table order is sorted by name so offsets are deterministic and
// monotonically increasing. Returns ErrCatalogTooLarge when header+blobs
// exceed the payload.
func encodeCatalog(tables map[string]*TableMetadata, version uint32) ([]byte, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	header := &CatalogHeader{
		Version:   version,
		NumTables: uint32(len(tables)),
	}
	var blob []byte
	for _, name := range names {
		header.TableOffsets = append(header.TableOffsets, TableOffset{
			Name:   name,
			Offset: uint32(len(blob)),
		})
		encoded, err := encodeTableMetadata(tables[name])
		if err != nil {
			return nil, fmt.Errorf("encode table %s: %w", name, err)
		}
		blob = append(blob, encoded...)
	}

	capacity := segment.BlockSize - segment.BlockHeaderSize
	headerLen := catalogHeaderLen(header)
	if headerLen+len(blob) > capacity {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrCatalogTooLarge, headerLen+len(blob), capacity)
	}

	payload := make([]byte, capacity)
	copy(payload[headerLen:], blob)
	header.Checksum = xxhash.Sum64(payload[headerLen:])

	off := 0
	binary.LittleEndian.PutUint32(payload[off:], header.Version)
	off += 4
	binary.LittleEndian.PutUint32(payload[off:], header.NumTables)
	off += 4
	for _, t := range header.TableOffsets {
		binary.LittleEndian.PutUint16(payload[off:], uint16(len(t.Name)))
		off += 2
		copy(payload[off:], t.Name)
		off += len(t.Name)
		binary.LittleEndian.PutUint32(payload[off:], t.Offset)
		off += 4
	}
	binary.LittleEndian.PutUint64(payload[off:], header.Checksum)

	return payload, nil
}

// decodeCatalog parses and validates one catalog payload. A checksum
// mismatch is corruption, not a decode failure; both surface as
// ErrCorruptCatalog so the caller falls back to the other copy.
func decodeCatalog(payload []byte) (*CatalogHeader, map[string]*TableMetadata, error) {
	header, headerLen, err := decodeCatalogHeader(payload)
	if err != nil {
		return nil, nil, err
	}

	if sum := xxhash.Sum64(payload[headerLen:]); sum != header.Checksum {
		return nil, nil, fmt.Errorf("%w: checksum %#x, stored %#x", ErrCorruptCatalog, sum, header.Checksum)
	}

	tables := make(map[string]*TableMetadata, header.NumTables)
	blob := payload[headerLen:]
	prev := -1
	for _, t := range header.TableOffsets {
		if int(t.Offset) <= prev {
			return nil, nil, fmt.Errorf("%w: offsets not increasing at table %s", ErrCorruptCatalog, t.Name)
		}
		prev = int(t.Offset)
		if int(t.Offset) > len(blob) {
			return nil, nil, fmt.Errorf("%w: offset %d out of range", ErrCorruptCatalog, t.Offset)
		}
		meta, _, err := decodeTableMetadata(blob[t.Offset:])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: table %s: %v", ErrCorruptCatalog, t.Name, err)
		}
		tables[t.Name] = meta
	}
	return header, tables, nil
}

func decodeCatalogHeader(payload []byte) (*CatalogHeader, int, error) {
	if len(payload) < 16 {
		return nil, 0, fmt.Errorf("%w: payload too short", ErrCorruptCatalog)
	}
	header := &CatalogHeader{
		Version:   binary.LittleEndian.Uint32(payload[0:4]),
		NumTables: binary.LittleEndian.Uint32(payload[4:8]),
	}
	if header.Version == 0 {
		return nil, 0, fmt.Errorf("%w: version 0", ErrCorruptCatalog)
	}
	off := 8
	for i := uint32(0); i < header.NumTables; i++ {
		if len(payload) < off+2 {
			return nil, 0, fmt.Errorf("%w: table offset %d truncated", ErrCorruptCatalog, i)
		}
		n := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if n == 0 || len(payload) < off+n+4 {
			return nil, 0, fmt.Errorf("%w: table name %d truncated", ErrCorruptCatalog, i)
		}
		name := string(payload[off : off+n])
		off += n
		header.TableOffsets = append(header.TableOffsets, TableOffset{
			Name:   name,
			Offset: binary.LittleEndian.Uint32(payload[off:]),
		})
		off += 4
	}
	if len(payload) < off+8 {
		return nil, 0, fmt.Errorf("%w: checksum truncated", ErrCorruptCatalog)
	}
	header.Checksum = binary.LittleEndian.Uint64(payload[off:])
	return header, off + 8, nil
}
