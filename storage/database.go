package storage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alexhholmes/flint/storage/index"
	"github.com/alexhholmes/flint/storage/segment"
	"github.com/alexhholmes/flint/types"
)

var (
	// ErrTableExists rejects a duplicate table name.
	ErrTableExists = errors.New("storage: table already exists")

	// ErrTableNotFound reports an unknown table name.
	ErrTableNotFound = errors.New("storage: table not found")

	// ErrColumnCountMismatch rejects a row whose value count differs from
	// the table schema.
	ErrColumnCountMismatch = errors.New("storage: row column count does not match schema")
)

// Database owns the open file, the in-memory catalog view and the per-table
// indexes. One instance is single-writer: callers must serialize mutating
// operations themselves (see the concurrency notes in DESIGN.md); only the
// catalog's active flag is safe to read concurrently.
type Database struct {
	file          *segment.File
	meta          *MetadataManager
	tables        map[string]*TableMetadata
	indexes       map[string]*index.BTree
	nextSegmentID segment.SegmentID
}

// Open opens or creates the database at path and loads the catalog. A file
// with no valid catalog copy starts empty. cacheBytes sizes the block cache.
func Open(path string, cacheBytes int64) (*Database, error) {
	file, err := segment.Open(path, cacheBytes)
	if err != nil {
		return nil, err
	}

	db := &Database{
		file:          file,
		meta:          NewMetadataManager(file),
		tables:        make(map[string]*TableMetadata),
		indexes:       make(map[string]*index.BTree),
		nextSegmentID: segment.FirstDataSegment,
	}

	tables, err := db.meta.Load()
	if err != nil {
		// A fresh file has no catalog in either reserved segment.
		log.Debug().Err(err).Str("path", path).Msg("no usable catalog, starting empty")
	} else {
		db.tables = tables
	}

	// Re-derive the next segment id from the highest owned segment.
	for _, meta := range db.tables {
		for _, seg := range meta.Segments {
			if seg >= db.nextSegmentID {
				db.nextSegmentID = seg + 1
			}
		}
	}

	for name := range db.tables {
		if err := db.rebuildIndex(name); err != nil {
			file.Close()
			return nil, fmt.Errorf("rebuild index for %s: %w", name, err)
		}
	}

	log.Info().Str("path", path).Int("tables", len(db.tables)).Msg("database open")
	return db, nil
}

// Close flushes and closes the underlying file.
func (db *Database) Close() error {
	return db.file.Close()
}

// CreateTable registers a new table and its first segment. The operation is
// atomic with respect to the in-memory catalog: on any failure the tentative
// insert and the segment id counter are rolled back.
func (db *Database) CreateTable(name string, schema types.Schema) error {
	if _, exists := db.tables[name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	segID := db.nextSegmentID
	meta := &TableMetadata{
		Schema:   schema,
		Segments: []segment.SegmentID{segID},
	}

	// Tentative insert, then re-validate the one-block capacity bound.
	db.tables[name] = meta
	if err := db.meta.CheckFits(db.tables); err != nil {
		delete(db.tables, name)
		return err
	}
	db.nextSegmentID++

	if err := db.file.InitializeSegment(segID); err != nil {
		delete(db.tables, name)
		db.nextSegmentID--
		return fmt.Errorf("initialize segment %d: %w", segID, err)
	}

	if err := db.meta.Save(db.tables); err != nil {
		delete(db.tables, name)
		db.nextSegmentID--
		return err
	}

	if keyed, _ := indexKeyColumn(schema); keyed {
		db.indexes[name] = index.New()
	}

	log.Info().Str("table", name).Uint32("segment", segID).Msg("table created")
	return nil
}

// GetSchema returns the fixed schema of the named table.
func (db *Database) GetSchema(name string) (types.Schema, error) {
	meta, ok := db.tables[name]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return meta.Schema, nil
}

// InsertRow validates the row against the table schema, appends its
// serialized tuple to the table's newest segment and indexes it. When the
// segment is exhausted a fresh segment is appended to the table and the
// insert retried there.
func (db *Database) InsertRow(name string, row types.Row) error {
	meta, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if row.Len() != meta.Schema.Len() {
		return fmt.Errorf("%w: row has %d columns, schema expects %d",
			ErrColumnCountMismatch, row.Len(), meta.Schema.Len())
	}

	tuple, err := types.EncodeRow(row)
	if err != nil {
		return fmt.Errorf("serialize row: %w", err)
	}

	ptr, err := db.appendTuple(name, meta, tuple)
	if err != nil {
		return err
	}

	if tree, ok := db.indexes[name]; ok {
		if key, ok := rowIndexKey(meta.Schema, row); ok {
			if err := tree.Insert(key, ptr); err != nil {
				return fmt.Errorf("index %s: %w", name, err)
			}
		}
	}
	return nil
}

// appendTuple writes the tuple into the newest segment, allocating a block
// or growing the table with a new segment as needed.
func (db *Database) appendTuple(name string, meta *TableMetadata, tuple []byte) (segment.TuplePointer, error) {
	seg := meta.Segments[len(meta.Segments)-1]

	ptr, err := db.appendToSegment(seg, tuple)
	if err == nil {
		return ptr, nil
	}
	if !errors.Is(err, segment.ErrSegmentFull) {
		return segment.TuplePointer{}, err
	}

	// Newest segment exhausted: grow the table and retry once.
	newSeg := db.nextSegmentID
	if err := db.file.InitializeSegment(newSeg); err != nil {
		return segment.TuplePointer{}, fmt.Errorf("grow table %s: %w", name, err)
	}
	meta.Segments = append(meta.Segments, newSeg)
	db.nextSegmentID++
	if err := db.meta.Save(db.tables); err != nil {
		meta.Segments = meta.Segments[:len(meta.Segments)-1]
		db.nextSegmentID--
		return segment.TuplePointer{}, fmt.Errorf("grow table %s: %w", name, err)
	}
	log.Info().Str("table", name).Uint32("segment", newSeg).Msg("table grown with new segment")

	return db.appendToSegment(newSeg, tuple)
}

// appendToSegment appends into the segment's newest block, allocating the
// next free block when the current one is full.
func (db *Database) appendToSegment(seg segment.SegmentID, tuple []byte) (segment.TuplePointer, error) {
	header, err := db.file.ReadSegmentHeader(seg)
	if err != nil {
		return segment.TuplePointer{}, err
	}

	if blk, ok := header.LastUsedBlock(); ok {
		block, err := db.file.ReadBlock(seg, blk)
		if err != nil {
			return segment.TuplePointer{}, err
		}
		slot, err := block.AppendTuple(tuple)
		if err == nil {
			if err := db.file.WriteBlock(seg, blk, block); err != nil {
				return segment.TuplePointer{}, err
			}
			return segment.TuplePointer{Segment: seg, Block: blk, Slot: slot}, nil
		}
		if !errors.Is(err, segment.ErrBlockFull) {
			return segment.TuplePointer{}, err
		}
	}

	blk, err := db.file.AllocateBlock(seg)
	if err != nil {
		return segment.TuplePointer{}, err
	}
	block := segment.NewBlock()
	slot, err := block.AppendTuple(tuple)
	if err != nil {
		// The tuple does not even fit an empty block.
		return segment.TuplePointer{}, fmt.Errorf("tuple of %d bytes: %w", len(tuple), err)
	}
	if err := db.file.WriteBlock(seg, blk, block); err != nil {
		return segment.TuplePointer{}, err
	}
	return segment.TuplePointer{Segment: seg, Block: blk, Slot: slot}, nil
}

// ScanTable returns every row of the table by walking all owned segments,
// every used block and every occupied slot.
func (db *Database) ScanTable(name string) ([]types.Row, error) {
	var rows []types.Row
	err := db.scan(name, func(row types.Row, _ segment.TuplePointer) {
		rows = append(rows, row)
	})
	return rows, err
}

func (db *Database) scan(name string, visit func(types.Row, segment.TuplePointer)) error {
	meta, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	for _, seg := range meta.Segments {
		header, err := db.file.ReadSegmentHeader(seg)
		if err != nil {
			return err
		}
		for b := 0; b < segment.BlocksPerSegment; b++ {
			blk := segment.BlockID(b)
			if header.IsBlockFree(blk) {
				continue
			}
			block, err := db.file.ReadBlock(seg, blk)
			if err != nil {
				return err
			}
			for slot := uint16(0); slot < block.SlotCount(); slot++ {
				tuple, ok := block.ReadTuple(slot)
				if !ok {
					continue
				}
				row, _, err := types.DecodeRow(tuple)
				if err != nil {
					return fmt.Errorf("decode tuple %s: %w",
						segment.TuplePointer{Segment: seg, Block: blk, Slot: slot}, err)
				}
				visit(row, segment.TuplePointer{Segment: seg, Block: blk, Slot: slot})
			}
		}
	}
	return nil
}

// Lookup fetches a single row through the table's key index. ok is false
// when the key is absent or the table has no indexable key column.
func (db *Database) Lookup(name string, key int64) (types.Row, bool, error) {
	if _, exists := db.tables[name]; !exists {
		return types.Row{}, false, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	tree, ok := db.indexes[name]
	if !ok {
		return types.Row{}, false, nil
	}

	ptr, found, err := tree.Search(uint64(key))
	if err != nil || !found {
		return types.Row{}, false, err
	}

	block, err := db.file.ReadBlock(ptr.Segment, ptr.Block)
	if err != nil {
		return types.Row{}, false, err
	}
	tuple, ok := block.ReadTuple(ptr.Slot)
	if !ok {
		return types.Row{}, false, fmt.Errorf("index points at empty slot %s", ptr)
	}
	row, _, err := types.DecodeRow(tuple)
	if err != nil {
		return types.Row{}, false, fmt.Errorf("decode tuple %s: %w", ptr, err)
	}
	return row, true, nil
}

// rebuildIndex scans the table and reindexes it. Indexes live in memory
// only; the on-disk format carries just the tuples.
func (db *Database) rebuildIndex(name string) error {
	meta := db.tables[name]
	if keyed, _ := indexKeyColumn(meta.Schema); !keyed {
		return nil
	}

	tree := index.New()
	err := db.scan(name, func(row types.Row, ptr segment.TuplePointer) {
		if key, ok := rowIndexKey(meta.Schema, row); ok {
			if err := tree.Insert(key, ptr); err != nil {
				log.Warn().Err(err).Str("table", name).Msg("index rebuild skipped a tuple")
			}
		}
	})
	if err != nil {
		return err
	}
	db.indexes[name] = tree
	return nil
}

// indexKeyColumn reports whether the schema has an indexable key: its first
// column, when that column is an Int.
func indexKeyColumn(schema types.Schema) (bool, int) {
	if schema.Len() > 0 && schema.Columns[0].Type == types.TypeInt {
		return true, 0
	}
	return false, 0
}

func rowIndexKey(schema types.Schema, row types.Row) (uint64, bool) {
	keyed, col := indexKeyColumn(schema)
	if !keyed {
		return 0, false
	}
	v, ok := row.Get(col)
	if !ok {
		return 0, false
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, false
	}
	return uint64(n), true
}
