package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/alexhholmes/flint/storage/segment"
)

// MetadataManager persists the catalog with double buffering across the two
// reserved segments. Saves always write the inactive copy and flip only
// after the write is durable, so at every instant at least one reserved
// segment holds a complete, checksum-valid catalog. The active flag is the
// only lock-free state in the engine: a single atomic integer.
type MetadataManager struct {
	file    *segment.File
	active  atomic.Uint32
	version uint32 // version of the last catalog loaded or saved
}

// NewMetadataManager starts with segment 0 presumed active; Load corrects
// that from what is actually on disk.
func NewMetadataManager(file *segment.File) *MetadataManager {
	return &MetadataManager{file: file}
}

// Active returns the reserved segment currently holding the canonical
// catalog.
func (m *MetadataManager) Active() segment.SegmentID {
	return m.active.Load()
}

func (m *MetadataManager) inactive() segment.SegmentID {
	return 1 - m.active.Load()
}

func (m *MetadataManager) loadFrom(seg segment.SegmentID) (*CatalogHeader, map[string]*TableMetadata, error) {
	block, err := m.file.ReadBlock(seg, 0)
	if err != nil {
		return nil, nil, err
	}
	return decodeCatalog(block.Payload())
}

// Load reads the catalog. The active copy is tried first; on corruption or
// decode failure it falls back to the other reserved segment and, when that
// copy validates, flips activity to it (self-healing read). When both copies
// validate, the higher version wins, honoring a flip completed just before
// shutdown.
func (m *MetadataManager) Load() (map[string]*TableMetadata, error) {
	activeHdr, activeTables, activeErr := m.loadFrom(m.Active())
	otherHdr, otherTables, otherErr := m.loadFrom(m.inactive())

	switch {
	case activeErr == nil && otherErr == nil:
		if otherHdr.Version > activeHdr.Version {
			m.active.Store(m.inactive())
			m.version = otherHdr.Version
			return otherTables, nil
		}
		m.version = activeHdr.Version
		return activeTables, nil

	case activeErr == nil:
		m.version = activeHdr.Version
		return activeTables, nil

	case otherErr == nil:
		log.Warn().Err(activeErr).
			Uint32("active", m.Active()).
			Msg("active catalog copy unusable, recovering from the other segment")
		m.active.Store(m.inactive())
		m.version = otherHdr.Version
		return otherTables, nil

	default:
		return nil, fmt.Errorf("load catalog: %w", activeErr)
	}
}

// CheckFits verifies the given table set still serializes into one block
// without writing anything. Returns ErrCatalogTooLarge (wrapped) otherwise.
func (m *MetadataManager) CheckFits(tables map[string]*TableMetadata) error {
	_, err := encodeCatalog(tables, m.version+1)
	return err
}

// Save serializes every table into one block and writes it to the inactive
// reserved segment; the active copy is never touched. Activity flips only
// after the write is synced, so a crash mid-save leaves the previous active
// copy intact and still the logical state.
func (m *MetadataManager) Save(tables map[string]*TableMetadata) error {
	version := m.version + 1
	if version == 0 {
		version = catalogVersionFirst
	}
	payload, err := encodeCatalog(tables, version)
	if err != nil {
		return err
	}

	target := m.inactive()
	block := segment.NewBlock()
	copy(block.Payload(), payload)
	if err := m.file.WriteBlock(target, 0, block); err != nil {
		return fmt.Errorf("save catalog to segment %d: %w", target, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	m.active.Store(target)
	m.version = version
	return nil
}
