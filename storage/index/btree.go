package index

import (
	"errors"
	"fmt"

	"github.com/alexhholmes/flint/storage/segment"
)

// BTree is a key -> TuplePointer index over 4096-byte pages. Leaf pages hold
// tuple pointers; internal pages hold routing entries whose key is the
// smallest key reachable under the child they reference. Routing picks the
// last entry with key <= search key, clamping to the first child, so every
// key has exactly one home leaf.
type BTree struct {
	pages  map[uint32]*Page
	root   uint32
	nextID uint32
}

// Item is one (key, pointer) pair produced by a scan.
type Item struct {
	Key uint64
	Ptr segment.TuplePointer
}

// New returns an empty tree.
func New() *BTree {
	return &BTree{pages: make(map[uint32]*Page), nextID: 1}
}

func (t *BTree) allocPage(p *Page) uint32 {
	id := t.nextID
	t.nextID++
	t.pages[id] = p
	return id
}

func (t *BTree) page(id uint32) (*Page, error) {
	p, ok := t.pages[id]
	if !ok {
		return nil, fmt.Errorf("index: missing page %d", id)
	}
	return p, nil
}

// childRef builds an internal routing entry pointing at page id.
func childRef(key uint64, id uint32) Entry {
	return Entry{Key: key, Ptr: segment.TuplePointer{Segment: id}}
}

// splitResult reports an insert that overflowed a page: the promoted key is
// the first key of the new right sibling.
type splitResult struct {
	promoted uint64
	rightID  uint32
}

// Insert adds or overwrites key. An existing key is updated in place
// (last-write-wins); a full leaf splits and splits propagate up, growing a
// new root when the old root itself splits.
func (t *BTree) Insert(key uint64, ptr segment.TuplePointer) error {
	if t.root == 0 {
		root := NewPage(true)
		if err := root.InsertAt(0, Entry{Key: key, Ptr: ptr}); err != nil {
			return err
		}
		t.root = t.allocPage(root)
		return nil
	}

	split, err := t.insert(t.root, key, ptr)
	if err != nil {
		return err
	}
	if split == nil {
		return nil
	}

	// Root split: the new root routes between the old root and its sibling.
	left, err := t.page(t.root)
	if err != nil {
		return err
	}
	leftFirst, err := left.Entry(0)
	if err != nil {
		return err
	}
	newRoot := NewPage(false)
	err = newRoot.SetEntries(false, []Entry{
		childRef(leftFirst.Key, t.root),
		childRef(split.promoted, split.rightID),
	})
	if err != nil {
		return err
	}
	t.root = t.allocPage(newRoot)
	return nil
}

func (t *BTree) insert(pageID uint32, key uint64, ptr segment.TuplePointer) (*splitResult, error) {
	p, err := t.page(pageID)
	if err != nil {
		return nil, err
	}
	h, err := p.Header()
	if err != nil {
		return nil, err
	}

	if h.Leaf {
		found, pos, err := p.BinarySearch(key)
		if err != nil {
			return nil, err
		}
		e := Entry{Key: key, Ptr: ptr}
		if found {
			return nil, p.SetEntry(pos, e)
		}
		switch err := p.InsertAt(pos, e); {
		case err == nil:
			return nil, nil
		case errors.Is(err, ErrPageFull):
			return t.splitPage(p, pos, e)
		default:
			return nil, err
		}
	}

	childPos, err := t.routePos(p, key)
	if err != nil {
		return nil, err
	}
	childEntry, err := p.Entry(childPos)
	if err != nil {
		return nil, err
	}

	split, err := t.insert(childEntry.Ptr.Segment, key, ptr)
	if err != nil || split == nil {
		return nil, err
	}

	// The child split; route to its new sibling from here on.
	sep := childRef(split.promoted, split.rightID)
	_, pos, err := p.BinarySearch(split.promoted)
	if err != nil {
		return nil, err
	}
	switch err := p.InsertAt(pos, sep); {
	case err == nil:
		return nil, nil
	case errors.Is(err, ErrPageFull):
		return t.splitPage(p, pos, sep)
	default:
		return nil, err
	}
}

// splitPage cuts a full page at the midpoint of its entries plus the one
// being inserted. The lower half stays put, the upper half moves to a new
// sibling, and the sibling's first key is promoted.
func (t *BTree) splitPage(p *Page, insertPos int, e Entry) (*splitResult, error) {
	entries, err := p.Entries()
	if err != nil {
		return nil, err
	}
	h, err := p.Header()
	if err != nil {
		return nil, err
	}

	entries = append(entries, Entry{})
	copy(entries[insertPos+1:], entries[insertPos:])
	entries[insertPos] = e

	mid := len(entries) / 2
	lower, upper := entries[:mid], entries[mid:]

	if err := p.SetEntries(h.Leaf, lower); err != nil {
		return nil, err
	}
	right := NewPage(h.Leaf)
	if err := right.SetEntries(h.Leaf, upper); err != nil {
		return nil, err
	}

	return &splitResult{promoted: upper[0].Key, rightID: t.allocPage(right)}, nil
}

// routePos returns the index of the internal entry whose child covers key:
// the last entry with key <= the search key, or the first entry for keys
// below the whole page.
func (t *BTree) routePos(p *Page, key uint64) (int, error) {
	found, pos, err := p.BinarySearch(key)
	if err != nil {
		return 0, err
	}
	if found {
		return pos, nil
	}
	if pos == 0 {
		return 0, nil
	}
	return pos - 1, nil
}

// Search returns the tuple pointer stored for key, descending routing keys
// to the home leaf. ok is false when the key is absent.
func (t *BTree) Search(key uint64) (segment.TuplePointer, bool, error) {
	if t.root == 0 {
		return segment.TuplePointer{}, false, nil
	}
	pageID := t.root
	for {
		p, err := t.page(pageID)
		if err != nil {
			return segment.TuplePointer{}, false, err
		}
		h, err := p.Header()
		if err != nil {
			return segment.TuplePointer{}, false, err
		}
		if h.Leaf {
			found, pos, err := p.BinarySearch(key)
			if err != nil || !found {
				return segment.TuplePointer{}, false, err
			}
			e, err := p.Entry(pos)
			if err != nil {
				return segment.TuplePointer{}, false, err
			}
			return e.Ptr, true, nil
		}
		pos, err := t.routePos(p, key)
		if err != nil {
			return segment.TuplePointer{}, false, err
		}
		e, err := p.Entry(pos)
		if err != nil {
			return segment.TuplePointer{}, false, err
		}
		pageID = e.Ptr.Segment
	}
}

// RangeScan returns every item with start <= key <= end in ascending order.
func (t *BTree) RangeScan(start, end uint64) ([]Item, error) {
	var items []Item
	if t.root == 0 || start > end {
		return items, nil
	}
	err := t.collect(t.root, start, end, &items)
	return items, err
}

// Scan returns every item in the tree in ascending key order.
func (t *BTree) Scan() ([]Item, error) {
	var items []Item
	if t.root == 0 {
		return items, nil
	}
	err := t.collect(t.root, 0, ^uint64(0), &items)
	return items, err
}

func (t *BTree) collect(pageID uint32, start, end uint64, items *[]Item) error {
	p, err := t.page(pageID)
	if err != nil {
		return err
	}
	h, err := p.Header()
	if err != nil {
		return err
	}

	if h.Leaf {
		for i := 0; i < int(h.NumKeys); i++ {
			e := p.readEntry(i)
			if e.Key >= start && e.Key <= end {
				*items = append(*items, Item{Key: e.Key, Ptr: e.Ptr})
			}
		}
		return nil
	}

	lo, err := t.routePos(p, start)
	if err != nil {
		return err
	}
	hi, err := t.routePos(p, end)
	if err != nil {
		return err
	}
	for i := lo; i <= hi; i++ {
		e, err := p.Entry(i)
		if err != nil {
			return err
		}
		if err := t.collect(e.Ptr.Segment, start, end, items); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of keys in the tree.
func (t *BTree) Len() (int, error) {
	items, err := t.Scan()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
