package btree

import (
	"bytes"
	"sort"

	"sharc/pkg/btreepage"
	"sharc/pkg/pagesource"
)

// indexLeafRow is one decoded index-leaf cell: its full key record
// (overflow chain already followed), which for a table index ends
// with the indexed row's rowid encoded as its final column.
type indexLeafRow struct {
	key []byte
}

type indexInteriorEntry struct {
	child uint32
	key   []byte
}

type indexNode struct {
	isLeaf     bool
	rightChild uint32
	leafRows   []indexLeafRow
	interior   []indexInteriorEntry
}

func readIndexNode(src pagesource.PageSource, pageNo uint32, usable int) (*indexNode, error) {
	buf, err := src.GetPage(pageNo)
	if err != nil {
		return nil, err
	}
	p, err := btreepage.Parse(buf, headerOffsetFor(pageNo))
	if err != nil {
		return nil, err
	}

	n := &indexNode{isLeaf: p.Type().IsLeaf()}
	if !n.isLeaf {
		n.rightChild = p.RightChild()
	}

	for i := 0; i < p.CellCount(); i++ {
		cellBuf, err := p.CellBytes(i)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			cell, _, err := btreepage.ParseLeafIndexCell(cellBuf, usable)
			if err != nil {
				return nil, err
			}
			full, err := followOverflow(src, cell.Payload, cell.PayloadSize, cell.OverflowPage, usable)
			if err != nil {
				return nil, err
			}
			n.leafRows = append(n.leafRows, indexLeafRow{key: full})
		} else {
			cell, _, err := btreepage.ParseInteriorIndexCell(cellBuf, usable)
			if err != nil {
				return nil, err
			}
			full, err := followOverflow(src, cell.Payload, cell.PayloadSize, cell.OverflowPage, usable)
			if err != nil {
				return nil, err
			}
			n.interior = append(n.interior, indexInteriorEntry{child: cell.LeftChild, key: full})
		}
	}
	return n, nil
}

// IndexCursor walks an index b-tree in key order. Keys compare as raw
// encoded record bytes (bytes.Compare over header then body). This is
// not SQLite's value order: keys whose record headers differ (different
// serial-type widths or column counts) order by header bytes first.
type IndexCursor struct {
	src    pagesource.PageSource
	root   uint32
	usable int

	stack   []frame
	leaf    *indexNode
	leafIdx int
	valid   bool
}

// NewIndexCursor returns a cursor over the index b-tree rooted at root.
func NewIndexCursor(src pagesource.PageSource, root uint32, usable int) *IndexCursor {
	return &IndexCursor{src: src, root: root, usable: usable}
}

func (c *IndexCursor) Reset() {
	c.stack = c.stack[:0]
	c.leaf = nil
	c.leafIdx = 0
	c.valid = false
}

// SeekGE positions the cursor at the first key >= target (target is an
// encoded index key record, possibly a prefix of the full key for a
// partial-column seek).
func (c *IndexCursor) SeekGE(target []byte) error {
	c.Reset()
	page := c.root
	for {
		n, err := readIndexNode(c.src, page, c.usable)
		if err != nil {
			return err
		}
		if n.isLeaf {
			idx := sort.Search(len(n.leafRows), func(i int) bool { return bytes.Compare(n.leafRows[i].key, target) >= 0 })
			c.leaf = n
			c.leafIdx = idx
			c.valid = idx < len(n.leafRows)
			return nil
		}
		idx := sort.Search(len(n.interior), func(i int) bool { return bytes.Compare(n.interior[i].key, target) >= 0 })
		c.stack = append(c.stack, frame{page: page, idx: idx})
		if idx < len(n.interior) {
			page = n.interior[idx].child
		} else {
			page = n.rightChild
		}
	}
}

// Valid, Key and Next mirror Cursor's semantics for index leaf entries.
func (c *IndexCursor) Valid() bool  { return c.valid }
func (c *IndexCursor) Key() []byte  { return c.leaf.leafRows[c.leafIdx].key }

func (c *IndexCursor) Next() error {
	if !c.valid {
		return nil
	}
	c.leafIdx++
	if c.leafIdx < len(c.leaf.leafRows) {
		return nil
	}

	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		parent, err := readIndexNode(c.src, top.page, c.usable)
		if err != nil {
			return err
		}
		top.idx++
		var childPage uint32
		if top.idx < len(parent.interior) {
			childPage = parent.interior[top.idx].child
		} else if top.idx == len(parent.interior) {
			childPage = parent.rightChild
		} else {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		page := childPage
		for {
			n, err := readIndexNode(c.src, page, c.usable)
			if err != nil {
				return err
			}
			if n.isLeaf {
				if len(n.leafRows) == 0 {
					break
				}
				c.leaf = n
				c.leafIdx = 0
				c.valid = true
				return nil
			}
			c.stack = append(c.stack, frame{page: page, idx: 0})
			if len(n.interior) > 0 {
				page = n.interior[0].child
			} else {
				page = n.rightChild
			}
		}
	}
	c.valid = false
	return nil
}

// WithoutRowID adapts a Cursor over a WITHOUT ROWID table's underlying
// index-structured b-tree: rows are keyed by their declared primary
// key columns rather than an implicit rowid, so iteration walks an
// IndexCursor and exposes each entry's full encoded key as the row
// payload (the primary key columns are a prefix of that key, per spec
// section 4.9).
type WithoutRowID struct {
	ic *IndexCursor
}

// NewWithoutRowID wraps an index cursor for WITHOUT ROWID iteration.
func NewWithoutRowID(src pagesource.PageSource, root uint32, usable int) *WithoutRowID {
	return &WithoutRowID{ic: NewIndexCursor(src, root, usable)}
}

func (w *WithoutRowID) First() error { return w.ic.SeekGE(nil) }
func (w *WithoutRowID) Next() error  { return w.ic.Next() }
func (w *WithoutRowID) Valid() bool  { return w.ic.Valid() }
func (w *WithoutRowID) Payload() []byte { return w.ic.Key() }
