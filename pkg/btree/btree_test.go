package btree

import (
	"fmt"
	"testing"

	"sharc/pkg/pagesource"
)

const testPageSize = 512
const testUsable = 512

func newEmptyLeafRoot(t *testing.T) *pagesource.Memory {
	t.Helper()
	mem := pagesource.NewMemory(testPageSize)
	empty := &node{isLeaf: true}
	if err := writeNode(mem, 1, testUsable, empty, func() (uint32, error) {
		t.Fatal("unexpected allocation while writing the initial empty root")
		return 0, nil
	}, func(uint32) error { return nil }); err != nil {
		t.Fatalf("writeNode: %v", err)
	}
	return mem
}

func TestInsertAndSeekSingleLeaf(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root := uint32(1)
	var err error
	for i := int64(1); i <= 5; i++ {
		root, err = m.Insert(root, i, []byte(fmt.Sprintf("row-%d", i)))
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.Seek(3); err != nil {
		t.Fatalf("Seek(3): %v", err)
	}
	if string(c.Payload()) != "row-3" {
		t.Errorf("Seek(3) payload = %q, want row-3", c.Payload())
	}

	if err := c.Seek(99); err != ErrNotFound {
		t.Errorf("Seek(99) = %v, want ErrNotFound", err)
	}
}

func TestInsertOverwritesExistingRowid(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root, err := m.Insert(1, 1, []byte("first"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	root, err = m.Insert(root, 1, []byte("second"))
	if err != nil {
		t.Fatalf("Insert overwrite: %v", err)
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	if string(c.Payload()) != "second" {
		t.Errorf("payload = %q, want second", c.Payload())
	}
	if err := c.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Valid() {
		t.Errorf("expected only one row after overwrite")
	}
}

func TestCursorIterationIsAscending(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root := uint32(1)
	var err error
	order := []int64{5, 1, 4, 2, 3}
	for _, rowid := range order {
		root, err = m.Insert(root, rowid, []byte(fmt.Sprintf("v%d", rowid)))
		if err != nil {
			t.Fatalf("Insert(%d): %v", rowid, err)
		}
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	var got []int64
	for c.Valid() {
		got = append(got, c.Rowid())
		if err := c.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v rows, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestInsertManyRowsForcesSplitAndStaysOrdered(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root := uint32(1)
	var err error
	const n = 200
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = 'x'
	}
	for i := int64(0); i < n; i++ {
		root, err = m.Insert(root, i, append([]byte(nil), payload...))
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	var count int64
	for c.Valid() {
		if c.Rowid() != count {
			t.Fatalf("out-of-order rowid: got %d want %d", c.Rowid(), count)
		}
		count++
		if err := c.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != n {
		t.Fatalf("iterated %d rows, want %d", count, n)
	}

	for i := int64(0); i < n; i += 17 {
		if err := c.Seek(i); err != nil {
			t.Fatalf("Seek(%d): %v", i, err)
		}
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root := uint32(1)
	var err error
	for i := int64(1); i <= 3; i++ {
		root, err = m.Insert(root, i, []byte("v"))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	root, err = m.Delete(root, 2)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.Seek(2); err != ErrNotFound {
		t.Errorf("Seek(2) after delete = %v, want ErrNotFound", err)
	}
	if err := c.Seek(1); err != nil {
		t.Errorf("Seek(1) after delete: %v", err)
	}
	if err := c.Seek(3); err != nil {
		t.Errorf("Seek(3) after delete: %v", err)
	}
}

func TestDeleteAllRowsLeavesEmptyLeafRoot(t *testing.T) {
	mem := newEmptyLeafRoot(t)
	fl := NewFreelist(mem, testUsable, 0, 0)
	m := NewMutator(mem, testUsable, fl, 2)

	root, err := m.Insert(1, 1, []byte("v"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	root, err = m.Delete(root, 1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	c := NewCursor(mem, root, testUsable)
	if err := c.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	if c.Valid() {
		t.Errorf("expected empty tree after deleting its only row")
	}
}

func TestIndexCursorSeekGEOrdersByRawKeyBytes(t *testing.T) {
	mem := pagesource.NewMemory(testPageSize)
	n := &indexNode{isLeaf: true, leafRows: []indexLeafRow{
		{key: []byte("apple")},
		{key: []byte("banana")},
		{key: []byte("cherry")},
	}}
	buf := make([]byte, testPageSize)
	buf[0] = 0x0A
	off := 8
	contentEnd := testPageSize
	type cellpos struct{ off, n int }
	var cells []cellpos
	for i := len(n.leafRows) - 1; i >= 0; i-- {
		k := n.leafRows[i].key
		cellLen := 1 + len(k) // 1-byte varint size + key bytes (size < 0x7F)
		contentEnd -= cellLen
		buf[contentEnd] = byte(len(k))
		copy(buf[contentEnd+1:], k)
		cells = append(cells, cellpos{off: contentEnd, n: cellLen})
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	for i, c := range cells {
		buf[off+i*2] = byte(c.off >> 8)
		buf[off+i*2+1] = byte(c.off)
	}
	buf[3] = 0
	buf[4] = byte(len(n.leafRows))
	buf[5] = byte(contentEnd >> 8)
	buf[6] = byte(contentEnd)
	if err := mem.WritePage(1, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := mem.WritePage(2, buf); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	c := NewIndexCursor(mem, 2, testUsable)
	if err := c.SeekGE([]byte("b")); err != nil {
		t.Fatalf("SeekGE: %v", err)
	}
	if string(c.Key()) != "banana" {
		t.Errorf("SeekGE(b) = %q, want banana", c.Key())
	}
}
