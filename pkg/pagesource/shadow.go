package pagesource

import "sort"

// Shadow is a copy-on-write overlay used as a transaction's sole I/O
// surface: writes land in an in-memory map, reads consult that map before
// falling through to the base. The shadow is poolable — Reset clears its
// dirty set so the same Shadow (and its scratch buffers) can be reused
// across transactions without reallocating.
type Shadow struct {
	base      PageSource
	pageSize  int
	dirty     map[uint32][]byte
	pageCount uint32 // high-water mark, may exceed base when pages were allocated
}

// NewShadow wraps base for use as a single transaction's page source.
func NewShadow(base PageSource) *Shadow {
	return &Shadow{
		base:      base,
		pageSize:  base.PageSize(),
		dirty:     make(map[uint32][]byte),
		pageCount: base.PageCount(),
	}
}

func (s *Shadow) PageCount() uint32 { return s.pageCount }
func (s *Shadow) PageSize() int     { return s.pageSize }

func (s *Shadow) GetPage(n uint32) ([]byte, error) {
	if b, ok := s.dirty[n]; ok {
		return b, nil
	}
	if n > s.base.PageCount() {
		return nil, ErrOutOfRange
	}
	return s.base.GetPage(n)
}

func (s *Shadow) ReadPage(n uint32, into []byte) error {
	b, err := s.GetPage(n)
	if err != nil {
		return err
	}
	copy(into, b)
	return nil
}

func (s *Shadow) Invalidate(n uint32) {
	delete(s.dirty, n)
	s.base.Invalidate(n)
}

// WritePage stages bytes for page n in the dirty map. It never touches
// the base until FlushTo is called.
func (s *Shadow) WritePage(n uint32, bytes []byte) error {
	buf := make([]byte, s.pageSize)
	copy(buf, bytes)
	s.dirty[n] = buf
	if n > s.pageCount {
		s.pageCount = n
	}
	return nil
}

// Flush is a no-op: a shadow only becomes durable via FlushTo, called by
// the commit path once the rollback journal has captured pre-images.
func (s *Shadow) Flush() error { return nil }

// DirtyPages returns the page numbers written in this transaction, sorted
// ascending, matching the commit ordering rule in spec section 4.7.
func (s *Shadow) DirtyPages() []uint32 {
	out := make([]uint32, 0, len(s.dirty))
	for n := range s.dirty {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DirtyPageBytes returns the staged bytes for page n and whether it was
// dirtied in this transaction.
func (s *Shadow) DirtyPageBytes(n uint32) ([]byte, bool) {
	b, ok := s.dirty[n]
	return b, ok
}

// FlushTo writes every dirty page into base, in page-number ascending
// order, and flushes the base. The caller is responsible for having
// journaled pre-images first.
func (s *Shadow) FlushTo(base Writable) error {
	for _, n := range s.DirtyPages() {
		if err := base.WritePage(n, s.dirty[n]); err != nil {
			return err
		}
	}
	return base.Flush()
}

// Reset clears the dirty map so the Shadow can be reused for the next
// transaction without reallocating its internal map.
func (s *Shadow) Reset() {
	for k := range s.dirty {
		delete(s.dirty, k)
	}
	s.pageCount = s.base.PageCount()
}
