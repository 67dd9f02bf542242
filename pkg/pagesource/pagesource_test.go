package pagesource

import (
	"bytes"
	"testing"
)

func fillPage(pageSize int, b byte) []byte {
	buf := make([]byte, pageSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory(512)
	p1 := fillPage(512, 0xAA)
	if err := m.WritePage(1, p1); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got, err := m.GetPage(1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !bytes.Equal(got, p1) {
		t.Errorf("page mismatch after round trip")
	}
	if m.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1", m.PageCount())
	}
}

func TestMemoryGrowsOnWriteBeyondEnd(t *testing.T) {
	m := NewMemory(128)
	if err := m.WritePage(5, fillPage(128, 1)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if m.PageCount() != 5 {
		t.Errorf("PageCount() = %d, want 5", m.PageCount())
	}
	if _, err := m.GetPage(3); err != nil {
		t.Errorf("GetPage(3): %v", err)
	}
}

func TestMemoryOutOfRange(t *testing.T) {
	m := NewMemory(128)
	if _, err := m.GetPage(0); err != ErrOutOfRange {
		t.Errorf("GetPage(0) = %v, want ErrOutOfRange", err)
	}
	if _, err := m.GetPage(1); err != ErrOutOfRange {
		t.Errorf("GetPage(1) on empty = %v, want ErrOutOfRange", err)
	}
}

func TestCachedServesFromCacheAfterInvalidate(t *testing.T) {
	m := NewMemory(64)
	m.WritePage(1, fillPage(64, 9))
	c := NewCached(m, 4)

	got, err := c.GetPage(1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !bytes.Equal(got, fillPage(64, 9)) {
		t.Errorf("cached page mismatch")
	}

	c.WritePage(1, fillPage(64, 10))
	got2, _ := c.GetPage(1)
	if !bytes.Equal(got2, fillPage(64, 10)) {
		t.Errorf("cache did not reflect write-through update")
	}
}

func TestCachedEvictsBeyondCapacity(t *testing.T) {
	m := NewMemory(16)
	for i := uint32(1); i <= 5; i++ {
		m.WritePage(i, fillPage(16, byte(i)))
	}
	c := NewCached(m, 2)
	for i := uint32(1); i <= 5; i++ {
		if _, err := c.GetPage(i); err != nil {
			t.Fatalf("GetPage(%d): %v", i, err)
		}
	}
	if c.lru.Len() > 2 {
		t.Errorf("cache holds %d entries, want at most 2", c.lru.Len())
	}
}

func TestShadowReadsDirtyBeforeBase(t *testing.T) {
	m := NewMemory(32)
	m.WritePage(1, fillPage(32, 1))
	s := NewShadow(m)

	got, _ := s.GetPage(1)
	if !bytes.Equal(got, fillPage(32, 1)) {
		t.Fatalf("expected shadow to read through to base")
	}

	s.WritePage(1, fillPage(32, 2))
	got2, _ := s.GetPage(1)
	if !bytes.Equal(got2, fillPage(32, 2)) {
		t.Errorf("shadow did not prefer its own dirty page")
	}

	baseStill, _ := m.GetPage(1)
	if !bytes.Equal(baseStill, fillPage(32, 1)) {
		t.Errorf("shadow write leaked into base before FlushTo")
	}
}

func TestShadowDirtyPagesSortedAscending(t *testing.T) {
	m := NewMemory(16)
	m.WritePage(1, fillPage(16, 0))
	s := NewShadow(m)
	s.WritePage(5, fillPage(16, 5))
	s.WritePage(2, fillPage(16, 2))
	s.WritePage(9, fillPage(16, 9))

	dirty := s.DirtyPages()
	want := []uint32{2, 5, 9}
	if len(dirty) != len(want) {
		t.Fatalf("DirtyPages() = %v, want %v", dirty, want)
	}
	for i, n := range want {
		if dirty[i] != n {
			t.Errorf("DirtyPages()[%d] = %d, want %d", i, dirty[i], n)
		}
	}
}

func TestShadowFlushToWritesInOrder(t *testing.T) {
	m := NewMemory(8)
	m.WritePage(1, fillPage(8, 0))
	s := NewShadow(m)
	s.WritePage(3, fillPage(8, 3))
	s.WritePage(1, fillPage(8, 1))

	if err := s.FlushTo(m); err != nil {
		t.Fatalf("FlushTo: %v", err)
	}
	p1, _ := m.GetPage(1)
	p3, _ := m.GetPage(3)
	if !bytes.Equal(p1, fillPage(8, 1)) || !bytes.Equal(p3, fillPage(8, 3)) {
		t.Errorf("FlushTo did not persist dirty pages correctly")
	}
}

func TestShadowResetClearsDirtySet(t *testing.T) {
	m := NewMemory(8)
	m.WritePage(1, fillPage(8, 0))
	s := NewShadow(m)
	s.WritePage(1, fillPage(8, 7))
	s.Reset()
	if len(s.DirtyPages()) != 0 {
		t.Errorf("Reset did not clear dirty pages")
	}
	got, _ := s.GetPage(1)
	if !bytes.Equal(got, fillPage(8, 0)) {
		t.Errorf("after Reset, shadow should read through to base")
	}
}

func TestProxySwapsTarget(t *testing.T) {
	base := NewMemory(8)
	base.WritePage(1, fillPage(8, 1))
	shadow := NewShadow(base)
	shadow.WritePage(1, fillPage(8, 2))

	p := NewProxy(base)
	got, _ := p.GetPage(1)
	if !bytes.Equal(got, fillPage(8, 1)) {
		t.Fatalf("proxy should read from base initially")
	}

	prev := p.SwapTo(shadow)
	if prev != base {
		t.Errorf("SwapTo did not return previous target")
	}
	got2, _ := p.GetPage(1)
	if !bytes.Equal(got2, fillPage(8, 2)) {
		t.Errorf("proxy should read from shadow after swap")
	}
}
