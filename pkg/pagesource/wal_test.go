package pagesource

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildWALBytes(pageSize int, frames map[uint32][]byte) []byte {
	var buf bytes.Buffer
	header := make([]byte, walHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], walMagicBigEndian)
	binary.BigEndian.PutUint32(header[4:8], 3007000)
	binary.BigEndian.PutUint32(header[8:12], uint32(pageSize))
	buf.Write(header)

	for pageNo, data := range frames {
		fh := make([]byte, walFrameHeaderSize)
		binary.BigEndian.PutUint32(fh[0:4], pageNo)
		buf.Write(fh)
		buf.Write(data)
	}
	return buf.Bytes()
}

func TestWALOverlayPrefersFrameOverBase(t *testing.T) {
	base := NewMemory(16)
	base.WritePage(1, fillPage(16, 1))
	base.WritePage(2, fillPage(16, 2))

	walBytes := buildWALBytes(16, map[uint32][]byte{2: fillPage(16, 99)})
	w, err := newWALFromBytes(walBytes, base)
	if err != nil {
		t.Fatalf("newWALFromBytes: %v", err)
	}

	p1, _ := w.GetPage(1)
	if !bytes.Equal(p1, fillPage(16, 1)) {
		t.Errorf("page 1 should fall through to base unchanged")
	}
	p2, _ := w.GetPage(2)
	if !bytes.Equal(p2, fillPage(16, 99)) {
		t.Errorf("page 2 should come from the WAL frame, got %v", p2)
	}
}

func TestWALOverlayMissingFileFallsBackToBase(t *testing.T) {
	base := NewMemory(16)
	base.WritePage(1, fillPage(16, 7))
	w, err := OpenWAL("/nonexistent/path/does-not-exist.wal", base)
	if err != nil {
		t.Fatalf("OpenWAL on missing file: %v", err)
	}
	p1, err := w.GetPage(1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !bytes.Equal(p1, fillPage(16, 7)) {
		t.Errorf("expected fallback to base contents")
	}
}

func TestWALOverlayRejectsBadMagic(t *testing.T) {
	base := NewMemory(16)
	bad := make([]byte, walHeaderSize+walFrameHeaderSize+16)
	if _, err := newWALFromBytes(bad, base); err != errWALBadMagic {
		t.Errorf("expected errWALBadMagic, got %v", err)
	}
}
