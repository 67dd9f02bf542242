package dbheader

import "testing"

func TestNewEncodeDecodeRoundTrip(t *testing.T) {
	h := New(4096)
	h.ChangeCounter = 7
	h.PageCount = 12
	h.SchemaCookie = 3
	h.ApplicationID = 0xCAFEF00D

	buf := h.Encode()
	if len(buf) != Size {
		t.Fatalf("Encode() produced %d bytes, want %d", len(buf), Size)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PageSize != h.PageSize || got.ChangeCounter != h.ChangeCounter ||
		got.PageCount != h.PageCount || got.SchemaCookie != h.SchemaCookie ||
		got.ApplicationID != h.ApplicationID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestPageSizeStoredAsOneMeans65536(t *testing.T) {
	h := New(65536)
	buf := h.Encode()

	stored := buf[offPageSize : offPageSize+2]
	if stored[0] != 0x00 || stored[1] != 0x01 {
		t.Fatalf("expected stored page size field to be 1, got %v", stored)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PageSize != 65536 {
		t.Errorf("PageSize = %d, want 65536", got.PageSize)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	h := New(4096)
	buf := h.Encode()
	buf[0] = 'X'
	if _, err := Decode(buf); err != ErrBadMagic {
		t.Errorf("Decode with corrupted magic: got %v, want ErrBadMagic", err)
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode(make([]byte, 50)); err != ErrHeaderTooShort {
		t.Errorf("Decode with short buffer: got %v, want ErrHeaderTooShort", err)
	}
}

func TestDecodeRejectsBadPageSize(t *testing.T) {
	h := New(4096)
	buf := h.Encode()
	// 511 is below the minimum and not a power of two.
	buf[offPageSize] = 0x01
	buf[offPageSize+1] = 0xFF
	if _, err := Decode(buf); err != ErrBadPageSize {
		t.Errorf("Decode with page size 0x1FF: got %v, want ErrBadPageSize", err)
	}
}

func TestDecodeRejectsNonUTF8Encoding(t *testing.T) {
	h := New(4096)
	h.TextEncoding = 2 // UTF-16LE, out of scope
	buf := h.Encode()
	if _, err := Decode(buf); err != ErrUnsupportedEncoding {
		t.Errorf("Decode with UTF-16 encoding: got %v, want ErrUnsupportedEncoding", err)
	}
}

func TestUsablePageSize(t *testing.T) {
	h := New(4096)
	h.ReservedBytes = 0
	if got := h.UsablePageSize(); got != 4096 {
		t.Errorf("UsablePageSize() = %d, want 4096", got)
	}
	h.ReservedBytes = 16 // room for a per-page AEAD tag, per spec section 6
	if got := h.UsablePageSize(); got != 4080 {
		t.Errorf("UsablePageSize() = %d, want 4080", got)
	}
}

func TestEncodeBigEndianFieldOrder(t *testing.T) {
	h := New(4096)
	h.PageCount = 0x01020304
	buf := h.Encode()
	if buf[offPageCount] != 0x01 || buf[offPageCount+1] != 0x02 ||
		buf[offPageCount+2] != 0x03 || buf[offPageCount+3] != 0x04 {
		t.Errorf("page count not encoded big-endian: %v", buf[offPageCount:offPageCount+4])
	}
}
