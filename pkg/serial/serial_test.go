package serial

import "testing"

func TestContentSizeFixed(t *testing.T) {
	cases := []struct {
		st   Type
		size int
	}{
		{Null, 0}, {Int8, 1}, {Int16, 2}, {Int24, 3}, {Int32, 4},
		{Int48, 6}, {Int64, 8}, {Float64, 8}, {Zero, 0}, {One, 0},
	}
	for _, c := range cases {
		if got := ContentSize(c.st); got != c.size {
			t.Errorf("ContentSize(%d) = %d, want %d", c.st, got, c.size)
		}
	}
}

func TestBlobTextDistinctSerialTypes(t *testing.T) {
	// Empty TEXT and empty BLOB must have distinct serial types (13 vs 12).
	emptyText := ForTextLen(0)
	emptyBlob := ForBlobLen(0)
	if emptyText == emptyBlob {
		t.Fatalf("empty text and empty blob got the same serial type %d", emptyText)
	}
	if emptyText != 13 {
		t.Errorf("empty text serial type = %d, want 13", emptyText)
	}
	if emptyBlob != 12 {
		t.Errorf("empty blob serial type = %d, want 12", emptyBlob)
	}
	if !IsText(emptyText) || IsBlob(emptyText) {
		t.Errorf("serial type 13 misclassified")
	}
	if !IsBlob(emptyBlob) || IsText(emptyBlob) {
		t.Errorf("serial type 12 misclassified")
	}
}

func TestForIntBoundaries(t *testing.T) {
	cases := []struct {
		v  int64
		st Type
	}{
		{0, Zero}, {1, One}, {-1, Int8}, {127, Int8}, {-128, Int8},
		{128, Int16}, {32767, Int16}, {-32768, Int16},
		{32768, Int24}, {-8388608, Int24}, {8388607, Int24},
		{8388608, Int32}, {2147483647, Int32}, {-2147483648, Int32},
		{2147483648, Int48}, {1 << 46, Int48},
		{1 << 48, Int64},
	}
	for _, c := range cases {
		if got := ForInt(c.v); got != c.st {
			t.Errorf("ForInt(%d) = %d, want %d", c.v, got, c.st)
		}
	}
}

func TestContentSizeRoundTripsWithForLen(t *testing.T) {
	for _, n := range []int{0, 1, 5, 255, 1 << 16} {
		if got := ContentSize(ForTextLen(n)); got != n {
			t.Errorf("ContentSize(ForTextLen(%d)) = %d", n, got)
		}
		if got := ContentSize(ForBlobLen(n)); got != n {
			t.Errorf("ContentSize(ForBlobLen(%d)) = %d", n, got)
		}
	}
}
