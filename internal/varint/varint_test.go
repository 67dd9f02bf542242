package varint

import (
	"math"
	"testing"
)

func TestPutVarint(t *testing.T) {
	tests := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x00}},
		{255, []byte{0x81, 0x7f}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x81, 0x80, 0x00}},
	}
	for _, tt := range tests {
		buf := make([]byte, MaxLen)
		n := PutVarint(buf, tt.value)
		if n != len(tt.expected) {
			t.Errorf("PutVarint(%d): expected %d bytes, got %d", tt.value, len(tt.expected), n)
			continue
		}
		for i := 0; i < n; i++ {
			if buf[i] != tt.expected[i] {
				t.Errorf("PutVarint(%d): byte %d expected %02x, got %02x", tt.value, i, tt.expected[i], buf[i])
			}
		}
	}
}

func TestVarintRoundTripBoundaries(t *testing.T) {
	// Boundaries named explicitly in spec section 8.
	values := []uint64{
		0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x1FFFFF, 0x200000,
		0x0FFFFFFF, 0x10000000, math.MaxInt64, math.MaxUint64,
	}
	for _, v := range values {
		buf := make([]byte, MaxLen)
		n := PutVarint(buf, v)
		if n != Len(v) {
			t.Errorf("Len(%d)=%d but PutVarint wrote %d bytes", v, Len(v), n)
		}
		got, m := GetVarint(buf[:n])
		if got != v || m != n {
			t.Errorf("roundtrip failed for %d: got %d (%d bytes), want %d (%d bytes)", v, got, m, v, n)
		}
	}
}

func TestVarintFullRange(t *testing.T) {
	for i := 0; i < 64; i++ {
		v := uint64(1) << uint(i)
		for _, delta := range []int64{-1, 0, 1} {
			candidate := int64(v) + delta
			if candidate < 0 {
				continue
			}
			vv := uint64(candidate)
			buf := make([]byte, MaxLen)
			n := PutVarint(buf, vv)
			got, m := GetVarint(buf[:n])
			if got != vv || m != n {
				t.Fatalf("roundtrip failed for %d: got %d (%d bytes)", vv, got, m)
			}
		}
	}
}

func TestNineByteForm(t *testing.T) {
	// The 9-byte form is used iff the value doesn't fit in 8*7=56 bits.
	maxEightByte := uint64(1)<<56 - 1
	if Len(maxEightByte) != 8 {
		t.Fatalf("expected 8-byte encoding for 2^56-1, got %d", Len(maxEightByte))
	}
	if Len(maxEightByte+1) != 9 {
		t.Fatalf("expected 9-byte encoding for 2^56, got %d", Len(maxEightByte+1))
	}

	buf := make([]byte, MaxLen)
	n := PutVarint(buf, math.MaxUint64)
	if n != 9 {
		t.Fatalf("expected 9 bytes for MaxUint64, got %d", n)
	}
	got, m := GetVarint(buf[:n])
	if got != math.MaxUint64 || m != 9 {
		t.Fatalf("MaxUint64 roundtrip failed: got %d in %d bytes", got, m)
	}
}

func TestVarintI64SignedRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, math.MinInt64, math.MaxInt64, -42, 42}
	for _, v := range values {
		buf := make([]byte, MaxLen)
		n := PutVarintI64(buf, v)
		got, m := GetVarintI64(buf[:n])
		if got != v || m != n {
			t.Errorf("signed roundtrip failed for %d: got %d", v, got)
		}
	}
}
