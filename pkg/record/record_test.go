package record

import (
	"testing"

	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []sqlvalue.Value{
		sqlvalue.Null(),
		sqlvalue.Int(0),
		sqlvalue.Int(1),
		sqlvalue.Int(-42),
		sqlvalue.Int(70000),
		sqlvalue.Real(3.5),
		sqlvalue.Text("hello"),
		sqlvalue.Blob([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		sqlvalue.Text(""),
		sqlvalue.Blob(nil),
	}

	size := ComputedEncodedSize(values)
	buf := make([]byte, size)
	n := EncodeRecord(values, buf)
	if n != size {
		t.Fatalf("EncodeRecord wrote %d bytes, want %d (ComputedEncodedSize)", n, size)
	}

	var types [16]serial.Type
	count, bodyOffset, err := ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}
	if count != len(values) {
		t.Fatalf("column count = %d, want %d", count, len(values))
	}

	for i, want := range values {
		got, err := DecodeColumn(buf, i, types[:count], bodyOffset)
		if err != nil {
			t.Fatalf("DecodeColumn(%d): %v", i, err)
		}
		if !got.Equal(want) && !(got.IsNull() && want.IsNull()) {
			t.Errorf("column %d = %v (%s), want %v (%s)", i, got, got.Kind(), want, want.Kind())
		}
	}
}

func TestEmptyTextAndBlobDistinctAfterRoundTrip(t *testing.T) {
	values := []sqlvalue.Value{sqlvalue.Text(""), sqlvalue.Blob(nil)}
	buf := make([]byte, ComputedEncodedSize(values))
	EncodeRecord(values, buf)

	var types [4]serial.Type
	count, bodyOffset, err := ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if types[0] == types[1] {
		t.Fatalf("empty TEXT and empty BLOB encoded to the same serial type %d", types[0])
	}

	textVal, _ := DecodeColumn(buf, 0, types[:count], bodyOffset)
	blobVal, _ := DecodeColumn(buf, 1, types[:count], bodyOffset)
	if textVal.Kind() != sqlvalue.KindText {
		t.Errorf("column 0 kind = %v, want KindText", textVal.Kind())
	}
	if blobVal.Kind() != sqlvalue.KindBlob {
		t.Errorf("column 1 kind = %v, want KindBlob", blobVal.Kind())
	}
}

func TestDecodeIntegerDirectPaths(t *testing.T) {
	values := []sqlvalue.Value{sqlvalue.Int(12345), sqlvalue.Real(2.25)}
	buf := make([]byte, ComputedEncodedSize(values))
	EncodeRecord(values, buf)

	var types [4]serial.Type
	count, bodyOffset, err := ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}

	i, err := DecodeInt64Direct(buf, 0, types[:count], bodyOffset)
	if err != nil || i != 12345 {
		t.Errorf("DecodeInt64Direct(0) = %d, %v, want 12345", i, err)
	}
	f, err := DecodeDoubleDirect(buf, 1, types[:count], bodyOffset)
	if err != nil || f != 2.25 {
		t.Errorf("DecodeDoubleDirect(1) = %v, %v, want 2.25", f, err)
	}
	// Cross-type coercion: reading the REAL column as an int truncates.
	i2, err := DecodeInt64Direct(buf, 1, types[:count], bodyOffset)
	if err != nil || i2 != 2 {
		t.Errorf("DecodeInt64Direct(1) = %d, %v, want 2", i2, err)
	}
}

func TestDecodeStringDirectBorrowsFromPayload(t *testing.T) {
	values := []sqlvalue.Value{sqlvalue.Text("zero-copy")}
	buf := make([]byte, ComputedEncodedSize(values))
	EncodeRecord(values, buf)

	var types [2]serial.Type
	count, bodyOffset, _ := ReadSerialTypes(buf, types[:])
	s, ok, err := DecodeStringDirect(buf, 0, types[:count], bodyOffset)
	if err != nil || !ok {
		t.Fatalf("DecodeStringDirect: ok=%v err=%v", ok, err)
	}
	if string(s) != "zero-copy" {
		t.Errorf("s = %q, want zero-copy", s)
	}
	// Confirm the returned slice is backed by buf, not a fresh allocation.
	if &s[0] != &buf[len(buf)-len(s)] {
		t.Errorf("DecodeStringDirect did not borrow from the payload buffer")
	}
}

func TestDecodeSignedIntBoundaries(t *testing.T) {
	cases := []struct {
		v     int64
		width int
	}{
		{-128, 1}, {127, 1},
		{-32768, 2}, {32767, 2},
		{-8388608, 3}, {8388607, 3},
		{-2147483648, 4}, {2147483647, 4},
		{-(1 << 47), 6}, {(1 << 47) - 1, 6},
		{-(1 << 62), 8}, {(1 << 62) - 1, 8},
	}
	for _, c := range cases {
		buf := make([]byte, c.width)
		encodeSignedInt(c.v, c.width, buf)
		got := decodeSignedInt(buf)
		if got != c.v {
			t.Errorf("width %d: decodeSignedInt(encodeSignedInt(%d)) = %d", c.width, c.v, got)
		}
	}
}

func TestColumnOffsetSkipsPrecedingColumns(t *testing.T) {
	types := []serial.Type{serial.Int8, serial.Int32, serial.Null, serial.Float64}
	if got := ColumnOffset(types, 0); got != 0 {
		t.Errorf("ColumnOffset(0) = %d, want 0", got)
	}
	if got := ColumnOffset(types, 1); got != 1 {
		t.Errorf("ColumnOffset(1) = %d, want 1", got)
	}
	if got := ColumnOffset(types, 3); got != 5 {
		t.Errorf("ColumnOffset(3) = %d, want 5", got)
	}
}
