package fingerprint

import (
	"testing"

	"sharc/pkg/record"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

func encode(t *testing.T, values []sqlvalue.Value) ([]byte, []serial.Type, int) {
	t.Helper()
	buf := make([]byte, record.ComputedEncodedSize(values))
	record.EncodeRecord(values, buf)
	var types [16]serial.Type
	count, bodyOffset, err := record.ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}
	return buf, types[:count], bodyOffset
}

func TestEqualProjectedColumnsEqualFingerprint(t *testing.T) {
	v1 := []sqlvalue.Value{sqlvalue.Int(7), sqlvalue.Text("same")}
	v2 := []sqlvalue.Value{sqlvalue.Int(7), sqlvalue.Text("same")}

	buf1, types1, off1 := encode(t, v1)
	buf2, types2, off2 := encode(t, v2)

	f1, err := Of(buf1, types1, off1, 0, -1)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	f2, err := Of(buf2, types2, off2, 0, -1)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if !f1.Equal(f2) {
		t.Errorf("identical rows fingerprinted differently: %+v vs %+v", f1, f2)
	}
}

func TestDifferentValuesProduceDifferentFingerprints(t *testing.T) {
	v1 := []sqlvalue.Value{sqlvalue.Int(7)}
	v2 := []sqlvalue.Value{sqlvalue.Int(8)}
	buf1, types1, off1 := encode(t, v1)
	buf2, types2, off2 := encode(t, v2)

	f1, _ := Of(buf1, types1, off1, 0, -1)
	f2, _ := Of(buf2, types2, off2, 0, -1)
	if f1.Equal(f2) {
		t.Errorf("different rows fingerprinted identically")
	}
}

func TestRawFingerprintDistinguishesSerialTypeWidth(t *testing.T) {
	// i16 value 5 and i32 value 5 differ in serial type even though the
	// logical integer value is identical; Of must distinguish them.
	smallBuf := make([]byte, 32)
	n := 0
	n += copy(smallBuf[n:], []byte{0x03, byte(serial.Int16)}) // header: size=3, type=int16
	smallBuf[n] = 0x00
	smallBuf[n+1] = 0x05
	n += 2
	smallTypes := []serial.Type{serial.Int16}

	bigBuf := make([]byte, 32)
	m := 0
	m += copy(bigBuf[m:], []byte{0x03, byte(serial.Int32)})
	bigBuf[m], bigBuf[m+1], bigBuf[m+2], bigBuf[m+3] = 0, 0, 0, 5
	m += 4
	bigTypes := []serial.Type{serial.Int32}

	f1, err := Of(smallBuf, smallTypes, 2, 0, -1)
	if err != nil {
		t.Fatalf("Of(small): %v", err)
	}
	f2, err := Of(bigBuf, bigTypes, 2, 0, -1)
	if err != nil {
		t.Fatalf("Of(big): %v", err)
	}
	if f1.Equal(f2) {
		t.Errorf("Of should distinguish i16 and i32 representations of the same value")
	}
}

func TestNormalizedForTreatsEqualNumbersAsEqualAcrossWidth(t *testing.T) {
	v1 := []sqlvalue.Value{sqlvalue.Int(5)}  // encodes as Int8
	v2 := []sqlvalue.Value{sqlvalue.Real(5)} // encodes as Float64
	buf1, types1, off1 := encode(t, v1)
	buf2, types2, off2 := encode(t, v2)

	f1, err := NormalizedFor(buf1, types1, off1, 0, -1)
	if err != nil {
		t.Fatalf("NormalizedFor(int): %v", err)
	}
	f2, err := NormalizedFor(buf2, types2, off2, 0, -1)
	if err != nil {
		t.Fatalf("NormalizedFor(real): %v", err)
	}
	if !f1.Equal(f2) {
		t.Errorf("NormalizedFor should treat integer 5 and real 5.0 as equal, got %+v vs %+v", f1, f2)
	}
}

func TestFingerprintUsesRowidForAliasColumn(t *testing.T) {
	v := []sqlvalue.Value{sqlvalue.Null()}
	buf, types, off := encode(t, v)

	f1, err := Of(buf, types, off, 100, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	f2, err := Of(buf, types, off, 200, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if f1.Equal(f2) {
		t.Errorf("rows with different rowids at the alias column should fingerprint differently")
	}
}

func TestPayloadLenSaturates(t *testing.T) {
	big := make([]sqlvalue.Value, 0)
	s := make([]byte, 1<<17)
	big = append(big, sqlvalue.Blob(s))
	buf, types, off := encode(t, big)
	f, err := Of(buf, types, off, 0, -1)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if f.PayloadLen != 65535 {
		t.Errorf("PayloadLen = %d, want saturated 65535", f.PayloadLen)
	}
}
