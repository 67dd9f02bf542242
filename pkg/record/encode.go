package record

import (
	"encoding/binary"
	"math"

	"sharc/internal/varint"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

// ComputedEncodedSize returns the exact byte length encodeRecord(values)
// would produce, so callers can size a single allocation (or a pooled
// buffer) up front.
func ComputedEncodedSize(values []sqlvalue.Value) int {
	headerBody := 0
	bodySize := 0
	for _, v := range values {
		st := serialTypeFor(v)
		headerBody += varint.Len(uint64(st))
		bodySize += serial.ContentSize(st)
	}
	// The header-size varint's own width depends on the total header size,
	// which includes itself — iterate to a fixed point as SQLite does.
	headerSize := headerBody + 1
	for {
		n := varint.Len(uint64(headerSize))
		total := headerBody + n
		if total == headerSize {
			break
		}
		headerSize = total
	}
	return headerSize + bodySize
}

// EncodeRecord writes values into out as a record header followed by its
// body, returning the number of bytes written. out must be at least
// ComputedEncodedSize(values) bytes long.
func EncodeRecord(values []sqlvalue.Value, out []byte) int {
	headerBody := 0
	types := make([]serial.Type, len(values))
	for i, v := range values {
		types[i] = serialTypeFor(v)
		headerBody += varint.Len(uint64(types[i]))
	}
	headerSize := headerBody + 1
	for {
		n := varint.Len(uint64(headerSize))
		total := headerBody + n
		if total == headerSize {
			break
		}
		headerSize = total
	}

	pos := varint.PutVarint(out, uint64(headerSize))
	for _, st := range types {
		pos += varint.PutVarint(out[pos:], uint64(st))
	}

	for i, v := range values {
		pos += encodeBody(types[i], v, out[pos:])
	}
	return pos
}

func serialTypeFor(v sqlvalue.Value) serial.Type {
	switch v.Kind() {
	case sqlvalue.KindNull:
		return serial.Null
	case sqlvalue.KindInteger:
		return serial.ForInt(v.Int64())
	case sqlvalue.KindReal:
		return serial.Float64
	case sqlvalue.KindText:
		return serial.ForTextLen(len(v.BytesUnsafe()))
	case sqlvalue.KindBlob:
		return serial.ForBlobLen(len(v.BytesUnsafe()))
	default:
		return serial.Null
	}
}

func encodeBody(st serial.Type, v sqlvalue.Value, out []byte) int {
	switch {
	case st == serial.Null, st == serial.Zero, st == serial.One:
		return 0
	case serial.IsInteger(st):
		return encodeSignedInt(v.Int64(), serial.ContentSize(st), out)
	case serial.IsReal(st):
		binary.BigEndian.PutUint64(out, math.Float64bits(v.Float64()))
		return 8
	case serial.IsText(st), serial.IsBlob(st):
		b := v.BytesUnsafe()
		copy(out, b)
		return len(b)
	default:
		return 0
	}
}

func encodeSignedInt(v int64, width int, out []byte) int {
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return width
}
