// Package record codes SQLite's record format: a varint header listing
// each column's serial type, followed by the column bytes concatenated in
// header order. Decoding never allocates; callers supply scratch buffers
// so a hot scan path can reuse the same stack/pooled storage across rows.
package record

import (
	"encoding/binary"
	"errors"
	"math"

	"sharc/internal/varint"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

var (
	ErrTruncated    = errors.New("record: payload truncated")
	ErrBadOrdinal   = errors.New("record: column ordinal out of range")
	ErrHeaderTooBig = errors.New("record: header size exceeds provided buffer")
)

// ReadSerialTypes parses a record's header from payload, writing each
// column's serial type into outTypes (which must be large enough to hold
// every column; callers size it from a cached column count or grow it
// lazily). Returns the number of columns and the byte offset where the
// record body begins.
func ReadSerialTypes(payload []byte, outTypes []serial.Type) (count int, bodyOffset int, err error) {
	headerSize, n := varint.GetVarint(payload)
	if n == 0 || int(headerSize) > len(payload) {
		return 0, 0, ErrTruncated
	}
	pos := n
	for pos < int(headerSize) {
		st, m := varint.GetVarint(payload[pos:])
		if m == 0 {
			return 0, 0, ErrTruncated
		}
		if count >= len(outTypes) {
			return 0, 0, ErrHeaderTooBig
		}
		outTypes[count] = serial.Type(st)
		count++
		pos += m
	}
	return count, int(headerSize), nil
}

// ColumnOffset returns the body-relative byte offset of column ordinal,
// computed by summing the content sizes of every preceding column. This
// is O(ordinal) and allocation-free.
func ColumnOffset(types []serial.Type, ordinal int) int {
	off := 0
	for i := 0; i < ordinal; i++ {
		off += serial.ContentSize(types[i])
	}
	return off
}

// DecodeColumn reads only the requested column, skipping earlier ones via
// content-size arithmetic. Text and Blob values borrow their bytes
// directly from payload.
func DecodeColumn(payload []byte, ordinal int, types []serial.Type, bodyOffset int) (sqlvalue.Value, error) {
	if ordinal < 0 || ordinal >= len(types) {
		return sqlvalue.Value{}, ErrBadOrdinal
	}
	st := types[ordinal]
	off := bodyOffset + ColumnOffset(types, ordinal)
	size := serial.ContentSize(st)
	if off+size > len(payload) {
		return sqlvalue.Value{}, ErrTruncated
	}
	body := payload[off : off+size]

	switch {
	case serial.IsNull(st):
		return sqlvalue.Null(), nil
	case st == serial.Zero:
		return sqlvalue.Int(0), nil
	case st == serial.One:
		return sqlvalue.Int(1), nil
	case serial.IsInteger(st):
		return sqlvalue.Int(decodeSignedInt(body)), nil
	case serial.IsReal(st):
		return sqlvalue.Real(math.Float64frombits(binary.BigEndian.Uint64(body))), nil
	case serial.IsText(st):
		return sqlvalue.TextBorrowed(body), nil
	case serial.IsBlob(st):
		return sqlvalue.BlobBorrowed(body), nil
	default:
		return sqlvalue.Null(), nil
	}
}

// DecodeInt64Direct bypasses sqlvalue.Value construction for the common
// case of reading an integer column directly as an int64. Non-integer
// columns coerce via the real bit pattern when possible, otherwise 0.
func DecodeInt64Direct(payload []byte, ordinal int, types []serial.Type, bodyOffset int) (int64, error) {
	if ordinal < 0 || ordinal >= len(types) {
		return 0, ErrBadOrdinal
	}
	st := types[ordinal]
	switch st {
	case serial.Zero:
		return 0, nil
	case serial.One:
		return 1, nil
	}
	off := bodyOffset + ColumnOffset(types, ordinal)
	size := serial.ContentSize(st)
	if off+size > len(payload) {
		return 0, ErrTruncated
	}
	body := payload[off : off+size]
	if serial.IsReal(st) {
		return int64(math.Float64frombits(binary.BigEndian.Uint64(body))), nil
	}
	if serial.IsText(st) || serial.IsBlob(st) {
		return 0, nil
	}
	return decodeSignedInt(body), nil
}

// DecodeDoubleDirect bypasses sqlvalue.Value construction for reading a
// REAL column directly as a float64, coercing integer columns exactly.
func DecodeDoubleDirect(payload []byte, ordinal int, types []serial.Type, bodyOffset int) (float64, error) {
	if ordinal < 0 || ordinal >= len(types) {
		return 0, ErrBadOrdinal
	}
	st := types[ordinal]
	switch st {
	case serial.Zero:
		return 0, nil
	case serial.One:
		return 1, nil
	}
	off := bodyOffset + ColumnOffset(types, ordinal)
	size := serial.ContentSize(st)
	if off+size > len(payload) {
		return 0, ErrTruncated
	}
	body := payload[off : off+size]
	if serial.IsReal(st) {
		return math.Float64frombits(binary.BigEndian.Uint64(body)), nil
	}
	return float64(decodeSignedInt(body)), nil
}

// DecodeStringDirect bypasses sqlvalue.Value construction, returning the
// raw UTF-8 bytes of a TEXT column borrowed from payload. Returns nil,
// false for any other storage class.
func DecodeStringDirect(payload []byte, ordinal int, types []serial.Type, bodyOffset int) ([]byte, bool, error) {
	if ordinal < 0 || ordinal >= len(types) {
		return nil, false, ErrBadOrdinal
	}
	st := types[ordinal]
	if !serial.IsText(st) {
		return nil, false, nil
	}
	off := bodyOffset + ColumnOffset(types, ordinal)
	size := serial.ContentSize(st)
	if off+size > len(payload) {
		return nil, false, ErrTruncated
	}
	return payload[off : off+size], true, nil
}

// decodeSignedInt sign-extends a big-endian two's-complement integer of
// width 1/2/3/4/6/8 bytes, matching the record serial-type widths.
func decodeSignedInt(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1 // sign-extend with all high bits set
	}
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
