// Package fingerprint computes the 128-bit row fingerprint used by set
// operators (UNION/INTERSECT/EXCEPT) for deduplication, per spec
// section 4.11.
package fingerprint

import (
	"encoding/binary"
	"math"

	"sharc/pkg/record"
	"sharc/pkg/serial"
)

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
	// A second, independent FNV-1a lane for the 32-bit guard hash: the
	// standard 32-bit FNV-1a constants, kept separate from the 64-bit lane
	// so the two hashes don't simply truncate one another.
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// Fingerprint is the 128-bit row identity used for set-operator dedup.
type Fingerprint struct {
	Low64       uint64
	Guard32     uint32
	PayloadLen  uint16 // saturated byte count consumed
	TypeMask16  uint16
}

// Equal reports whether two fingerprints are bit-identical.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Low64 == o.Low64 && f.Guard32 == o.Guard32 &&
		f.PayloadLen == o.PayloadLen && f.TypeMask16 == o.TypeMask16
}

type lanes struct {
	low64      uint64
	guard32    uint32
	payloadLen int
	typeMask   uint16
}

func newLanes() lanes {
	return lanes{low64: fnvOffset64, guard32: fnvOffset32}
}

func (l *lanes) absorb(typeTag byte, ordinal int, data []byte) {
	l.low64 ^= uint64(typeTag)
	l.low64 *= fnvPrime64
	l.guard32 ^= uint32(typeTag)
	l.guard32 *= fnvPrime32
	for _, b := range data {
		l.low64 ^= uint64(b)
		l.low64 *= fnvPrime64
		l.guard32 ^= uint32(b)
		l.guard32 *= fnvPrime32
	}
	l.payloadLen += len(data)

	rot := uint((ordinal * 2) % 16)
	tag16 := uint16(typeTag)
	rotated := (tag16 << rot) | (tag16 >> (16 - rot))
	l.typeMask ^= rotated
}

func (l lanes) finish() Fingerprint {
	payloadLen := l.payloadLen
	if payloadLen > math.MaxUint16 {
		payloadLen = math.MaxUint16
	}
	return Fingerprint{
		Low64:      l.low64,
		Guard32:    l.guard32,
		PayloadLen: uint16(payloadLen),
		TypeMask16: l.typeMask,
	}
}

// Of computes a row's raw fingerprint: serial type and big-endian column
// bytes are hashed exactly as stored, so values that differ only by
// serial-type width (an i16 5 vs an i32 5) fingerprint differently. rowid
// is substituted for any column at rowidAlias (a -1 value means the
// table has no INTEGER PRIMARY KEY alias).
func Of(payload []byte, types []serial.Type, bodyOffset int, rowid int64, rowidAlias int) (Fingerprint, error) {
	l := newLanes()
	off := bodyOffset
	for ord, st := range types {
		size := serial.ContentSize(st)
		if off+size > len(payload) {
			return Fingerprint{}, record.ErrTruncated
		}
		body := payload[off : off+size]
		if ord == rowidAlias {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(rowid))
			l.absorb(byte(st), ord, buf[:])
		} else {
			l.absorb(byte(st), ord, body)
		}
		off += size
	}
	return l.finish(), nil
}

// NormalizedFor computes a row's fingerprint after canonicalizing numeric
// storage classes: every integer and real column is folded to its IEEE
// double-precision representation before hashing, so numerically equal
// values fingerprint identically regardless of their on-disk width. This
// variant is used for set-operator and DISTINCT deduplication (spec
// section 9); every other consumer uses the raw Of form.
func NormalizedFor(payload []byte, types []serial.Type, bodyOffset int, rowid int64, rowidAlias int) (Fingerprint, error) {
	l := newLanes()
	off := bodyOffset
	for ord, st := range types {
		size := serial.ContentSize(st)
		if off+size > len(payload) {
			return Fingerprint{}, record.ErrTruncated
		}
		body := payload[off : off+size]

		switch {
		case ord == rowidAlias:
			absorbNormalizedInt(&l, ord, rowid)
		case serial.IsInteger(st):
			v, err := record.DecodeInt64Direct(payload, ord, types, bodyOffset)
			if err != nil {
				return Fingerprint{}, err
			}
			absorbNormalizedInt(&l, ord, v)
		case serial.IsReal(st):
			v, err := record.DecodeDoubleDirect(payload, ord, types, bodyOffset)
			if err != nil {
				return Fingerprint{}, err
			}
			absorbNormalizedReal(&l, ord, v)
		default:
			l.absorb(byte(st), ord, body)
		}
		off += size
	}
	return l.finish(), nil
}

// canonicalTag is the synthetic serial-type tag used for every numeric
// column once normalized to a double, so an i16 5 and an i32 5 fingerprint
// identically under NormalizedFor.
const canonicalTag = byte(serial.Float64)

func absorbNormalizedInt(l *lanes, ordinal int, v int64) {
	absorbNormalizedReal(l, ordinal, float64(v))
}

func absorbNormalizedReal(l *lanes, ordinal int, v float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	l.absorb(canonicalTag, ordinal, buf[:])
}
