// Package sqlvalue implements the discriminated ColumnValue sum type from
// spec section 3: {Null, Integer, Real, Text, Blob}. Text and Blob values
// constructed from a cursor's payload borrow their bytes; converting to an
// owned copy is an explicit, separately named operation.
package sqlvalue

import "math"

// Kind discriminates a Value's storage class.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a column value. Text/Blob hold a byte slice that may be a
// zero-copy borrow from a page buffer; see IsBorrowed.
type Value struct {
	kind     Kind
	i        int64
	f        float64
	bytes    []byte
	borrowed bool
}

// Null returns the NULL value.
func Null() Value { return Value{kind: KindNull} }

// Int returns an INTEGER value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Real returns a REAL value.
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Text returns a TEXT value that owns a copy of s.
func Text(s string) Value {
	b := make([]byte, len(s))
	copy(b, s)
	return Value{kind: KindText, bytes: b}
}

// TextBorrowed returns a TEXT value that borrows b without copying. The
// caller must guarantee b outlives the Value's use.
func TextBorrowed(b []byte) Value {
	return Value{kind: KindText, bytes: b, borrowed: true}
}

// Blob returns a BLOB value that owns a copy of b.
func Blob(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{kind: KindBlob, bytes: c}
}

// BlobBorrowed returns a BLOB value that borrows b without copying.
func BlobBorrowed(b []byte) Value {
	return Value{kind: KindBlob, bytes: b, borrowed: true}
}

// Kind returns the value's storage class.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsBorrowed reports whether a Text/Blob value's bytes are borrowed from
// an external buffer rather than owned by the Value.
func (v Value) IsBorrowed() bool { return v.borrowed }

// Int64 returns the integer value, coercing REAL by truncation, or 0 for
// other kinds.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return int64(v.f)
	default:
		return 0
	}
}

// Float64 returns the real value, coercing INTEGER exactly, or 0 for other
// kinds.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindReal:
		return v.f
	case KindInteger:
		return float64(v.i)
	default:
		return 0
	}
}

// BytesUnsafe returns the raw Text/Blob bytes without copying, or nil for
// other kinds. The result is only valid as long as the Value's backing
// buffer (page, record payload) is valid.
func (v Value) BytesUnsafe() []byte {
	switch v.kind {
	case KindText, KindBlob:
		return v.bytes
	default:
		return nil
	}
}

// AsOwnedString returns a newly allocated copy of the Text value's
// contents. Named and cost-annotated per spec design notes: this is the
// one conversion allowed to allocate.
func (v Value) AsOwnedString() string {
	if v.kind != KindText {
		return ""
	}
	return string(v.bytes)
}

// AsOwnedBytes returns a newly allocated copy of a Text/Blob value.
func (v Value) AsOwnedBytes() []byte {
	b := v.BytesUnsafe()
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Equal reports value equality following SQLite's storage-class-aware
// comparison rules: NULL is never equal to anything (including NULL,
// per three-valued SQL logic at the comparison level used here — callers
// doing set semantics should use a dedicated null-aware comparator).
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	if (v.kind == KindInteger || v.kind == KindReal) && (o.kind == KindInteger || o.kind == KindReal) {
		return v.Float64() == o.Float64()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText, KindBlob:
		return string(v.bytes) == string(o.bytes)
	default:
		return false
	}
}

// Compare orders two values for ORDER BY / index-key purposes: NULL <
// numeric < TEXT < BLOB, matching SQLite's default type-affinity-free
// collation. Returns -1, 0, or 1.
func Compare(a, b Value) int {
	rank := func(k Kind) int {
		switch k {
		case KindNull:
			return 0
		case KindInteger, KindReal:
			return 1
		case KindText:
			return 2
		case KindBlob:
			return 3
		default:
			return 4
		}
	}
	ra, rb := rank(a.kind), rank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInteger, KindReal:
		af, bf := a.Float64(), b.Float64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case KindText, KindBlob:
		// Binary collation: raw byte order, no locale awareness.
		return compareBytes(a.bytes, b.bytes)
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// IsNaN reports whether v is a REAL holding NaN, useful for callers
// normalising numeric fingerprints (spec section 9).
func (v Value) IsNaN() bool {
	return v.kind == KindReal && math.IsNaN(v.f)
}
