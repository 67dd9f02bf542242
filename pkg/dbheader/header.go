// Package dbheader codes the 100-byte SQLite database file header that
// occupies the first bytes of page 1, per spec section 3.
package dbheader

import (
	"encoding/binary"
	"errors"
)

// Size is the fixed header length in bytes.
const Size = 100

// Magic is the 16-byte magic string every valid file begins with.
const Magic = "SQLite format 3\x00"

// DefaultPageSize is used for newly created databases when the caller
// does not specify one.
const DefaultPageSize = 4096

// Field byte offsets within the 100-byte header, per the SQLite file
// format (all multi-byte integers are big-endian).
const (
	offMagic             = 0  // 16 bytes
	offPageSize          = 16 // 2 bytes; stored as 1 when page size is 65536
	offWriteVersion      = 18 // 1 byte
	offReadVersion       = 19 // 1 byte
	offReservedBytes     = 20 // 1 byte
	offMaxPayloadFrac    = 21 // 1 byte, always 64
	offMinPayloadFrac    = 22 // 1 byte, always 32
	offLeafPayloadFrac   = 23 // 1 byte, always 32
	offChangeCounter     = 24 // 4 bytes
	offPageCount         = 28 // 4 bytes
	offFreelistTrunk     = 32 // 4 bytes
	offFreelistCount     = 36 // 4 bytes
	offSchemaCookie      = 40 // 4 bytes
	offSchemaFormat      = 44 // 4 bytes
	offDefaultCacheSize  = 48 // 4 bytes
	offLargestRootPage   = 52 // 4 bytes (incremental-vacuum only; unused)
	offTextEncoding      = 56 // 4 bytes; 1 = UTF-8 (Decode also accepts 0, rejects any other value)
	offUserVersion       = 60 // 4 bytes
	offIncrementalVacuum = 64 // 4 bytes
	offApplicationID     = 68 // 4 bytes
	// 72..91 reserved for expansion, always zero.
	offVersionValidFor = 92 // 4 bytes
	offSQLiteVersion   = 96 // 4 bytes
)

var (
	// ErrHeaderTooShort is returned when fewer than Size bytes are given.
	ErrHeaderTooShort = errors.New("dbheader: fewer than 100 bytes")
	// ErrBadMagic is returned when the 16-byte magic string doesn't match.
	ErrBadMagic = errors.New("dbheader: bad magic string")
	// ErrBadPageSize is returned when the page size is not a power of two
	// in [512, 65536].
	ErrBadPageSize = errors.New("dbheader: page size must be a power of two in [512, 65536]")
	// ErrUnsupportedEncoding is returned for any text encoding other than
	// UTF-8; UTF-16 is explicitly out of scope (spec section 1).
	ErrUnsupportedEncoding = errors.New("dbheader: only UTF-8 text encoding is supported")
)

// Header is the parsed form of the 100-byte database header.
type Header struct {
	PageSize           uint32 // always the real page size, 512..65536
	WriteVersion       uint8
	ReadVersion        uint8
	ReservedBytes      uint8
	ChangeCounter      uint32
	PageCount          uint32
	FreelistTrunk      uint32
	FreelistCount      uint32
	SchemaCookie       uint32
	SchemaFormat       uint32
	DefaultCacheSize   uint32
	TextEncoding       uint32
	UserVersion        uint32
	IncrementalVacuum  uint32
	ApplicationID      uint32
	VersionValidFor    uint32
	SQLiteVersionNum   uint32
}

// UsablePageSize returns PageSize minus ReservedBytes, the bytes actually
// available to b-tree page content, per spec section 3's invariant.
func (h *Header) UsablePageSize() int {
	return int(h.PageSize) - int(h.ReservedBytes)
}

// New returns a header with SQLite's standard defaults for a freshly
// created database of the given page size.
func New(pageSize uint32) *Header {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &Header{
		PageSize:         pageSize,
		WriteVersion:     1,
		ReadVersion:      1,
		PageCount:        1,
		SchemaFormat:     4,
		DefaultCacheSize: 0,
		TextEncoding:     1, // UTF-8
		SQLiteVersionNum: 3045000,
	}
}

// Encode serializes h to a 100-byte big-endian buffer.
func (h *Header) Encode() []byte {
	buf := make([]byte, Size)
	copy(buf[offMagic:], Magic)

	storedPageSize := uint16(h.PageSize)
	if h.PageSize == 65536 {
		storedPageSize = 1
	}
	binary.BigEndian.PutUint16(buf[offPageSize:], storedPageSize)

	buf[offWriteVersion] = h.WriteVersion
	buf[offReadVersion] = h.ReadVersion
	buf[offReservedBytes] = h.ReservedBytes
	buf[offMaxPayloadFrac] = 64
	buf[offMinPayloadFrac] = 32
	buf[offLeafPayloadFrac] = 32

	binary.BigEndian.PutUint32(buf[offChangeCounter:], h.ChangeCounter)
	binary.BigEndian.PutUint32(buf[offPageCount:], h.PageCount)
	binary.BigEndian.PutUint32(buf[offFreelistTrunk:], h.FreelistTrunk)
	binary.BigEndian.PutUint32(buf[offFreelistCount:], h.FreelistCount)
	binary.BigEndian.PutUint32(buf[offSchemaCookie:], h.SchemaCookie)
	binary.BigEndian.PutUint32(buf[offSchemaFormat:], h.SchemaFormat)
	binary.BigEndian.PutUint32(buf[offDefaultCacheSize:], h.DefaultCacheSize)
	binary.BigEndian.PutUint32(buf[offTextEncoding:], h.TextEncoding)
	binary.BigEndian.PutUint32(buf[offUserVersion:], h.UserVersion)
	binary.BigEndian.PutUint32(buf[offIncrementalVacuum:], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(buf[offApplicationID:], h.ApplicationID)
	binary.BigEndian.PutUint32(buf[offVersionValidFor:], h.VersionValidFor)
	binary.BigEndian.PutUint32(buf[offSQLiteVersion:], h.SQLiteVersionNum)

	return buf
}

// Decode parses a 100-byte header, validating the magic string, page size,
// and text encoding.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < Size {
		return nil, ErrHeaderTooShort
	}
	if string(buf[offMagic:offMagic+16]) != Magic {
		return nil, ErrBadMagic
	}

	storedPageSize := binary.BigEndian.Uint16(buf[offPageSize:])
	pageSize := uint32(storedPageSize)
	if storedPageSize == 1 {
		pageSize = 65536
	}
	if !validPageSize(pageSize) {
		return nil, ErrBadPageSize
	}

	h := &Header{
		PageSize:          pageSize,
		WriteVersion:      buf[offWriteVersion],
		ReadVersion:       buf[offReadVersion],
		ReservedBytes:     buf[offReservedBytes],
		ChangeCounter:     binary.BigEndian.Uint32(buf[offChangeCounter:]),
		PageCount:         binary.BigEndian.Uint32(buf[offPageCount:]),
		FreelistTrunk:     binary.BigEndian.Uint32(buf[offFreelistTrunk:]),
		FreelistCount:     binary.BigEndian.Uint32(buf[offFreelistCount:]),
		SchemaCookie:      binary.BigEndian.Uint32(buf[offSchemaCookie:]),
		SchemaFormat:      binary.BigEndian.Uint32(buf[offSchemaFormat:]),
		DefaultCacheSize:  binary.BigEndian.Uint32(buf[offDefaultCacheSize:]),
		TextEncoding:      binary.BigEndian.Uint32(buf[offTextEncoding:]),
		UserVersion:       binary.BigEndian.Uint32(buf[offUserVersion:]),
		IncrementalVacuum: binary.BigEndian.Uint32(buf[offIncrementalVacuum:]),
		ApplicationID:     binary.BigEndian.Uint32(buf[offApplicationID:]),
		VersionValidFor:   binary.BigEndian.Uint32(buf[offVersionValidFor:]),
		SQLiteVersionNum:  binary.BigEndian.Uint32(buf[offSQLiteVersion:]),
	}

	if h.TextEncoding != 0 && h.TextEncoding != 1 {
		return nil, ErrUnsupportedEncoding
	}

	return h, nil
}

// BumpSchemaCookie increments the schema cookie field in place within a
// buffer holding (at least) the 100-byte header, so callers that
// already hold page 1's raw bytes (the schema b-tree page) don't need
// to decode and re-encode the whole header for a one-field mutation.
func BumpSchemaCookie(buf []byte) {
	v := binary.BigEndian.Uint32(buf[offSchemaCookie:])
	binary.BigEndian.PutUint32(buf[offSchemaCookie:], v+1)
}

// BumpChangeCounter increments the change-counter field in place,
// same rationale as BumpSchemaCookie: every committed write bumps it
// per spec section 6.
func BumpChangeCounter(buf []byte) {
	v := binary.BigEndian.Uint32(buf[offChangeCounter:])
	binary.BigEndian.PutUint32(buf[offChangeCounter:], v+1)
}

func validPageSize(n uint32) bool {
	if n < 512 || n > 65536 {
		return false
	}
	return n&(n-1) == 0
}
