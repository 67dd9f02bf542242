package btreepage

import (
	"encoding/binary"
	"testing"

	"sharc/internal/varint"
)

// buildLeafTablePage constructs a minimal valid leaf-table page with the
// given cells (rowid -> payload), useful across tests without needing a
// full b-tree writer.
func buildLeafTablePage(pageSize int, rows []struct {
	rowid   int64
	payload []byte
}) []byte {
	buf := make([]byte, pageSize)
	buf[0] = byte(TypeLeafTable)

	contentEnd := pageSize
	ptrs := make([]uint16, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		var tmp [varint.MaxLen * 2]byte
		n1 := varint.PutVarint(tmp[:], uint64(len(r.payload)))
		n2 := varint.PutVarintI64(tmp[n1:], r.rowid)
		cellLen := n1 + n2 + len(r.payload)
		contentEnd -= cellLen
		copy(buf[contentEnd:], tmp[:n1+n2])
		copy(buf[contentEnd+n1+n2:], r.payload)
		ptrs[i] = uint16(contentEnd)
	}

	binary.BigEndian.PutUint16(buf[1:3], 0)
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(rows)))
	binary.BigEndian.PutUint16(buf[5:7], uint16(contentEnd))
	buf[7] = 0

	ptrOff := leafHeaderSize
	for i, p := range ptrs {
		binary.BigEndian.PutUint16(buf[ptrOff+i*2:ptrOff+i*2+2], p)
	}
	return buf
}

func TestParseLeafTablePage(t *testing.T) {
	rows := []struct {
		rowid   int64
		payload []byte
	}{
		{1, []byte("alpha")},
		{2, []byte("beta")},
		{3, []byte("gamma-longer-payload")},
	}
	buf := buildLeafTablePage(512, rows)

	p, err := Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Type() != TypeLeafTable {
		t.Fatalf("Type() = %v, want TypeLeafTable", p.Type())
	}
	if p.CellCount() != len(rows) {
		t.Fatalf("CellCount() = %d, want %d", p.CellCount(), len(rows))
	}

	for i, want := range rows {
		cellBuf, err := p.CellBytes(i)
		if err != nil {
			t.Fatalf("CellBytes(%d): %v", i, err)
		}
		cell, _, err := ParseLeafTableCell(cellBuf, 512-35+20)
		if err != nil {
			t.Fatalf("ParseLeafTableCell(%d): %v", i, err)
		}
		if cell.Rowid != want.rowid {
			t.Errorf("cell %d rowid = %d, want %d", i, cell.Rowid, want.rowid)
		}
		if string(cell.Payload) != string(want.payload) {
			t.Errorf("cell %d payload = %q, want %q", i, cell.Payload, want.payload)
		}
	}
}

func TestParsePage1UsesHeaderOffset(t *testing.T) {
	const pageSize = 512
	rows := []struct {
		rowid   int64
		payload []byte
	}{{1, []byte("schema-row")}}

	// Cell pointer offsets in a real page-1 buffer are relative to the
	// start of the page (byte 0 of the 512-byte buffer), not the 100-byte
	// header, so this is built directly against the full buffer.
	full2 := make([]byte, pageSize)
	full2[100] = byte(TypeLeafTable)
	contentEnd := pageSize
	var tmp [varint.MaxLen * 2]byte
	n1 := varint.PutVarint(tmp[:], uint64(len(rows[0].payload)))
	n2 := varint.PutVarintI64(tmp[n1:], rows[0].rowid)
	cellLen := n1 + n2 + len(rows[0].payload)
	contentEnd -= cellLen
	copy(full2[contentEnd:], tmp[:n1+n2])
	copy(full2[contentEnd+n1+n2:], rows[0].payload)

	binary.BigEndian.PutUint16(full2[101:103], 0)
	binary.BigEndian.PutUint16(full2[103:105], 1)
	binary.BigEndian.PutUint16(full2[105:107], uint16(contentEnd))
	full2[107] = 0
	binary.BigEndian.PutUint16(full2[108:110], uint16(contentEnd))

	p, err := Parse(full2, 100)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.CellCount() != 1 {
		t.Fatalf("CellCount() = %d, want 1", p.CellCount())
	}
	cellBuf, err := p.CellBytes(0)
	if err != nil {
		t.Fatalf("CellBytes: %v", err)
	}
	cell, _, err := ParseLeafTableCell(cellBuf, pageSize-35+20)
	if err != nil {
		t.Fatalf("ParseLeafTableCell: %v", err)
	}
	if string(cell.Payload) != "schema-row" {
		t.Errorf("payload = %q, want schema-row", cell.Payload)
	}
}

func TestParseRejectsBadPageType(t *testing.T) {
	buf := make([]byte, 64)
	buf[0] = 0xFF
	if _, err := Parse(buf, 0); err != ErrBadPageType {
		t.Errorf("Parse with bad type byte: got %v, want ErrBadPageType", err)
	}
}

func TestParseRejectsTruncatedBuffer(t *testing.T) {
	buf := make([]byte, 4)
	buf[0] = byte(TypeLeafTable)
	if _, err := Parse(buf, 0); err != ErrTruncatedPage {
		t.Errorf("Parse with short buffer: got %v, want ErrTruncatedPage", err)
	}
}

func TestInteriorTableCellRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], 42)
	n := varint.PutVarintI64(buf[4:], 1000)
	cell, consumed, err := ParseInteriorTableCell(buf[:4+n])
	if err != nil {
		t.Fatalf("ParseInteriorTableCell: %v", err)
	}
	if cell.LeftChild != 42 || cell.Rowid != 1000 {
		t.Errorf("cell = %+v, want LeftChild=42 Rowid=1000", cell)
	}
	if consumed != 4+n {
		t.Errorf("consumed = %d, want %d", consumed, 4+n)
	}
}

func TestLocalPayloadSizeNoOverflowForSmallPayload(t *testing.T) {
	local, overflow := localPayloadSize(10, 4096, true)
	if overflow {
		t.Errorf("expected no overflow for a 10-byte payload on a 4096 usable page")
	}
	if local != 10 {
		t.Errorf("local = %d, want 10", local)
	}
}

func TestLocalPayloadSizeOverflowsForLargePayload(t *testing.T) {
	local, overflow := localPayloadSize(100000, 4096, true)
	if !overflow {
		t.Fatalf("expected overflow for a 100000-byte payload")
	}
	maxLocal := 4096 - 35
	if local > maxLocal {
		t.Errorf("local = %d exceeds maxLocal %d", local, maxLocal)
	}
}

func TestFreeblocksWalksChain(t *testing.T) {
	buf := make([]byte, 256)
	buf[0] = byte(TypeLeafTable)
	binary.BigEndian.PutUint16(buf[1:3], 100) // first freeblock at offset 100
	binary.BigEndian.PutUint16(buf[3:5], 0)
	binary.BigEndian.PutUint16(buf[5:7], 256)
	buf[7] = 0

	// Freeblock at 100: next=200, size=10.
	binary.BigEndian.PutUint16(buf[100:102], 200)
	binary.BigEndian.PutUint16(buf[102:104], 10)
	// Freeblock at 200: next=0 (end), size=20.
	binary.BigEndian.PutUint16(buf[200:202], 0)
	binary.BigEndian.PutUint16(buf[202:204], 20)

	p, err := Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var offsets, sizes []int
	err = p.Freeblocks(func(offset, size int) bool {
		offsets = append(offsets, offset)
		sizes = append(sizes, size)
		return true
	})
	if err != nil {
		t.Fatalf("Freeblocks: %v", err)
	}
	if len(offsets) != 2 || offsets[0] != 100 || offsets[1] != 200 {
		t.Errorf("offsets = %v, want [100 200]", offsets)
	}
	if len(sizes) != 2 || sizes[0] != 10 || sizes[1] != 20 {
		t.Errorf("sizes = %v, want [10 20]", sizes)
	}
}
