package exec

import (
	"sharc/pkg/btree"
	"sharc/pkg/filter"
	"sharc/pkg/pagesource"
	"sharc/pkg/record"
	"sharc/pkg/schema"
	"sharc/pkg/serial"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// tableScanReader walks a table b-tree in ascending rowid order. Any
// predicate conjunct compileByteFilter can express is rejected against
// the row's raw payload bytes before a single column is decoded (spec
// section 4.4's "byte-level filter -> lazy record decoder" data flow);
// whatever's left over (residual) is evaluated on the decoded row, the
// same as the teacher's plain iterator. Grounded on the teacher's
// full-scan iterator in pkg/sql/executor/iterator.go.
type tableScanReader struct {
	cols       []string
	rowidAlias int
	cur        *btree.Cursor
	rowid      int64
	row        Row
	stats      *Stats
	typesBuf   []serial.Type
	compiled   *filter.Compiled
	residual   sqlparse.Expr
	pctx       *evalCtx
}

func newTableScan(src pagesource.PageSource, usable int, table *schema.TableDef, stats *Stats, predicate sqlparse.Expr, pctx *evalCtx) (*tableScanReader, error) {
	cur := btree.NewCursor(src, table.RootPage, usable)
	if err := cur.First(); err != nil {
		return nil, err
	}
	cols := table.ColumnNames()
	compiled, residual, err := compileByteFilter(predicate, cols, table.RowidAlias, pctx)
	if err != nil {
		return nil, err
	}
	return &tableScanReader{
		cols: cols, rowidAlias: table.RowidAlias, cur: cur, stats: stats,
		typesBuf: make([]serial.Type, len(table.Columns)),
		compiled: compiled, residual: residual, pctx: pctx,
	}, nil
}

func (r *tableScanReader) Columns() []string { return r.cols }
func (r *tableScanReader) Row() Row          { return r.row }
func (r *tableScanReader) Close() error      { return nil }

func (r *tableScanReader) Next() (bool, error) {
	for r.cur.Valid() {
		payload := r.cur.Payload()
		rowid := r.cur.Rowid()
		types := r.typesBuf
		n, bodyOffset, err := record.ReadSerialTypes(payload, types)
		if err != nil {
			return false, err
		}
		r.stats.PagesVisited++
		if r.compiled != nil && !filter.Evaluate(r.compiled, payload, types[:n], bodyOffset, rowid) {
			if err := r.cur.Next(); err != nil {
				return false, err
			}
			continue
		}
		row, err := decodeRowFromTypes(payload, r.cols, r.rowidAlias, rowid, types[:n], bodyOffset)
		if err != nil {
			return false, err
		}
		if r.residual != nil {
			ok, err := evalResidual(r.residual, r.cols, row, r.pctx)
			if err != nil {
				return false, err
			}
			if !ok {
				if err := r.cur.Next(); err != nil {
					return false, err
				}
				continue
			}
		}
		r.row = row
		r.rowid = rowid
		r.stats.RowsMaterialized++
		if err := r.cur.Next(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// decodeRowFromTypes decodes a row's named columns from a payload whose
// serial types and body offset have already been read (as both
// tableScanReader and indexScanReader must do anyway to run the
// byte-level filter first). A column with no stored serial type past
// the decoded header reads as NULL, except the INTEGER PRIMARY KEY
// rowid alias (rowidAlias, or -1 if none), which always reads as rowid
// per SQLite's rowid-aliasing rule.
func decodeRowFromTypes(payload []byte, cols []string, rowidAlias int, rowid int64, types []serial.Type, bodyOffset int) (Row, error) {
	n := len(types)
	row := make(Row, len(cols))
	for i := range cols {
		if i == rowidAlias {
			row[i] = sqlvalue.Int(rowid)
			continue
		}
		if i >= n {
			row[i] = sqlvalue.Null()
			continue
		}
		v, err := record.DecodeColumn(payload, i, types, bodyOffset)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// evalResidual evaluates pred (whatever compileByteFilter could not
// fold into the byte-level tree) against an already-decoded row.
func evalResidual(pred sqlparse.Expr, cols []string, row Row, pctx *evalCtx) (bool, error) {
	ctx := &evalCtx{cols: cols, row: row}
	if pctx != nil {
		ctx.named = pctx.named
		ctx.positional = pctx.positional
	}
	v, err := evalExpr(pred, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// indexScanReader seeks into an index b-tree, decodes each index key as a
// record whose trailing column is the table rowid (matching the
// table-rowid-appended index row layout spec section 4.9 describes), and
// resolves the full row from the owning table cursor.
//
// A true byte-comparable prefix seek (jumping SeekGE straight to the
// low bound) isn't used here: record.EncodeRecord's header-then-body
// layout is not byte-order-preserving across differing column counts
// or integer-width buckets, so a raw bytes.Compare against a
// hand-built partial key could skip rows that do belong in range.
// Instead the scan always starts at SeekGE(nil) (never misses a row)
// and bounds are enforced by decoding just the covered prefix columns
// of each key and comparing them against eqValues/range bounds: an
// entry below the low bound is skipped without being counted as
// visited, and the first entry past the high bound ends the scan, so
// IndexEntriesVisited still reflects a bounded walk rather than a full
// index traversal.
type indexScanReader struct {
	cols        []string
	rowidAlias  int
	ic          *btree.IndexCursor
	table       *btree.Cursor
	row         Row
	stats       *Stats
	typesBuf    []serial.Type
	rowTypesBuf []serial.Type
	compiled    *filter.Compiled
	residual    sqlparse.Expr
	pctx        *evalCtx
	bounds      []colBound
	done        bool
}

func newIndexScan(src pagesource.PageSource, usable int, table *schema.TableDef, idx *schema.IndexDef, stats *Stats, predicate sqlparse.Expr, pctx *evalCtx, covered int) (*indexScanReader, error) {
	ic := btree.NewIndexCursor(src, idx.RootPage, usable)
	if err := ic.SeekGE(nil); err != nil {
		return nil, err
	}
	tc := btree.NewCursor(src, table.RootPage, usable)
	cols := table.ColumnNames()
	compiled, residual, err := compileByteFilter(predicate, cols, table.RowidAlias, pctx)
	if err != nil {
		return nil, err
	}
	var bounds []colBound
	if covered > 0 && predicate != nil {
		bounds = indexBounds(predicate, idx, covered, pctx)
	}
	return &indexScanReader{
		cols: cols, rowidAlias: table.RowidAlias, ic: ic, table: tc, stats: stats,
		typesBuf:    make([]serial.Type, len(idx.Columns)+1),
		rowTypesBuf: make([]serial.Type, len(table.Columns)),
		compiled:    compiled, residual: residual, pctx: pctx, bounds: bounds,
	}, nil
}

func (r *indexScanReader) Columns() []string { return r.cols }
func (r *indexScanReader) Row() Row          { return r.row }
func (r *indexScanReader) Close() error      { return nil }

func (r *indexScanReader) Next() (bool, error) {
	if r.done {
		return false, nil
	}
	for r.ic.Valid() {
		key := r.ic.Key()
		types := r.typesBuf
		n, bodyOffset, err := record.ReadSerialTypes(key, types)
		if err != nil {
			return false, err
		}
		if n == 0 {
			if err := r.ic.Next(); err != nil {
				return false, err
			}
			continue
		}
		if len(r.bounds) > 0 {
			verdict, err := compareKeyBounds(key, types[:n], bodyOffset, r.bounds)
			if err != nil {
				return false, err
			}
			if verdict < 0 {
				if err := r.ic.Next(); err != nil {
					return false, err
				}
				continue
			}
			if verdict > 0 {
				r.done = true
				return false, nil
			}
		}
		rowid, err := record.DecodeInt64Direct(key, n-1, types[:n], bodyOffset)
		if err != nil {
			return false, err
		}
		r.stats.IndexEntriesVisited++
		if err := r.table.Seek(rowid); err != nil {
			if err == btree.ErrNotFound {
				if err := r.ic.Next(); err != nil {
					return false, err
				}
				continue
			}
			return false, err
		}
		payload := r.table.Payload()
		rtypes := r.rowTypesBuf
		rn, rBodyOffset, err := record.ReadSerialTypes(payload, rtypes)
		if err != nil {
			return false, err
		}
		if r.compiled != nil && !filter.Evaluate(r.compiled, payload, rtypes[:rn], rBodyOffset, rowid) {
			if err := r.ic.Next(); err != nil {
				return false, err
			}
			continue
		}
		row, err := decodeRowFromTypes(payload, r.cols, r.rowidAlias, rowid, rtypes[:rn], rBodyOffset)
		if err != nil {
			return false, err
		}
		if r.residual != nil {
			ok, err := evalResidual(r.residual, r.cols, row, r.pctx)
			if err != nil {
				return false, err
			}
			if !ok {
				if err := r.ic.Next(); err != nil {
					return false, err
				}
				continue
			}
		}
		r.row = row
		r.stats.RowsMaterialized++
		if err := r.ic.Next(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// compareKeyBounds decodes key's covered prefix columns (already known
// to exist: covered never exceeds the index's own column count) and
// compares them against bounds in column order. It returns -1 if key
// sorts before the bounded range (skip, uncounted), 1 if key sorts
// after it (the b-tree's ascending order means every later entry does
// too, so the scan can stop), or 0 if key is in range.
func compareKeyBounds(key []byte, types []serial.Type, bodyOffset int, bounds []colBound) (int, error) {
	for i, b := range bounds {
		v, err := record.DecodeColumn(key, i, types, bodyOffset)
		if err != nil {
			return 0, err
		}
		if b.hasEq {
			c := sqlvalue.Compare(v, b.eq)
			if c < 0 {
				return -1, nil
			}
			if c > 0 {
				return 1, nil
			}
			continue
		}
		if b.hasLow && sqlvalue.Compare(v, b.low) < 0 {
			return -1, nil
		}
		if b.hasHigh && sqlvalue.Compare(v, b.high) > 0 {
			return 1, nil
		}
	}
	return 0, nil
}
