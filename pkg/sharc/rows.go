package sharc

import (
	"sync"

	"sharc/pkg/exec"
	"sharc/pkg/sharcerr"
	"sharc/pkg/sqlvalue"
)

// rowsPool reuses *Rows across queries, the same sync.Pool shape
// mjm918-tur/pkg/turdb/rows.go uses for its own Rows allocations.
var rowsPool = sync.Pool{New: func() interface{} { return &Rows{} }}

// Rows is the result of a Query. Callers must call Close when done;
// exhausting Next does not close the Rows. Failing to close leaks the
// underlying exec.Reader's cursor state but not process memory.
type Rows struct {
	reader  exec.Reader
	stats   *exec.Stats
	started bool
	closed  bool
	err     error
}

func newRows(reader exec.Reader, stats *exec.Stats) *Rows {
	r := rowsPool.Get().(*Rows)
	r.reader = reader
	r.stats = stats
	r.started = false
	r.closed = false
	r.err = nil
	return r
}

// Next advances to the next row. It returns false at end of results or
// on error; callers distinguish the two with Err.
func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	ok, err := r.reader.Next()
	if err != nil {
		r.err = sharcerr.Classify(err)
		return false
	}
	r.started = ok
	return ok
}

// Err returns the first error encountered during iteration, if any.
func (r *Rows) Err() error { return r.err }

// Columns returns the result set's column names, stable for the
// lifetime of the Rows.
func (r *Rows) Columns() []string { return r.reader.Columns() }

// Stats reports the page/index/row counters accumulated while
// executing the query, per spec section 8's scenario 6 visit-count
// assertions.
func (r *Rows) Stats() exec.Stats { return *r.stats }

// Scan copies the current row's values into dest, one
// *sqlvalue.Value per selected column.
func (r *Rows) Scan(dest ...*sqlvalue.Value) error {
	if !r.started {
		return sharcerr.Wrap(sharcerr.InvalidOperation, errScanBeforeNext)
	}
	row := r.reader.Row()
	if len(dest) != len(row) {
		return sharcerr.New(sharcerr.InvalidOperation, "sharc: Scan argument count does not match column count")
	}
	for i, d := range dest {
		*d = row[i]
	}
	return nil
}

// Value returns the current row's value at ordinal i without a Scan
// destination slice, a convenience for single-column or ad hoc reads.
func (r *Rows) Value(i int) sqlvalue.Value {
	return r.reader.Row()[i]
}

// Close releases the Rows back to its pool. Safe to call more than
// once; subsequent Next calls return false.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.reader.Close()
	r.reader = nil
	r.stats = nil
	rowsPool.Put(r)
	if err != nil {
		return sharcerr.Classify(err)
	}
	return nil
}
