package exec

import "sharc/pkg/sqlparse"

// nestedLoopJoinReader evaluates Right once per Left row, matching the
// teacher's executor for joins: no hash build side, a residual predicate
// applied row-by-row. Grounded on spec section 4.15's single-join-level
// NestedLoopJoin operator (no multi-way join planning).
type nestedLoopJoinReader struct {
	left, right Reader
	rightOpen   func() (Reader, error)
	on          sqlparse.Expr
	kind        joinKind
	cols        []string
	params      *evalCtx

	leftRow     Row
	haveLeft    bool
	matchedLeft bool
	row         Row
}

type joinKind int

const (
	joinInner joinKind = iota
	joinLeft
)

func newNestedLoopJoin(left Reader, rightOpen func() (Reader, error), on sqlparse.Expr, kind joinKind, params *evalCtx) (*nestedLoopJoinReader, error) {
	right, err := rightOpen()
	if err != nil {
		return nil, err
	}
	cols := append(append([]string{}, left.Columns()...), right.Columns()...)
	right.Close()
	return &nestedLoopJoinReader{left: left, rightOpen: rightOpen, on: on, kind: kind, cols: cols, params: params}, nil
}

func (r *nestedLoopJoinReader) Columns() []string { return r.cols }
func (r *nestedLoopJoinReader) Row() Row          { return r.row }
func (r *nestedLoopJoinReader) Close() error {
	if r.right != nil {
		r.right.Close()
	}
	return r.left.Close()
}

func (r *nestedLoopJoinReader) Next() (bool, error) {
	for {
		if !r.haveLeft {
			ok, err := r.left.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			r.leftRow = append(Row(nil), r.left.Row()...)
			r.haveLeft = true
			r.matchedLeft = false
			if r.right != nil {
				r.right.Close()
			}
			var err2 error
			r.right, err2 = r.rightOpen()
			if err2 != nil {
				return false, err2
			}
		}

		ok, err := r.right.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			r.haveLeft = false
			if r.kind == joinLeft && !r.matchedLeft {
				nullRight := make(Row, len(r.right.Columns()))
				combined := append(append(Row(nil), r.leftRow...), nullRight...)
				r.row = combined
				return true, nil
			}
			continue
		}

		rightRow := r.right.Row()
		combined := append(append(Row(nil), r.leftRow...), rightRow...)
		ctx := &evalCtx{cols: r.cols, row: combined, named: r.params.named, positional: r.params.positional}
		v, err := evalExpr(r.on, ctx)
		if err != nil {
			return false, err
		}
		if !truthy(v) {
			continue
		}
		r.matchedLeft = true
		r.row = combined
		return true, nil
	}
}
