package exec

import "sharc/pkg/sqlparse"

// projectReader evaluates a result column list over its child, expanding
// `*` (and `alias.*`) into every one of the child's columns in place.
type projectReader struct {
	child   Reader
	columns []sqlparse.ResultColumn
	outCols []string
	row     Row
	params  *evalCtx
}

func newProject(child Reader, columns []sqlparse.ResultColumn, params *evalCtx) *projectReader {
	var outCols []string
	for i, c := range columns {
		if c.Star {
			outCols = append(outCols, child.Columns()...)
			continue
		}
		outCols = append(outCols, resultColumnName(c, i))
	}
	return &projectReader{child: child, columns: columns, outCols: outCols, params: params}
}

func (r *projectReader) Columns() []string { return r.outCols }
func (r *projectReader) Row() Row          { return r.row }
func (r *projectReader) Close() error      { return r.child.Close() }

func (r *projectReader) Next() (bool, error) {
	ok, err := r.child.Next()
	if err != nil || !ok {
		return ok, err
	}
	childRow := r.child.Row()
	ctx := &evalCtx{cols: r.child.Columns(), row: childRow, named: r.params.named, positional: r.params.positional}

	row := make(Row, 0, len(r.outCols))
	for _, c := range r.columns {
		if c.Star {
			row = append(row, childRow...)
			continue
		}
		v, err := evalExpr(c.Expr, ctx)
		if err != nil {
			return false, err
		}
		row = append(row, v)
	}
	r.row = row
	return true, nil
}
