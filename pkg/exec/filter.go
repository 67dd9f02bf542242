package exec

import "sharc/pkg/sqlparse"

// filterReader wraps a child Reader, yielding only rows for which
// predicate evaluates truthy.
type filterReader struct {
	child     Reader
	predicate sqlparse.Expr
	params    *evalCtx
}

func newFilter(child Reader, predicate sqlparse.Expr, params *evalCtx) *filterReader {
	return &filterReader{child: child, predicate: predicate, params: params}
}

func (r *filterReader) Columns() []string { return r.child.Columns() }
func (r *filterReader) Row() Row          { return r.child.Row() }
func (r *filterReader) Close() error      { return r.child.Close() }

func (r *filterReader) Next() (bool, error) {
	for {
		ok, err := r.child.Next()
		if err != nil || !ok {
			return ok, err
		}
		ctx := &evalCtx{cols: r.child.Columns(), row: r.child.Row(), named: r.params.named, positional: r.params.positional}
		v, err := evalExpr(r.predicate, ctx)
		if err != nil {
			return false, err
		}
		if truthy(v) {
			return true, nil
		}
	}
}
