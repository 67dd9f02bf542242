package exec

import (
	"sharc/pkg/filter"
	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// colBound is one index column's resolved seek bound: either a pinned
// equality value, or an inclusive [low, high] range, built from the actual bound
// parameter/literal values at execution time (the planner only knows
// which columns are sargable, not their values).
type colBound struct {
	eq      sqlvalue.Value
	hasEq   bool
	low     sqlvalue.Value
	hasLow  bool
	high    sqlvalue.Value
	hasHigh bool
}

// indexBounds resolves a colBound for each of idx's leading covered
// columns against where's actual conjuncts, using ctx to fold any
// bound parameters referenced there.
func indexBounds(where sqlparse.Expr, idx *schema.IndexDef, covered int, ctx *evalCtx) []colBound {
	bounds := make([]colBound, covered)
	for i := 0; i < covered; i++ {
		bounds[i] = collectColBound(where, idx.Columns[i], ctx)
	}
	return bounds
}

// collectColBound scans where's top-level AND conjuncts for every
// comparison or BETWEEN pinning col, merging them into one colBound.
func collectColBound(where sqlparse.Expr, col string, ctx *evalCtx) colBound {
	var b colBound
	for _, c := range flattenAnd(where) {
		switch v := c.(type) {
		case *sqlparse.BinaryExpr:
			switch v.Op {
			case sqlparse.TokEq, sqlparse.TokLt, sqlparse.TokLte, sqlparse.TokGt, sqlparse.TokGte:
				name, op, val, ok := colConst(v, ctx)
				if !ok || name != col {
					continue
				}
				switch op {
				case filter.OpEQ:
					b.eq, b.hasEq = val, true
				case filter.OpGT, filter.OpGE:
					b.low, b.hasLow = val, true
				case filter.OpLT, filter.OpLE:
					b.high, b.hasHigh = val, true
				}
			}
		case *sqlparse.BetweenExpr:
			if v.Not {
				continue
			}
			colRef, ok := v.Expr.(*sqlparse.ColumnRef)
			if !ok || colRef.Column != col {
				continue
			}
			if lo, ok := constValue(v.Lo, ctx); ok {
				b.low, b.hasLow = lo, true
			}
			if hi, ok := constValue(v.Hi, ctx); ok {
				b.high, b.hasHigh = hi, true
			}
		}
	}
	return b
}

// colConst extracts (column, operator, constant) from a binary
// comparison whose other side is a column reference, flipping the
// operator when the column is on the right (`5 < price` is `price > 5`).
func colConst(v *sqlparse.BinaryExpr, ctx *evalCtx) (string, filter.Op, sqlvalue.Value, bool) {
	op := toFilterOp(v.Op)
	if col, ok := v.Left.(*sqlparse.ColumnRef); ok {
		if val, ok := constValue(v.Right, ctx); ok {
			return col.Column, op, val, true
		}
		return "", 0, sqlvalue.Value{}, false
	}
	if col, ok := v.Right.(*sqlparse.ColumnRef); ok {
		if val, ok := constValue(v.Left, ctx); ok {
			return col.Column, flipOp(op), val, true
		}
	}
	return "", 0, sqlvalue.Value{}, false
}
