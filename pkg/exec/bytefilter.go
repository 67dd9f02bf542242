package exec

import (
	"strings"

	"sharc/pkg/filter"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// compileByteFilter splits pred's top-level AND conjuncts into a
// compiled byte-level filter tree (spec section 4.12: evaluated
// directly against raw record bytes, before any column is decoded)
// plus a residual sqlparse.Expr for whatever conjunct can't be
// expressed that way — OR chains over non-column operands, function
// calls, subqueries, column-to-column comparisons. ctx supplies bound
// parameter values so `col = $price` folds to a constant the same way
// a literal does.
func compileByteFilter(pred sqlparse.Expr, cols []string, rowidAlias int, ctx *evalCtx) (*filter.Compiled, sqlparse.Expr, error) {
	if pred == nil {
		return nil, nil, nil
	}
	var byteNodes []*filter.Node
	var residual []sqlparse.Expr
	for _, c := range flattenAnd(pred) {
		if n, ok := toFilterNode(c, ctx); ok {
			byteNodes = append(byteNodes, n)
		} else {
			residual = append(residual, c)
		}
	}
	if len(byteNodes) == 0 {
		return nil, pred, nil
	}
	tree := byteNodes[0]
	for _, n := range byteNodes[1:] {
		tree = &filter.Node{Kind: filter.KindAnd, Children: []*filter.Node{tree, n}}
	}
	compiled, err := filter.Compile(tree, cols, rowidAlias)
	if err != nil {
		// A conjunct referenced a column outside cols (e.g. a join
		// alias this scan doesn't own); evaluate the whole predicate
		// post-decode instead of failing the query.
		return nil, pred, nil
	}
	return compiled, rebuildAnd(residual), nil
}

func flattenAnd(e sqlparse.Expr) []sqlparse.Expr {
	be, ok := e.(*sqlparse.BinaryExpr)
	if !ok || be.Op != sqlparse.TokAnd {
		return []sqlparse.Expr{e}
	}
	return append(flattenAnd(be.Left), flattenAnd(be.Right)...)
}

func rebuildAnd(exprs []sqlparse.Expr) sqlparse.Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &sqlparse.BinaryExpr{Left: out, Op: sqlparse.TokAnd, Right: e}
	}
	return out
}

// toFilterNode translates one WHERE conjunct into a filter.Node when
// its shape is byte-level evaluable: a column compared against a
// constant (literal or bound parameter), not a computed expression or
// a column-to-column comparison.
func toFilterNode(e sqlparse.Expr, ctx *evalCtx) (*filter.Node, bool) {
	switch v := e.(type) {
	case *sqlparse.BinaryExpr:
		switch v.Op {
		case sqlparse.TokAnd, sqlparse.TokOr:
			l, ok := toFilterNode(v.Left, ctx)
			if !ok {
				return nil, false
			}
			r, ok := toFilterNode(v.Right, ctx)
			if !ok {
				return nil, false
			}
			kind := filter.KindAnd
			if v.Op == sqlparse.TokOr {
				kind = filter.KindOr
			}
			return &filter.Node{Kind: kind, Children: []*filter.Node{l, r}}, true
		case sqlparse.TokEq, sqlparse.TokNeq, sqlparse.TokLt, sqlparse.TokLte, sqlparse.TokGt, sqlparse.TokGte:
			return toCompareNode(v, ctx)
		case sqlparse.TokLike:
			return toLikeNode(v, ctx)
		}
		return nil, false
	case *sqlparse.UnaryExpr:
		if v.Op != sqlparse.TokNot {
			return nil, false
		}
		inner, ok := toFilterNode(v.Expr, ctx)
		if !ok {
			return nil, false
		}
		return &filter.Node{Kind: filter.KindNot, Children: []*filter.Node{inner}}, true
	case *sqlparse.BetweenExpr:
		col, ok := v.Expr.(*sqlparse.ColumnRef)
		if !ok {
			return nil, false
		}
		lo, ok := constValue(v.Lo, ctx)
		if !ok {
			return nil, false
		}
		hi, ok := constValue(v.Hi, ctx)
		if !ok {
			return nil, false
		}
		n := &filter.Node{Kind: filter.KindBetween, Column: col.Column, Low: lo, High: hi}
		if v.Not {
			n = &filter.Node{Kind: filter.KindNot, Children: []*filter.Node{n}}
		}
		return n, true
	case *sqlparse.IsNullExpr:
		col, ok := v.Expr.(*sqlparse.ColumnRef)
		if !ok {
			return nil, false
		}
		kind := filter.KindIsNull
		if v.Not {
			kind = filter.KindIsNotNull
		}
		return &filter.Node{Kind: kind, Column: col.Column}, true
	case *sqlparse.InExpr:
		col, ok := v.Expr.(*sqlparse.ColumnRef)
		if !ok {
			return nil, false
		}
		set := make([]sqlvalue.Value, 0, len(v.List))
		for _, item := range v.List {
			val, ok := constValue(item, ctx)
			if !ok {
				return nil, false
			}
			set = append(set, val)
		}
		kind := filter.KindIn
		if v.Not {
			kind = filter.KindNotIn
		}
		return &filter.Node{Kind: kind, Column: col.Column, Set: set}, true
	}
	return nil, false
}

func toCompareNode(v *sqlparse.BinaryExpr, ctx *evalCtx) (*filter.Node, bool) {
	col, op, val, ok := colConst(v, ctx)
	if !ok {
		return nil, false
	}
	return &filter.Node{Kind: filter.KindCompare, Column: col, Op: op, Value: val}, true
}

func toFilterOp(t sqlparse.TokenType) filter.Op {
	switch t {
	case sqlparse.TokEq:
		return filter.OpEQ
	case sqlparse.TokNeq:
		return filter.OpNE
	case sqlparse.TokLt:
		return filter.OpLT
	case sqlparse.TokLte:
		return filter.OpLE
	case sqlparse.TokGt:
		return filter.OpGT
	case sqlparse.TokGte:
		return filter.OpGE
	}
	return filter.OpEQ
}

// flipOp mirrors an operator when the column turns out to be on the
// right-hand side of the comparison (`5 < price` becomes `price > 5`).
func flipOp(op filter.Op) filter.Op {
	switch op {
	case filter.OpLT:
		return filter.OpGT
	case filter.OpLE:
		return filter.OpGE
	case filter.OpGT:
		return filter.OpLT
	case filter.OpGE:
		return filter.OpLE
	}
	return op
}

// toLikeNode handles the sargable LIKE shapes the byte-level filter
// tree can express directly: a bare prefix ('A%'), suffix ('%A'), or
// substring ('%A%') pattern with no other wildcard runs. Anything more
// general (e.g. 'A_B%') falls through to the residual, decoded-row
// evaluator.
func toLikeNode(v *sqlparse.BinaryExpr, ctx *evalCtx) (*filter.Node, bool) {
	col, ok := v.Left.(*sqlparse.ColumnRef)
	if !ok {
		return nil, false
	}
	pat, ok := constValue(v.Right, ctx)
	if !ok || pat.Kind() != sqlvalue.KindText {
		return nil, false
	}
	pattern := string(pat.AsOwnedBytes())
	lead := strings.HasPrefix(pattern, "%")
	trail := strings.HasSuffix(pattern, "%")
	core := strings.Trim(pattern, "%")
	if strings.ContainsAny(core, "%_") {
		return nil, false
	}
	switch {
	case lead && trail:
		return &filter.Node{Kind: filter.KindContains, Column: col.Column, Value: sqlvalue.Text(core)}, true
	case trail:
		return &filter.Node{Kind: filter.KindStartsWith, Column: col.Column, Value: sqlvalue.Text(core)}, true
	case lead:
		return &filter.Node{Kind: filter.KindEndsWith, Column: col.Column, Value: sqlvalue.Text(core)}, true
	default:
		return &filter.Node{Kind: filter.KindCompare, Column: col.Column, Op: filter.OpEQ, Value: sqlvalue.Text(core)}, true
	}
}

// constValue resolves e to a constant sqlvalue.Value usable in a
// byte-level filter node: a literal, or a bound parameter. Column
// references and computed expressions are not constant.
func constValue(e sqlparse.Expr, ctx *evalCtx) (sqlvalue.Value, bool) {
	switch v := e.(type) {
	case *sqlparse.Literal:
		val, err := evalExpr(v, nil)
		if err != nil {
			return sqlvalue.Value{}, false
		}
		return val, true
	case *sqlparse.Param:
		if ctx == nil {
			return sqlvalue.Value{}, false
		}
		val, err := evalExpr(v, ctx)
		if err != nil {
			return sqlvalue.Value{}, false
		}
		return val, true
	}
	return sqlvalue.Value{}, false
}
