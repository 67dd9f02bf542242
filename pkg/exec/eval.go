package exec

import (
	"fmt"
	"strings"

	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// evalCtx binds a row to its column names plus the statement's parameter
// values, so evalExpr can resolve both sqlparse.ColumnRef and
// sqlparse.Param nodes.
type evalCtx struct {
	cols       []string
	row        Row
	named      map[string]sqlvalue.Value
	positional []sqlvalue.Value
}

func (c *evalCtx) column(table, name string) (sqlvalue.Value, error) {
	for i, col := range c.cols {
		if col == name {
			return c.row[i], nil
		}
	}
	return sqlvalue.Value{}, fmt.Errorf("exec: unknown column %q", name)
}

// evalExpr evaluates a scalar sqlparse.Expr against ctx. Comparisons
// against NULL are false (not three-valued unknown), matching spec
// section 4.12's filter semantics carried through to general expression
// evaluation.
func evalExpr(e sqlparse.Expr, ctx *evalCtx) (sqlvalue.Value, error) {
	switch v := e.(type) {
	case nil:
		return sqlvalue.Int(1), nil
	case *sqlparse.Literal:
		switch {
		case v.IsNull:
			return sqlvalue.Null(), nil
		case v.IsBool:
			if v.Bool {
				return sqlvalue.Int(1), nil
			}
			return sqlvalue.Int(0), nil
		case v.IsInt:
			return sqlvalue.Int(v.Int), nil
		case v.IsReal:
			return sqlvalue.Real(v.Float), nil
		case v.IsStr:
			return sqlvalue.Text(v.Str), nil
		}
		return sqlvalue.Null(), nil

	case *sqlparse.ColumnRef:
		return ctx.column(v.Table, v.Column)

	case *sqlparse.Param:
		if v.Name != "" {
			if val, ok := ctx.named[v.Name]; ok {
				return val, nil
			}
			return sqlvalue.Value{}, fmt.Errorf("exec: unbound parameter $%s", v.Name)
		}
		if v.Position-1 < len(ctx.positional) && v.Position >= 1 {
			return ctx.positional[v.Position-1], nil
		}
		return sqlvalue.Value{}, fmt.Errorf("exec: unbound parameter ?%d", v.Position)

	case *sqlparse.UnaryExpr:
		inner, err := evalExpr(v.Expr, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		switch v.Op {
		case sqlparse.TokMinus:
			if inner.Kind() == sqlvalue.KindReal {
				return sqlvalue.Real(-inner.Float64()), nil
			}
			return sqlvalue.Int(-inner.Int64()), nil
		case sqlparse.TokNot:
			return boolValue(!truthy(inner)), nil
		}
		return sqlvalue.Value{}, fmt.Errorf("exec: unsupported unary operator")

	case *sqlparse.BinaryExpr:
		return evalBinary(v, ctx)

	case *sqlparse.IsNullExpr:
		inner, err := evalExpr(v.Expr, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		isNull := inner.IsNull()
		if v.Not {
			isNull = !isNull
		}
		return boolValue(isNull), nil

	case *sqlparse.BetweenExpr:
		val, err := evalExpr(v.Expr, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		lo, err := evalExpr(v.Lo, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		hi, err := evalExpr(v.Hi, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		if val.IsNull() || lo.IsNull() || hi.IsNull() {
			return boolValue(v.Not), nil
		}
		inRange := sqlvalue.Compare(val, lo) >= 0 && sqlvalue.Compare(val, hi) <= 0
		if v.Not {
			inRange = !inRange
		}
		return boolValue(inRange), nil

	case *sqlparse.InExpr:
		val, err := evalExpr(v.Expr, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		found := false
		if !val.IsNull() {
			for _, item := range v.List {
				iv, err := evalExpr(item, ctx)
				if err != nil {
					return sqlvalue.Value{}, err
				}
				if !iv.IsNull() && sqlvalue.Compare(val, iv) == 0 {
					found = true
					break
				}
			}
		}
		if v.Not {
			found = !found
		}
		return boolValue(found), nil

	case *sqlparse.AggregateExpr:
		return sqlvalue.Value{}, fmt.Errorf("exec: aggregate expression outside of GroupAggregate")
	}
	return sqlvalue.Value{}, fmt.Errorf("exec: unsupported expression %T", e)
}

func evalBinary(v *sqlparse.BinaryExpr, ctx *evalCtx) (sqlvalue.Value, error) {
	switch v.Op {
	case sqlparse.TokAnd:
		l, err := evalExpr(v.Left, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		if !truthy(l) {
			return boolValue(false), nil
		}
		r, err := evalExpr(v.Right, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		return boolValue(truthy(r)), nil
	case sqlparse.TokOr:
		l, err := evalExpr(v.Left, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		if truthy(l) {
			return boolValue(true), nil
		}
		r, err := evalExpr(v.Right, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		return boolValue(truthy(r)), nil
	}

	l, err := evalExpr(v.Left, ctx)
	if err != nil {
		return sqlvalue.Value{}, err
	}
	r, err := evalExpr(v.Right, ctx)
	if err != nil {
		return sqlvalue.Value{}, err
	}

	switch v.Op {
	case sqlparse.TokEq, sqlparse.TokNeq, sqlparse.TokLt, sqlparse.TokLte, sqlparse.TokGt, sqlparse.TokGte:
		if l.IsNull() || r.IsNull() {
			return boolValue(false), nil
		}
		cmp := sqlvalue.Compare(l, r)
		switch v.Op {
		case sqlparse.TokEq:
			return boolValue(cmp == 0), nil
		case sqlparse.TokNeq:
			return boolValue(cmp != 0), nil
		case sqlparse.TokLt:
			return boolValue(cmp < 0), nil
		case sqlparse.TokLte:
			return boolValue(cmp <= 0), nil
		case sqlparse.TokGt:
			return boolValue(cmp > 0), nil
		case sqlparse.TokGte:
			return boolValue(cmp >= 0), nil
		}
	case sqlparse.TokLike:
		if l.IsNull() || r.IsNull() {
			return boolValue(false), nil
		}
		return boolValue(likeMatch(string(l.AsOwnedBytes()), string(r.AsOwnedBytes()))), nil
	case sqlparse.TokConcat:
		return sqlvalue.Text(string(l.AsOwnedBytes()) + string(r.AsOwnedBytes())), nil
	case sqlparse.TokPlus, sqlparse.TokMinus, sqlparse.TokStar, sqlparse.TokSlash, sqlparse.TokPercent:
		return arith(v.Op, l, r)
	}
	return sqlvalue.Value{}, fmt.Errorf("exec: unsupported binary operator")
}

func arith(op sqlparse.TokenType, l, r sqlvalue.Value) (sqlvalue.Value, error) {
	if l.IsNull() || r.IsNull() {
		return sqlvalue.Null(), nil
	}
	if l.Kind() == sqlvalue.KindReal || r.Kind() == sqlvalue.KindReal {
		a, b := l.Float64(), r.Float64()
		switch op {
		case sqlparse.TokPlus:
			return sqlvalue.Real(a + b), nil
		case sqlparse.TokMinus:
			return sqlvalue.Real(a - b), nil
		case sqlparse.TokStar:
			return sqlvalue.Real(a * b), nil
		case sqlparse.TokSlash:
			if b == 0 {
				return sqlvalue.Null(), nil
			}
			return sqlvalue.Real(a / b), nil
		}
	}
	a, b := l.Int64(), r.Int64()
	switch op {
	case sqlparse.TokPlus:
		return sqlvalue.Int(a + b), nil
	case sqlparse.TokMinus:
		return sqlvalue.Int(a - b), nil
	case sqlparse.TokStar:
		return sqlvalue.Int(a * b), nil
	case sqlparse.TokSlash:
		if b == 0 {
			return sqlvalue.Null(), nil
		}
		return sqlvalue.Int(a / b), nil
	case sqlparse.TokPercent:
		if b == 0 {
			return sqlvalue.Null(), nil
		}
		return sqlvalue.Int(a % b), nil
	}
	return sqlvalue.Value{}, fmt.Errorf("exec: unsupported arithmetic operator")
}

func truthy(v sqlvalue.Value) bool {
	if v.IsNull() {
		return false
	}
	if v.Kind() == sqlvalue.KindReal {
		return v.Float64() != 0
	}
	return v.Int64() != 0
}

func boolValue(b bool) sqlvalue.Value {
	if b {
		return sqlvalue.Int(1)
	}
	return sqlvalue.Int(0)
}

// likeMatch implements SQL LIKE with % (any run) and _ (one char)
// wildcards, case-sensitively (BINARY collation, matching spec's default
// raw-byte-compare collation for everything but user-declared COLLATE).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

func resultColumnName(rc sqlparse.ResultColumn, idx int) string {
	if rc.Alias != "" {
		return rc.Alias
	}
	if col, ok := rc.Expr.(*sqlparse.ColumnRef); ok {
		return col.Column
	}
	if agg, ok := rc.Expr.(*sqlparse.AggregateExpr); ok {
		return strings.ToLower(aggregateName(agg.Kind))
	}
	return fmt.Sprintf("col%d", idx)
}

func aggregateName(k sqlparse.AggregateKind) string {
	switch k {
	case sqlparse.AggCount:
		return "COUNT"
	case sqlparse.AggSum:
		return "SUM"
	case sqlparse.AggAvg:
		return "AVG"
	case sqlparse.AggMin:
		return "MIN"
	case sqlparse.AggMax:
		return "MAX"
	}
	return "?"
}
