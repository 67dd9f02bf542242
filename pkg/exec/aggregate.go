package exec

import (
	"fmt"

	"sharc/pkg/fingerprint"
	"sharc/pkg/record"
	"sharc/pkg/serial"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// accumulator tracks one running aggregate's state across a group's rows.
type accumulator struct {
	expr  *sqlparse.AggregateExpr
	count int64
	sum   float64
	sumIsReal bool
	min, max  sqlvalue.Value
	haveMinMax bool
}

func newAccumulator(e *sqlparse.AggregateExpr) *accumulator { return &accumulator{expr: e} }

func (a *accumulator) add(v sqlvalue.Value, isNull bool) {
	if a.expr.Star {
		a.count++
		return
	}
	if isNull {
		return
	}
	a.count++
	if v.Kind() == sqlvalue.KindReal {
		a.sumIsReal = true
		a.sum += v.Float64()
	} else if v.Kind() == sqlvalue.KindInteger {
		a.sum += float64(v.Int64())
	}
	if !a.haveMinMax || sqlvalue.Compare(v, a.min) < 0 {
		a.min = v
	}
	if !a.haveMinMax || sqlvalue.Compare(v, a.max) > 0 {
		a.max = v
	}
	a.haveMinMax = true
}

func (a *accumulator) result() sqlvalue.Value {
	switch a.expr.Kind {
	case sqlparse.AggCount:
		return sqlvalue.Int(a.count)
	case sqlparse.AggSum:
		if a.count == 0 {
			return sqlvalue.Null()
		}
		if a.sumIsReal {
			return sqlvalue.Real(a.sum)
		}
		return sqlvalue.Int(int64(a.sum))
	case sqlparse.AggAvg:
		if a.count == 0 {
			return sqlvalue.Null()
		}
		return sqlvalue.Real(a.sum / float64(a.count))
	case sqlparse.AggMin:
		if !a.haveMinMax {
			return sqlvalue.Null()
		}
		return a.min
	case sqlparse.AggMax:
		if !a.haveMinMax {
			return sqlvalue.Null()
		}
		return a.max
	}
	return sqlvalue.Null()
}

// group holds one GROUP BY bucket's key values and the accumulators for
// every aggregate expression referenced anywhere in the select list or
// HAVING clause.
type group struct {
	keyValues []sqlvalue.Value
	accs      []*accumulator
	sample    Row // first row seen for this group, for non-aggregate/non-key expressions
}

// groupAggregateReader computes GROUP BY aggregates over its child by
// hashing each row's group-key fingerprint (pkg/fingerprint) into a
// bucket, matching the teacher's hash-join style bucket-by-fingerprint
// approach adapted to aggregation. Grounded on spec section 4.15's
// "group-by-aggregation (streaming+hash)" operator; only the hash
// strategy is implemented, the streaming strategy is a future
// optimization for pre-sorted input (see planner.GroupAggregate.Streaming).
type groupAggregateReader struct {
	child   Reader
	keys    []sqlparse.Expr
	columns []sqlparse.ResultColumn
	having  sqlparse.Expr
	params  *evalCtx

	aggExprs []*sqlparse.AggregateExpr
	outCols  []string

	groups  map[fingerprint.Fingerprint]*group
	order   []fingerprint.Fingerprint
	pos     int
	built   bool
	row     Row
}

func newGroupAggregate(child Reader, keys []sqlparse.Expr, columns []sqlparse.ResultColumn, having sqlparse.Expr, params *evalCtx) *groupAggregateReader {
	var aggExprs []*sqlparse.AggregateExpr
	collectAggregates(columns, having, &aggExprs)
	outCols := make([]string, len(columns))
	for i, c := range columns {
		outCols[i] = resultColumnName(c, i)
	}
	return &groupAggregateReader{
		child: child, keys: keys, columns: columns, having: having, params: params,
		aggExprs: aggExprs, outCols: outCols, groups: make(map[fingerprint.Fingerprint]*group),
	}
}

func collectAggregates(columns []sqlparse.ResultColumn, having sqlparse.Expr, out *[]*sqlparse.AggregateExpr) {
	for _, c := range columns {
		walkAggregates(c.Expr, out)
	}
	walkAggregates(having, out)
}

func walkAggregates(e sqlparse.Expr, out *[]*sqlparse.AggregateExpr) {
	switch v := e.(type) {
	case nil:
		return
	case *sqlparse.AggregateExpr:
		*out = append(*out, v)
	case *sqlparse.BinaryExpr:
		walkAggregates(v.Left, out)
		walkAggregates(v.Right, out)
	case *sqlparse.UnaryExpr:
		walkAggregates(v.Expr, out)
	case *sqlparse.BetweenExpr:
		walkAggregates(v.Expr, out)
		walkAggregates(v.Lo, out)
		walkAggregates(v.Hi, out)
	case *sqlparse.InExpr:
		walkAggregates(v.Expr, out)
		for _, item := range v.List {
			walkAggregates(item, out)
		}
	case *sqlparse.IsNullExpr:
		walkAggregates(v.Expr, out)
	}
}

func (r *groupAggregateReader) Columns() []string { return r.outCols }
func (r *groupAggregateReader) Row() Row          { return r.row }
func (r *groupAggregateReader) Close() error      { return r.child.Close() }

func (r *groupAggregateReader) build() error {
	r.built = true
	for {
		ok, err := r.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		childRow := r.child.Row()
		ctx := &evalCtx{cols: r.child.Columns(), row: childRow, named: r.params.named, positional: r.params.positional}

		keyVals := make([]sqlvalue.Value, len(r.keys))
		for i, k := range r.keys {
			v, err := evalExpr(k, ctx)
			if err != nil {
				return err
			}
			keyVals[i] = v
		}

		fp, err := fingerprintOf(keyVals)
		if err != nil {
			return err
		}
		g, ok := r.groups[fp]
		if !ok {
			g = &group{keyValues: keyVals, sample: append(Row(nil), childRow...)}
			for _, ae := range r.aggExprs {
				g.accs = append(g.accs, newAccumulator(ae))
			}
			r.groups[fp] = g
			r.order = append(r.order, fp)
		}
		for i, ae := range r.aggExprs {
			if ae.Star {
				g.accs[i].add(sqlvalue.Value{}, false)
				continue
			}
			v, err := evalExpr(ae.Arg, ctx)
			if err != nil {
				return err
			}
			g.accs[i].add(v, v.IsNull())
		}
	}
	if len(r.keys) == 0 && len(r.groups) == 0 {
		// No rows and no GROUP BY: aggregates still emit one row (e.g.
		// COUNT(*) = 0), matching standard SQL aggregate-without-group
		// semantics.
		r.order = append(r.order, fingerprint.Fingerprint{})
		g := &group{}
		for _, ae := range r.aggExprs {
			g.accs = append(g.accs, newAccumulator(ae))
		}
		r.groups[fingerprint.Fingerprint{}] = g
	}
	return nil
}

func fingerprintOf(keys []sqlvalue.Value) (fingerprint.Fingerprint, error) {
	values := make([]sqlvalue.Value, len(keys))
	copy(values, keys)
	buf := make([]byte, record.ComputedEncodedSize(values))
	record.EncodeRecord(values, buf)
	var types [32]serial.Type
	n, bodyOffset, err := record.ReadSerialTypes(buf, types[:])
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	return fingerprint.Of(buf, types[:n], bodyOffset, 0, -1)
}

func (r *groupAggregateReader) Next() (bool, error) {
	if !r.built {
		if err := r.build(); err != nil {
			return false, err
		}
	}
	for r.pos < len(r.order) {
		g := r.groups[r.order[r.pos]]
		r.pos++

		aggCtx := &aggEvalCtx{evalCtx: evalCtx{cols: r.child.Columns(), row: g.sample, named: r.params.named, positional: r.params.positional}, keys: r.keys, keyValues: g.keyValues, aggExprs: r.aggExprs, accs: g.accs}

		if r.having != nil {
			hv, err := evalWithAggregates(r.having, aggCtx)
			if err != nil {
				return false, err
			}
			if !truthy(hv) {
				continue
			}
		}

		row := make(Row, len(r.columns))
		for i, c := range r.columns {
			v, err := evalWithAggregates(c.Expr, aggCtx)
			if err != nil {
				return false, err
			}
			row[i] = v
		}
		r.row = row
		return true, nil
	}
	return false, nil
}

// aggEvalCtx extends evalCtx so evalWithAggregates can resolve both
// GROUP BY key expressions (matched structurally) and AggregateExpr
// nodes (matched by identity against the accumulators built for this
// group) without re-scanning the group's rows.
type aggEvalCtx struct {
	evalCtx
	keys      []sqlparse.Expr
	keyValues []sqlvalue.Value
	aggExprs  []*sqlparse.AggregateExpr
	accs      []*accumulator
}

// evalWithAggregates evaluates e, substituting each AggregateExpr with
// its precomputed accumulator result and each GROUP BY key expression
// with its group's key value, falling back to evalExpr for everything
// else (literals, arithmetic, column refs against the sample row).
func evalWithAggregates(e sqlparse.Expr, ctx *aggEvalCtx) (sqlvalue.Value, error) {
	if ae, ok := e.(*sqlparse.AggregateExpr); ok {
		for i, cand := range ctx.aggExprs {
			if cand == ae {
				return ctx.accs[i].result(), nil
			}
		}
		return sqlvalue.Value{}, fmt.Errorf("exec: aggregate expression not registered")
	}
	for i, k := range ctx.keys {
		if exprEqual(k, e) {
			return ctx.keyValues[i], nil
		}
	}
	switch v := e.(type) {
	case *sqlparse.BinaryExpr:
		l, err := evalWithAggregates(v.Left, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		switch v.Op {
		case sqlparse.TokAnd:
			if !truthy(l) {
				return boolValue(false), nil
			}
			r, err := evalWithAggregates(v.Right, ctx)
			if err != nil {
				return sqlvalue.Value{}, err
			}
			return boolValue(truthy(r)), nil
		case sqlparse.TokOr:
			if truthy(l) {
				return boolValue(true), nil
			}
			r, err := evalWithAggregates(v.Right, ctx)
			if err != nil {
				return sqlvalue.Value{}, err
			}
			return boolValue(truthy(r)), nil
		}
		r, err := evalWithAggregates(v.Right, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		return applyBinaryValues(v.Op, l, r)
	case *sqlparse.UnaryExpr:
		inner, err := evalWithAggregates(v.Expr, ctx)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		if v.Op == sqlparse.TokNot {
			return boolValue(!truthy(inner)), nil
		}
		if inner.Kind() == sqlvalue.KindReal {
			return sqlvalue.Real(-inner.Float64()), nil
		}
		return sqlvalue.Int(-inner.Int64()), nil
	}
	return evalExpr(e, &ctx.evalCtx)
}

// applyBinaryValues applies a binary operator to two already-evaluated
// values, mirroring evalBinary's operator table without needing a fake
// AST node to route through evalExpr.
func applyBinaryValues(op sqlparse.TokenType, l, r sqlvalue.Value) (sqlvalue.Value, error) {
	switch op {
	case sqlparse.TokEq, sqlparse.TokNeq, sqlparse.TokLt, sqlparse.TokLte, sqlparse.TokGt, sqlparse.TokGte:
		if l.IsNull() || r.IsNull() {
			return boolValue(false), nil
		}
		cmp := sqlvalue.Compare(l, r)
		switch op {
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
		return arith(op, l, r)
	}
	return sqlvalue.Value{}, fmt.Errorf("exec: unsupported binary operator")
}

func exprEqual(a, b sqlparse.Expr) bool {
	ca, ok1 := a.(*sqlparse.ColumnRef)
	cb, ok2 := b.(*sqlparse.ColumnRef)
	if ok1 && ok2 {
		return ca.Table == cb.Table && ca.Column == cb.Column
	}
	return false
}
