package planner

import (
	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
)

// defaultTableRows is used as a row estimate when no statistics are
// available; spec section 4.14 does not require cost-based statistics
// collection, only a sargable ranking among candidate indexes.
const defaultTableRows = 1000

// Build turns it into a physical Plan against cat, choosing an index
// access path per selectBestIndex's longest-covered-prefix ranking.
func Build(cat *schema.Catalog, it *Intent) (*Plan, error) {
	root, err := buildSelect(cat, it.Select)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: root, Intent: it}, nil
}

func buildSelect(cat *schema.Catalog, sel *sqlparse.Select) (Node, error) {
	core, isFinal, err := buildCore(cat, sel.Core)
	if err != nil {
		return nil, err
	}

	var root Node
	if len(sel.Compound) == 0 {
		// A simple (non-compound) query: ORDER BY may reference columns
		// from the FROM clause that are not in the select list, so Sort
		// must see core's pre-projection columns, not the final output.
		root = core
		if len(sel.OrderBy) > 0 {
			root = &Sort{Child: root, Keys: sel.OrderBy, Limit: topKHint(sel)}
		}
		if !isFinal {
			root = &Project{Child: root, Columns: sel.Core.Columns}
		}
		if sel.Core.Distinct {
			root = &Distinct{Child: root}
		}
	} else {
		// A compound query: every arm is projected to its output shape
		// before the set operator combines them, and ORDER BY (applied
		// after) can only reference those output columns.
		root = core
		if !isFinal {
			root = &Project{Child: root, Columns: sel.Core.Columns}
		}
		if sel.Core.Distinct {
			root = &Distinct{Child: root}
		}
		for _, term := range sel.Compound {
			right, rightFinal, err := buildCore(cat, term.Core)
			if err != nil {
				return nil, err
			}
			if !rightFinal {
				right = &Project{Child: right, Columns: term.Core.Columns}
			}
			root = &SetOp{Left: root, Right: right, Kind: term.Op}
		}
		if len(sel.OrderBy) > 0 {
			root = &Sort{Child: root, Keys: sel.OrderBy, Limit: topKHint(sel)}
		}
	}

	if sel.Limit != nil {
		limit, offset := int64(-1), int64(0)
		if l, ok := sel.Limit.(*sqlparse.Literal); ok && l.IsInt {
			limit = l.Int
		}
		if o, ok := sel.Offset.(*sqlparse.Literal); ok && o.IsInt {
			offset = o.Int
		}
		root = &LimitOffset{Child: root, Limit: limit, Offset: offset}
	}
	return root, nil
}

// buildCore builds core's FROM/WHERE/GROUP BY pipeline. The second
// return reports whether the result already embeds the select list's
// final output shape (true for an aggregate core, whose GroupAggregate
// node owns Columns/Having) or still needs a Project wrapped around it
// by the caller (false for a plain core).
func buildCore(cat *schema.Catalog, core *sqlparse.SelectCore) (Node, bool, error) {
	scan, err := buildFrom(cat, core.From)
	if err != nil {
		return nil, false, err
	}

	root := scan
	if core.Where != nil {
		root = applyWhere(cat, root, core)
	}
	if len(core.GroupBy) > 0 || hasAggregate(core.Columns) {
		root = &GroupAggregate{Child: root, Keys: core.GroupBy, Columns: core.Columns, Having: core.Having, Streaming: orderMatchesGroupBy(cat, root, core.GroupBy)}
		return root, true, nil
	}
	return root, false, nil
}

// applyWhere always wraps the chosen access path in a Filter, even when
// an index covers every sargable column: the WHERE clause can (and
// often does) carry additional conjuncts past the index's own columns
// (e.g. a LIKE predicate), and those must still run. Filter's execution
// implementation (pkg/exec) pushes whatever part of Predicate it can
// evaluate directly against the scan's raw record bytes, so wrapping an
// already-narrow IndexScan here costs nothing when nothing is left to
// check.
func applyWhere(cat *schema.Catalog, scan Node, core *sqlparse.SelectCore) Node {
	ts, isScan := scan.(*TableScan)
	if !isScan {
		return &Filter{Child: scan, Predicate: core.Where, Selectivity: 0.3}
	}
	table := cat.GetTable(ts.Table)
	if table == nil {
		return &Filter{Child: scan, Predicate: core.Where, Selectivity: 0.3}
	}
	idx, covered, rangeBound := selectBestIndex(cat, table, core.Where)
	if idx == nil {
		return &Filter{Child: scan, Predicate: core.Where, Selectivity: 0.3}
	}
	scanNode := &IndexScan{Table: table.Name, Index: idx.Name, CoveredCols: covered, RangeBound: rangeBound, Rows: estimateRows(ts.Rows, covered, len(idx.Columns))}
	selectivity := 0.5
	if covered == len(idx.Columns) && !rangeBound {
		selectivity = 0.95
	}
	return &Filter{Child: scanNode, Predicate: core.Where, Selectivity: selectivity}
}

func estimateRows(tableRows int64, covered, indexWidth int) int64 {
	if covered == 0 {
		return tableRows
	}
	// Every additional covered column narrows the estimate geometrically,
	// modeling a longest-prefix sargable match as more selective.
	rows := tableRows
	for i := 0; i < covered; i++ {
		rows /= 4
		if rows < 1 {
			rows = 1
		}
	}
	return rows
}

func buildFrom(cat *schema.Catalog, ref *sqlparse.TableRef) (Node, error) {
	if ref == nil {
		return &TableScan{Table: "", Rows: 1}, nil
	}
	var left Node
	if ref.Subquery != nil {
		inner, err := buildSelect(cat, ref.Subquery)
		if err != nil {
			return nil, err
		}
		left = inner
	} else {
		rows := int64(defaultTableRows)
		left = &TableScan{Table: ref.Name, Rows: rows}
	}

	if ref.Join == nil {
		return left, nil
	}
	right, err := buildFrom(cat, ref.Join)
	if err != nil {
		return nil, err
	}
	return &NestedLoopJoin{Left: left, Right: right, On: ref.On, Kind: ref.JoinKind}, nil
}

// topKHint returns the literal LIMIT value plus any literal OFFSET for
// sel (the number of rows a bounded top-K sort must keep so that the
// LimitOffset above it can still skip OFFSET rows), or -1 when LIMIT is
// absent, negative or non-literal, or OFFSET is non-literal.
func topKHint(sel *sqlparse.Select) int64 {
	l, ok := sel.Limit.(*sqlparse.Literal)
	if !ok || !l.IsInt || l.Int < 0 {
		return -1
	}
	if sel.Offset == nil {
		return l.Int
	}
	if o, ok := sel.Offset.(*sqlparse.Literal); ok && o.IsInt {
		if o.Int > 0 {
			return l.Int + o.Int
		}
		return l.Int
	}
	return -1
}

func hasAggregate(cols []sqlparse.ResultColumn) bool {
	for _, c := range cols {
		if _, ok := c.Expr.(*sqlparse.AggregateExpr); ok {
			return true
		}
	}
	return false
}

// orderMatchesGroupBy reports whether root already delivers rows in an
// order that a streaming group aggregate could consume directly: an
// IndexScan (optionally wrapped in a residual Filter) walks its b-tree
// in index-key order, so if keys is a column-for-column prefix of that
// index's own column order, grouping needs no separate sort or hash
// table. Any other access path (a plain TableScan, a join) makes no
// ordering guarantee keys could rely on, so Streaming stays false and
// GroupAggregate falls back to its hash strategy.
func orderMatchesGroupBy(cat *schema.Catalog, root Node, keys []sqlparse.Expr) bool {
	if len(keys) == 0 {
		return false
	}
	node := root
	if f, ok := node.(*Filter); ok {
		node = f.Child
	}
	scan, ok := node.(*IndexScan)
	if !ok {
		return false
	}
	idx := findIndexDef(cat, scan.Table, scan.Index)
	if idx == nil || len(idx.Columns) < len(keys) {
		return false
	}
	for i, k := range keys {
		col, ok := k.(*sqlparse.ColumnRef)
		if !ok || col.Column != idx.Columns[i] {
			return false
		}
	}
	return true
}
