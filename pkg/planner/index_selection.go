package planner

import (
	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
)

// sargKind classifies how a WHERE conjunct pins one column for index
// selection: an equality comparison narrows the scan to one value and
// still lets a following index column narrow further, while a range
// comparison (or BETWEEN) bounds the scan but can only be the last
// column of a usable prefix (sqlite's own sargable-prefix rule).
type sargKind int

const (
	sargNone sargKind = iota
	sargEq
	sargRange
)

// extractSargableColumns flattens the top-level AND chain of where and
// classifies each column it pins. OR'd, LIKE, and other non-sargable
// predicates are ignored for index selection purposes and fall through
// to a residual Filter. Equality is recorded in preference to a range
// classification for the same column, since it is strictly more
// selective.
func extractSargableColumns(where sqlparse.Expr) map[string]sargKind {
	cols := map[string]sargKind{}
	mark := func(name string, kind sargKind) {
		if cols[name] == sargEq {
			return
		}
		cols[name] = kind
	}
	var walk func(e sqlparse.Expr)
	walk = func(e sqlparse.Expr) {
		switch v := e.(type) {
		case *sqlparse.BinaryExpr:
			if v.Op == sqlparse.TokAnd {
				walk(v.Left)
				walk(v.Right)
				return
			}
			switch v.Op {
			case sqlparse.TokEq:
				if col, ok := v.Left.(*sqlparse.ColumnRef); ok {
					mark(col.Column, sargEq)
				}
				if col, ok := v.Right.(*sqlparse.ColumnRef); ok {
					mark(col.Column, sargEq)
				}
			case sqlparse.TokLt, sqlparse.TokLte, sqlparse.TokGt, sqlparse.TokGte:
				if col, ok := v.Left.(*sqlparse.ColumnRef); ok {
					mark(col.Column, sargRange)
				}
				if col, ok := v.Right.(*sqlparse.ColumnRef); ok {
					mark(col.Column, sargRange)
				}
			}
		case *sqlparse.BetweenExpr:
			if v.Not {
				return
			}
			if col, ok := v.Expr.(*sqlparse.ColumnRef); ok {
				mark(col.Column, sargRange)
			}
		}
	}
	walk(where)
	return cols
}

// selectBestIndex ranks table's candidate indexes by longest leading
// column prefix covered by sargable predicates in where, and returns the
// winner, how many of its leading columns are pinned, and whether the
// last pinned column is a range bound (so the scan needs low/high key
// enforcement rather than a pure equality match). A range-classified
// column can only extend a prefix as its last member: a later column
// past a range predicate can't be bounded by the b-tree's ordering.
// Ties favor a UNIQUE index (narrower match set) over a non-unique one.
func selectBestIndex(cat *schema.Catalog, table *schema.TableDef, where sqlparse.Expr) (*schema.IndexDef, int, bool) {
	pinned := extractSargableColumns(where)
	if len(pinned) == 0 {
		return nil, 0, false
	}

	var best *schema.IndexDef
	bestCovered := 0
	bestRange := false
	for _, idx := range cat.IndexesForTable(table.Name) {
		covered := 0
		rangeBound := false
		for _, col := range idx.Columns {
			kind := pinned[col]
			if kind == sargNone {
				break
			}
			covered++
			if kind == sargRange {
				rangeBound = true
				break
			}
		}
		if covered == 0 {
			continue
		}
		if covered > bestCovered || (covered == bestCovered && idx.Unique && (best == nil || !best.Unique)) {
			best = idx
			bestCovered = covered
			bestRange = rangeBound
		}
	}
	return best, bestCovered, bestRange
}

// findIndexDef looks up an index by name among table's candidates.
func findIndexDef(cat *schema.Catalog, table, name string) *schema.IndexDef {
	for _, idx := range cat.IndexesForTable(table) {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}
