// Package planner turns a parsed sqlparse.Select into an immutable query
// Intent, chooses an access path per spec section 4.14's sargable index
// selection, and caches plans keyed by statement shape so repeated queries
// skip re-planning until the schema cookie changes.
package planner

import (
	"fmt"
	"strings"

	"sharc/pkg/sqlparse"
)

// Node is one step of a physical query plan. Grounded on the teacher's
// optimizer/plan.go PlanNode interface and its cost/row estimators.
type Node interface {
	EstimatedCost() float64
	EstimatedRows() int64
	Describe(indent string) string
}

// TableScan reads every row of a table's b-tree in rowid order.
type TableScan struct {
	Table string
	Rows  int64
}

func (n *TableScan) EstimatedCost() float64 { return float64(n.Rows) }
func (n *TableScan) EstimatedRows() int64   { return n.Rows }
func (n *TableScan) Describe(indent string) string {
	return fmt.Sprintf("%sTableScan(%s) rows=%d cost=%.1f", indent, n.Table, n.Rows, n.EstimatedCost())
}

// IndexScan seeks into an index covering (a prefix of) the filter columns,
// then resolves matching rowids against the table.
type IndexScan struct {
	Table       string
	Index       string
	CoveredCols int  // how many leading index columns the filter pins
	RangeBound  bool // true when the last covered column is a range (not equality) predicate
	Rows        int64
}

func (n *IndexScan) EstimatedCost() float64 {
	const seekCost = 2.0
	return seekCost + float64(n.Rows)*0.1
}
func (n *IndexScan) EstimatedRows() int64 { return n.Rows }
func (n *IndexScan) Describe(indent string) string {
	return fmt.Sprintf("%sIndexScan(%s via %s, covered=%d, range=%t) rows=%d cost=%.1f",
		indent, n.Table, n.Index, n.CoveredCols, n.RangeBound, n.Rows, n.EstimatedCost())
}

// Filter applies a residual predicate the chosen access path did not
// already satisfy.
type Filter struct {
	Child       Node
	Predicate   sqlparse.Expr
	Selectivity float64
}

func (n *Filter) EstimatedCost() float64 {
	const perRow = 0.01
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*perRow
}
func (n *Filter) EstimatedRows() int64 {
	return int64(float64(n.Child.EstimatedRows()) * n.Selectivity)
}
func (n *Filter) Describe(indent string) string {
	return fmt.Sprintf("%sFilter(%s)\n%s", indent, exprString(n.Predicate), n.Child.Describe(indent+"  "))
}

// NestedLoopJoin evaluates Right once per Left row.
type NestedLoopJoin struct {
	Left, Right Node
	On          sqlparse.Expr
	Kind        sqlparse.JoinKind
}

func (n *NestedLoopJoin) EstimatedCost() float64 {
	return n.Left.EstimatedCost() + float64(n.Left.EstimatedRows())*n.Right.EstimatedCost()
}
func (n *NestedLoopJoin) EstimatedRows() int64 {
	l, r := n.Left.EstimatedRows(), n.Right.EstimatedRows()
	if l < r {
		return l
	}
	return r
}
func (n *NestedLoopJoin) Describe(indent string) string {
	kind := "INNER"
	if n.Kind == sqlparse.JoinLeft {
		kind = "LEFT"
	}
	return fmt.Sprintf("%sNestedLoopJoin(%s)\n%s\n%s", indent, kind, n.Left.Describe(indent+"  "), n.Right.Describe(indent+"  "))
}

// GroupAggregate computes GROUP BY aggregates over Child, either
// streaming (child already ordered by the grouping keys) or hashed.
type GroupAggregate struct {
	Child     Node
	Keys      []sqlparse.Expr
	Columns   []sqlparse.ResultColumn // the select list, evaluated per group
	Having    sqlparse.Expr           // may reference aggregates directly
	Streaming bool
}

func (n *GroupAggregate) EstimatedCost() float64 {
	if n.Streaming {
		return n.Child.EstimatedCost()
	}
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*0.02
}
func (n *GroupAggregate) EstimatedRows() int64 { return n.Child.EstimatedRows() }
func (n *GroupAggregate) Describe(indent string) string {
	mode := "hash"
	if n.Streaming {
		mode = "streaming"
	}
	return fmt.Sprintf("%sGroupAggregate+Project(%s)\n%s", indent, mode, n.Child.Describe(indent+"  "))
}

// SetOp applies UNION/UNION ALL/INTERSECT/EXCEPT across Left and Right,
// deduplicating via pkg/fingerprint unless Kind is SetOpUnionAll.
type SetOp struct {
	Left, Right Node
	Kind        sqlparse.SetOp
}

func (n *SetOp) EstimatedCost() float64 {
	return n.Left.EstimatedCost() + n.Right.EstimatedCost()
}
func (n *SetOp) EstimatedRows() int64 { return n.Left.EstimatedRows() + n.Right.EstimatedRows() }
func (n *SetOp) Describe(indent string) string {
	return fmt.Sprintf("%sSetOp(%v)\n%s\n%s", indent, n.Kind, n.Left.Describe(indent+"  "), n.Right.Describe(indent+"  "))
}

// Sort orders Child's rows by Keys; TopK bounds this with a Limit when set.
type Sort struct {
	Child Node
	Keys  []sqlparse.OrderTerm
	Limit int64 // negative means unbounded
}

func (n *Sort) EstimatedCost() float64 {
	rows := float64(n.Child.EstimatedRows())
	const logFactor = 1.2
	return n.Child.EstimatedCost() + rows*logFactor
}
func (n *Sort) EstimatedRows() int64 {
	if n.Limit > 0 && n.Limit < n.Child.EstimatedRows() {
		return n.Limit
	}
	return n.Child.EstimatedRows()
}
func (n *Sort) Describe(indent string) string {
	return fmt.Sprintf("%sSort(limit=%d)\n%s", indent, n.Limit, n.Child.Describe(indent+"  "))
}

// Project evaluates the result column list over Child.
type Project struct {
	Child   Node
	Columns []sqlparse.ResultColumn
}

func (n *Project) EstimatedCost() float64 {
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*0.001
}
func (n *Project) EstimatedRows() int64 { return n.Child.EstimatedRows() }
func (n *Project) Describe(indent string) string {
	return fmt.Sprintf("%sProject(%d cols)\n%s", indent, len(n.Columns), n.Child.Describe(indent+"  "))
}

// Distinct deduplicates Child's rows via row fingerprinting.
type Distinct struct{ Child Node }

func (n *Distinct) EstimatedCost() float64 { return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*0.05 }
func (n *Distinct) EstimatedRows() int64   { return n.Child.EstimatedRows() }
func (n *Distinct) Describe(indent string) string {
	return fmt.Sprintf("%sDistinct\n%s", indent, n.Child.Describe(indent+"  "))
}

// LimitOffset trims Child's stream to [Offset, Offset+Limit).
type LimitOffset struct {
	Child         Node
	Limit, Offset int64
}

func (n *LimitOffset) EstimatedCost() float64 { return n.Child.EstimatedCost() }
func (n *LimitOffset) EstimatedRows() int64 {
	rows := n.Child.EstimatedRows() - n.Offset
	if rows < 0 {
		rows = 0
	}
	if n.Limit >= 0 && n.Limit < rows {
		return n.Limit
	}
	return rows
}
func (n *LimitOffset) Describe(indent string) string {
	return fmt.Sprintf("%sLimitOffset(limit=%d, offset=%d)\n%s", indent, n.Limit, n.Offset, n.Child.Describe(indent+"  "))
}

// Plan is the root of a physical plan plus the statement's top-level
// projection/ordering, so Execute (pkg/exec) can drive it without
// re-inspecting the Intent.
type Plan struct {
	Root   Node
	Intent *Intent
}

// Describe renders an EXPLAIN-style tree, spec section 4.14's
// Plan.Describe() introspection.
func (p *Plan) Describe() string {
	var b strings.Builder
	b.WriteString(p.Root.Describe(""))
	return b.String()
}

func exprString(e sqlparse.Expr) string {
	switch v := e.(type) {
	case nil:
		return "<true>"
	case *sqlparse.BinaryExpr:
		return fmt.Sprintf("(%s %v %s)", exprString(v.Left), v.Op, exprString(v.Right))
	case *sqlparse.ColumnRef:
		if v.Table != "" {
			return v.Table + "." + v.Column
		}
		return v.Column
	case *sqlparse.Literal:
		switch {
		case v.IsNull:
			return "NULL"
		case v.IsStr:
			return "'" + v.Str + "'"
		case v.IsInt:
			return fmt.Sprintf("%d", v.Int)
		case v.IsReal:
			return fmt.Sprintf("%g", v.Float)
		}
		return "?"
	default:
		return fmt.Sprintf("%T", e)
	}
}
