// Package exec pulls rows through a physical planner.Plan. Every operator
// implements Reader and wraps a child Reader, the same pull-based shape
// as the teacher's pkg/sql/executor/iterator.go.
package exec

import (
	"fmt"

	"sharc/pkg/pagesource"
	"sharc/pkg/planner"
	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// Params binds a statement's $name and positional parameter values for
// one execution.
type Params struct {
	Named      map[string]sqlvalue.Value
	Positional []sqlvalue.Value
}

func (p Params) ctx() *evalCtx {
	return &evalCtx{named: p.Named, positional: p.Positional}
}

// Execute instantiates a Reader chain for plan.Root against src, returning
// a Reader ready to be driven with Next/Row/Close. stats accumulates
// PagesVisited/IndexEntriesVisited/RowsMaterialized across every operator
// instantiated for this execution.
func Execute(cat *schema.Catalog, src pagesource.PageSource, usable int, plan *planner.Plan, params Params, stats *Stats) (Reader, error) {
	return build(cat, src, usable, plan.Root, params, stats)
}

func build(cat *schema.Catalog, src pagesource.PageSource, usable int, n planner.Node, params Params, stats *Stats) (Reader, error) {
	pctx := params.ctx()
	switch node := n.(type) {
	case *planner.TableScan:
		table := cat.GetTable(node.Table)
		if table == nil {
			return nil, fmt.Errorf("exec: unknown table %q", node.Table)
		}
		return newTableScan(src, usable, table, stats, nil, nil)

	case *planner.IndexScan:
		table := cat.GetTable(node.Table)
		if table == nil {
			return nil, fmt.Errorf("exec: unknown table %q", node.Table)
		}
		idx, err := lookupIndex(cat, node.Table, node.Index)
		if err != nil {
			return nil, err
		}
		return newIndexScan(src, usable, table, idx, stats, nil, nil, node.CoveredCols)

	case *planner.Filter:
		// Pushing the predicate straight into the scan reader lets it
		// reject rows against raw record bytes before decoding (spec
		// section 4.4); only a non-scan child (a join, aggregate, or set
		// operator result with no raw payload to filter against) falls
		// back to the generic decoded-row filterReader.
		switch child := node.Child.(type) {
		case *planner.TableScan:
			table := cat.GetTable(child.Table)
			if table == nil {
				return nil, fmt.Errorf("exec: unknown table %q", child.Table)
			}
			return newTableScan(src, usable, table, stats, node.Predicate, pctx)
		case *planner.IndexScan:
			table := cat.GetTable(child.Table)
			if table == nil {
				return nil, fmt.Errorf("exec: unknown table %q", child.Table)
			}
			idx, err := lookupIndex(cat, child.Table, child.Index)
			if err != nil {
				return nil, err
			}
			return newIndexScan(src, usable, table, idx, stats, node.Predicate, pctx, child.CoveredCols)
		default:
			built, err := build(cat, src, usable, node.Child, params, stats)
			if err != nil {
				return nil, err
			}
			return newFilter(built, node.Predicate, pctx), nil
		}

	case *planner.NestedLoopJoin:
		left, err := build(cat, src, usable, node.Left, params, stats)
		if err != nil {
			return nil, err
		}
		rightOpen := func() (Reader, error) {
			return build(cat, src, usable, node.Right, params, stats)
		}
		kind := joinInner
		if node.Kind == sqlparse.JoinLeft {
			kind = joinLeft
		}
		return newNestedLoopJoin(left, rightOpen, node.On, kind, pctx)

	case *planner.GroupAggregate:
		child, err := build(cat, src, usable, node.Child, params, stats)
		if err != nil {
			return nil, err
		}
		return newGroupAggregate(child, node.Keys, node.Columns, node.Having, pctx), nil

	case *planner.SetOp:
		left, err := build(cat, src, usable, node.Left, params, stats)
		if err != nil {
			return nil, err
		}
		right, err := build(cat, src, usable, node.Right, params, stats)
		if err != nil {
			return nil, err
		}
		return newSetOp(left, right, node.Kind)

	case *planner.Sort:
		child, err := build(cat, src, usable, node.Child, params, stats)
		if err != nil {
			return nil, err
		}
		return newSort(child, node.Keys, node.Limit, pctx)

	case *planner.Project:
		child, err := build(cat, src, usable, node.Child, params, stats)
		if err != nil {
			return nil, err
		}
		return newProject(child, node.Columns, pctx), nil

	case *planner.Distinct:
		child, err := build(cat, src, usable, node.Child, params, stats)
		if err != nil {
			return nil, err
		}
		return newDistinct(child), nil

	case *planner.LimitOffset:
		child, err := build(cat, src, usable, node.Child, params, stats)
		if err != nil {
			return nil, err
		}
		return newLimitOffset(child, node.Limit, node.Offset), nil
	}
	return nil, fmt.Errorf("exec: unsupported plan node %T", n)
}

// lookupIndex finds table's index named name in cat.
func lookupIndex(cat *schema.Catalog, table, name string) (*schema.IndexDef, error) {
	for _, cand := range cat.IndexesForTable(table) {
		if cand.Name == name {
			return cand, nil
		}
	}
	return nil, fmt.Errorf("exec: unknown index %q", name)
}
