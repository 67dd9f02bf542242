// Package filter implements the compiled predicate tree from spec
// section 4.12: filters are compiled once against a table's column list
// and then evaluated directly against raw record bytes, without ever
// materializing a sqlvalue.Value for the compared columns.
package filter

import (
	"bytes"
	"errors"

	"sharc/pkg/record"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

// Op is a comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// Kind discriminates a filter tree node.
type Kind int

const (
	KindCompare Kind = iota
	KindBetween
	KindIsNull
	KindIsNotNull
	KindStartsWith
	KindEndsWith
	KindContains
	KindIn
	KindNotIn
	KindAnd
	KindOr
	KindNot
)

// Node is an uncompiled filter tree node, built by the parser with
// column names rather than resolved ordinals.
type Node struct {
	Kind     Kind
	Column   string
	Op       Op
	Value    sqlvalue.Value
	Low      sqlvalue.Value
	High     sqlvalue.Value
	Set      []sqlvalue.Value
	Children []*Node
}

// ErrUnknownColumn is returned by Compile when a node references a column
// not present in the supplied column list.
var ErrUnknownColumn = errors.New("filter: unknown column")

// Compiled is a filter tree with column names resolved to ordinals and
// constants pre-converted to their comparison-ready form.
type Compiled struct {
	kind        Kind
	ordinal     int
	isRowid     bool
	op          Op
	intVal      int64
	isIntVal    bool
	realVal     float64
	isRealVal   bool
	bytesVal    []byte
	lowInt      int64
	highInt     int64
	lowReal     float64
	highReal    float64
	lowBytes    []byte
	highBytes   []byte
	isNumericRange bool
	bytesSet    [][]byte
	intSet      map[int64]struct{}
	children    []*Compiled
}

// Compile resolves column to ordinal references against columns (in
// table order) and pre-converts literal constants, so Evaluate never
// repeats that work per row. rowidAlias is the ordinal of the
// INTEGER PRIMARY KEY column, or -1 if the table has none.
func Compile(n *Node, columns []string, rowidAlias int) (*Compiled, error) {
	if n == nil {
		return nil, nil
	}
	c := &Compiled{kind: n.Kind, op: n.Op}

	switch n.Kind {
	case KindAnd, KindOr, KindNot:
		for _, child := range n.Children {
			cc, err := Compile(child, columns, rowidAlias)
			if err != nil {
				return nil, err
			}
			c.children = append(c.children, cc)
		}
		return c, nil
	}

	ord, err := resolveColumn(n.Column, columns)
	if err != nil {
		return nil, err
	}
	c.ordinal = ord
	c.isRowid = ord == rowidAlias

	switch n.Kind {
	case KindCompare:
		setScalar(c, n.Value)
	case KindBetween:
		setRange(c, n.Low, n.High)
	case KindIsNull, KindIsNotNull:
		// no constants to resolve
	case KindStartsWith, KindEndsWith, KindContains:
		c.bytesVal = ownedBytes(n.Value)
	case KindIn, KindNotIn:
		c.bytesSet = make([][]byte, 0, len(n.Set))
		c.intSet = make(map[int64]struct{}, len(n.Set))
		for _, v := range n.Set {
			if v.Kind() == sqlvalue.KindInteger || v.Kind() == sqlvalue.KindReal {
				c.intSet[v.Int64()] = struct{}{}
			} else {
				c.bytesSet = append(c.bytesSet, ownedBytes(v))
			}
		}
	}
	return c, nil
}

func resolveColumn(name string, columns []string) (int, error) {
	for i, c := range columns {
		if c == name {
			return i, nil
		}
	}
	return 0, ErrUnknownColumn
}

func setScalar(c *Compiled, v sqlvalue.Value) {
	switch v.Kind() {
	case sqlvalue.KindInteger:
		c.intVal, c.isIntVal = v.Int64(), true
	case sqlvalue.KindReal:
		c.realVal, c.isRealVal = v.Float64(), true
	default:
		c.bytesVal = ownedBytes(v)
	}
}

func setRange(c *Compiled, low, high sqlvalue.Value) {
	if (low.Kind() == sqlvalue.KindInteger || low.Kind() == sqlvalue.KindReal) &&
		(high.Kind() == sqlvalue.KindInteger || high.Kind() == sqlvalue.KindReal) {
		c.isNumericRange = true
		c.lowReal, c.highReal = low.Float64(), high.Float64()
		c.lowInt, c.highInt = low.Int64(), high.Int64()
		return
	}
	c.lowBytes = ownedBytes(low)
	c.highBytes = ownedBytes(high)
}

func ownedBytes(v sqlvalue.Value) []byte {
	b := v.BytesUnsafe()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Evaluate traverses the compiled tree against raw record bytes, per spec
// section 4.12: comparisons against a NULL column are false (not
// three-valued unknown), IsNull is true exactly when the serial type is
// 0, AND/OR short-circuit.
func Evaluate(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64) bool {
	if c == nil {
		return true
	}
	switch c.kind {
	case KindAnd:
		for _, child := range c.children {
			if !Evaluate(child, payload, types, bodyOffset, rowid) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range c.children {
			if Evaluate(child, payload, types, bodyOffset, rowid) {
				return true
			}
		}
		return false
	case KindNot:
		return !Evaluate(c.children[0], payload, types, bodyOffset, rowid)
	}

	if c.ordinal < 0 || c.ordinal >= len(types) {
		return false
	}
	st := types[c.ordinal]
	isNull := serial.IsNull(st) && !c.isRowid

	switch c.kind {
	case KindIsNull:
		return isNull
	case KindIsNotNull:
		return !isNull
	}
	if isNull {
		return false
	}

	switch c.kind {
	case KindCompare:
		return evalCompare(c, payload, types, bodyOffset, rowid, st)
	case KindBetween:
		return evalBetween(c, payload, types, bodyOffset, rowid, st)
	case KindStartsWith:
		b, ok := textBytes(c, payload, types, bodyOffset, rowid, st)
		return ok && bytes.HasPrefix(b, c.bytesVal)
	case KindEndsWith:
		b, ok := textBytes(c, payload, types, bodyOffset, rowid, st)
		return ok && bytes.HasSuffix(b, c.bytesVal)
	case KindContains:
		b, ok := textBytes(c, payload, types, bodyOffset, rowid, st)
		return ok && bytes.Contains(b, c.bytesVal)
	case KindIn:
		return evalIn(c, payload, types, bodyOffset, rowid, st)
	case KindNotIn:
		return !evalIn(c, payload, types, bodyOffset, rowid, st)
	default:
		return false
	}
}

func columnInt64(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64) int64 {
	if c.isRowid {
		return rowid
	}
	v, _ := record.DecodeInt64Direct(payload, c.ordinal, types, bodyOffset)
	return v
}

func columnFloat64(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64) float64 {
	if c.isRowid {
		return float64(rowid)
	}
	v, _ := record.DecodeDoubleDirect(payload, c.ordinal, types, bodyOffset)
	return v
}

func textBytes(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64, st serial.Type) ([]byte, bool) {
	if !serial.IsText(st) {
		return nil, false
	}
	b, ok, err := record.DecodeStringDirect(payload, c.ordinal, types, bodyOffset)
	if err != nil || !ok {
		return nil, false
	}
	return b, true
}

func evalCompare(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64, st serial.Type) bool {
	if c.isIntVal || c.isRealVal || serial.IsInteger(st) || serial.IsReal(st) {
		var lhs, rhs float64
		if serial.IsReal(st) || c.isRealVal {
			lhs = columnFloat64(c, payload, types, bodyOffset, rowid)
			rhs = numericRHS(c)
		} else {
			lhs = float64(columnInt64(c, payload, types, bodyOffset, rowid))
			rhs = numericRHS(c)
		}
		return compareOp(c.op, cmpFloat(lhs, rhs))
	}
	if !serial.IsText(st) && !serial.IsBlob(st) {
		return false
	}
	lhs, ok, err := record.DecodeStringDirect(payload, c.ordinal, types, bodyOffset)
	if err != nil {
		return false
	}
	if !ok {
		// BLOB: borrow directly via DecodeColumn since DecodeStringDirect
		// only recognizes TEXT.
		v, err := record.DecodeColumn(payload, c.ordinal, types, bodyOffset)
		if err != nil {
			return false
		}
		lhs = v.BytesUnsafe()
	}
	return compareOp(c.op, bytes.Compare(lhs, c.bytesVal))
}

func numericRHS(c *Compiled) float64 {
	if c.isRealVal {
		return c.realVal
	}
	return float64(c.intVal)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOp(op Op, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		return false
	}
}

func evalBetween(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64, st serial.Type) bool {
	if c.isNumericRange || serial.IsInteger(st) || serial.IsReal(st) {
		v := columnFloat64(c, payload, types, bodyOffset, rowid)
		return v >= c.lowReal && v <= c.highReal
	}
	v, ok, err := record.DecodeStringDirect(payload, c.ordinal, types, bodyOffset)
	if err != nil || !ok {
		return false
	}
	return bytes.Compare(v, c.lowBytes) >= 0 && bytes.Compare(v, c.highBytes) <= 0
}

func evalIn(c *Compiled, payload []byte, types []serial.Type, bodyOffset int, rowid int64, st serial.Type) bool {
	if serial.IsInteger(st) || serial.IsReal(st) {
		v := columnInt64(c, payload, types, bodyOffset, rowid)
		_, ok := c.intSet[v]
		return ok
	}
	v, err := record.DecodeColumn(payload, c.ordinal, types, bodyOffset)
	if err != nil {
		return false
	}
	b := v.BytesUnsafe()
	for _, s := range c.bytesSet {
		if bytes.Equal(b, s) {
			return true
		}
	}
	return false
}
