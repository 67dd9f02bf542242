package filter

import (
	"testing"

	"sharc/pkg/record"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

func encode(t *testing.T, values []sqlvalue.Value) ([]byte, []serial.Type, int) {
	t.Helper()
	buf := make([]byte, record.ComputedEncodedSize(values))
	record.EncodeRecord(values, buf)
	var types [16]serial.Type
	count, bodyOffset, err := record.ReadSerialTypes(buf, types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}
	return buf, types[:count], bodyOffset
}

var columns = []string{"id", "name", "age"}

func TestCompareEquality(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Text("ada"), sqlvalue.Int(37)})
	n := &Node{Kind: KindCompare, Column: "age", Op: OpEQ, Value: sqlvalue.Int(37)}
	c, err := Compile(n, columns, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !Evaluate(c, buf, types, off, 0) {
		t.Errorf("expected age = 37 to match")
	}
}

func TestCompareAgainstNullIsFalse(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Null(), sqlvalue.Int(1)})
	n := &Node{Kind: KindCompare, Column: "name", Op: OpEQ, Value: sqlvalue.Text("x")}
	c, err := Compile(n, columns, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if Evaluate(c, buf, types, off, 0) {
		t.Errorf("comparison against NULL must be false, not unknown")
	}
}

func TestIsNullExactlySerialTypeZero(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Null(), sqlvalue.Int(0)})
	isNull := &Node{Kind: KindIsNull, Column: "id"}
	cIsNull, _ := Compile(isNull, []string{"id", "name"}, -1)
	if !Evaluate(cIsNull, buf, types, off, 0) {
		t.Errorf("expected IsNull true for NULL column")
	}

	notNull := &Node{Kind: KindIsNotNull, Column: "name"}
	cNotNull, _ := Compile(notNull, []string{"id", "name"}, -1)
	if !Evaluate(cNotNull, buf, types, off, 0) {
		t.Errorf("expected IsNotNull true for serial type 8 (zero constant), which is not NULL")
	}
}

func TestAndShortCircuits(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Int(2)})
	tree := &Node{
		Kind: KindAnd,
		Children: []*Node{
			{Kind: KindCompare, Column: "id", Op: OpEQ, Value: sqlvalue.Int(1)},
			{Kind: KindCompare, Column: "age", Op: OpEQ, Value: sqlvalue.Int(999)},
		},
	}
	c, err := Compile(tree, []string{"id", "age"}, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if Evaluate(c, buf, types, off, 0) {
		t.Errorf("AND with a false conjunct must evaluate false")
	}
}

func TestOrMatchesEither(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Int(2)})
	tree := &Node{
		Kind: KindOr,
		Children: []*Node{
			{Kind: KindCompare, Column: "id", Op: OpEQ, Value: sqlvalue.Int(999)},
			{Kind: KindCompare, Column: "age", Op: OpEQ, Value: sqlvalue.Int(2)},
		},
	}
	c, err := Compile(tree, []string{"id", "age"}, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !Evaluate(c, buf, types, off, 0) {
		t.Errorf("OR with one true disjunct must evaluate true")
	}
}

func TestBetweenNumeric(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(50)})
	n := &Node{Kind: KindBetween, Column: "age", Low: sqlvalue.Int(10), High: sqlvalue.Int(100)}
	c, err := Compile(n, []string{"age"}, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !Evaluate(c, buf, types, off, 0) {
		t.Errorf("expected 50 to be between 10 and 100")
	}
}

func TestStartsWithEndsWithContains(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Text("hello world")})
	cols := []string{"s"}

	sw, _ := Compile(&Node{Kind: KindStartsWith, Column: "s", Value: sqlvalue.Text("hello")}, cols, -1)
	if !Evaluate(sw, buf, types, off, 0) {
		t.Errorf("expected StartsWith(hello) to match")
	}
	ew, _ := Compile(&Node{Kind: KindEndsWith, Column: "s", Value: sqlvalue.Text("world")}, cols, -1)
	if !Evaluate(ew, buf, types, off, 0) {
		t.Errorf("expected EndsWith(world) to match")
	}
	cn, _ := Compile(&Node{Kind: KindContains, Column: "s", Value: sqlvalue.Text("lo wo")}, cols, -1)
	if !Evaluate(cn, buf, types, off, 0) {
		t.Errorf("expected Contains(lo wo) to match")
	}
}

func TestInNotIn(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(5)})
	cols := []string{"n"}
	in, _ := Compile(&Node{Kind: KindIn, Column: "n", Set: []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Int(5)}}, cols, -1)
	if !Evaluate(in, buf, types, off, 0) {
		t.Errorf("expected 5 In {1,5}")
	}
	notIn, _ := Compile(&Node{Kind: KindNotIn, Column: "n", Set: []sqlvalue.Value{sqlvalue.Int(1), sqlvalue.Int(2)}}, cols, -1)
	if !Evaluate(notIn, buf, types, off, 0) {
		t.Errorf("expected 5 NotIn {1,2}")
	}
}

func TestRowidAliasReadsFromCursorRowid(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Null(), sqlvalue.Text("x")})
	n := &Node{Kind: KindCompare, Column: "id", Op: OpEQ, Value: sqlvalue.Int(42)}
	c, err := Compile(n, []string{"id", "name"}, 0)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !Evaluate(c, buf, types, off, 42) {
		t.Errorf("expected rowid-alias column to compare against the cursor rowid")
	}
	if Evaluate(c, buf, types, off, 43) {
		t.Errorf("expected rowid-alias comparison to fail for a different rowid")
	}
}

func TestCompileRejectsUnknownColumn(t *testing.T) {
	n := &Node{Kind: KindCompare, Column: "ghost", Op: OpEQ, Value: sqlvalue.Int(1)}
	if _, err := Compile(n, columns, -1); err != ErrUnknownColumn {
		t.Errorf("Compile with unknown column: got %v, want ErrUnknownColumn", err)
	}
}

func TestNotNegates(t *testing.T) {
	buf, types, off := encode(t, []sqlvalue.Value{sqlvalue.Int(1)})
	n := &Node{Kind: KindNot, Children: []*Node{
		{Kind: KindCompare, Column: "id", Op: OpEQ, Value: sqlvalue.Int(1)},
	}}
	c, err := Compile(n, []string{"id"}, -1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if Evaluate(c, buf, types, off, 0) {
		t.Errorf("Not(true) must evaluate false")
	}
}
