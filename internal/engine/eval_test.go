package engine

import (
	"errors"
	"testing"

	"github.com/relcore/relcore/internal/storage"
)

func col(alias, name string) Operand { return ColumnOperand(alias, name) }
func lit(v storage.Value) Operand    { return LiteralOperand(v) }

func singleRowBinding() RowBinding {
	return RowBinding{
		Aliases: []string{"t", "t"},
		Columns: []string{"id", "name"},
		Values:  []storage.Value{storage.IntValue(1), storage.TextValue("alice")},
	}
}

func TestEvalNilCondIsTrue(t *testing.T) {
	ok, err := Eval(nil, singleRowBinding())
	if err != nil || !ok {
		t.Fatalf("a nil condition should evaluate true with no error, got ok=%v err=%v", ok, err)
	}
}

func TestEvalComparisonOperators(t *testing.T) {
	rb := singleRowBinding()
	cases := []struct {
		op   CmpOp
		rhs  storage.Value
		want bool
	}{
		{OpEq, storage.IntValue(1), true},
		{OpEq, storage.IntValue(2), false},
		{OpNe, storage.IntValue(2), true},
		{OpNe, storage.IntValue(1), false},
		{OpLt, storage.IntValue(2), true},
		{OpLt, storage.IntValue(1), false},
		{OpLe, storage.IntValue(1), true},
		{OpLe, storage.IntValue(0), false},
		{OpGt, storage.IntValue(0), true},
		{OpGt, storage.IntValue(1), false},
		{OpGe, storage.IntValue(1), true},
		{OpGe, storage.IntValue(2), false},
	}
	for _, c := range cases {
		got, err := Eval(Cmp(c.op, col("t", "id"), lit(c.rhs)), rb)
		if err != nil {
			t.Fatalf("op %v: unexpected error: %v", c.op, err)
		}
		if got != c.want {
			t.Fatalf("op %v against %v: got %v want %v", c.op, c.rhs, got, c.want)
		}
	}
}

func TestEvalAndOrNot(t *testing.T) {
	rb := singleRowBinding()
	idEq1 := Cmp(OpEq, col("t", "id"), lit(storage.IntValue(1)))
	idEq2 := Cmp(OpEq, col("t", "id"), lit(storage.IntValue(2)))

	if got, err := Eval(And(idEq1, idEq2), rb); err != nil || got {
		t.Fatalf("AND of true,false should be false, got %v err=%v", got, err)
	}
	if got, err := Eval(Or(idEq1, idEq2), rb); err != nil || !got {
		t.Fatalf("OR of true,false should be true, got %v err=%v", got, err)
	}
	if got, err := Eval(Not(idEq1), rb); err != nil || got {
		t.Fatalf("NOT true should be false, got %v err=%v", got, err)
	}
	if got, err := Eval(Not(idEq2), rb); err != nil || !got {
		t.Fatalf("NOT false should be true, got %v err=%v", got, err)
	}
}

// TestEvalNullLeftOperandIsFalse: spec.md's Null-LHS rule — no error,
// just false, regardless of the RHS.
func TestEvalNullLeftOperandIsFalse(t *testing.T) {
	rb := RowBinding{
		Aliases: []string{"t"},
		Columns: []string{"id"},
		Values:  []storage.Value{storage.NullValue()},
	}
	got, err := Eval(Cmp(OpEq, col("t", "id"), lit(storage.IntValue(1))), rb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatalf("Null left operand must make the comparison false, got true")
	}
}

// TestEvalNullRightOperandIsTypeMismatch: a non-Null LHS compared
// against a Null RHS falls into the "otherwise" branch of spec.md's
// comparison rule — Kind mismatch (non-Null vs KindNull) must raise
// ErrTypeMismatch, not silently evaluate to false.
func TestEvalNullRightOperandIsTypeMismatch(t *testing.T) {
	rb := singleRowBinding()
	_, err := Eval(Cmp(OpEq, col("t", "id"), lit(storage.NullValue())), rb)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch for a Null right operand, got %v", err)
	}
}

func TestEvalTypeMismatch(t *testing.T) {
	rb := singleRowBinding()
	_, err := Eval(Cmp(OpEq, col("t", "id"), lit(storage.TextValue("1"))), rb)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch comparing INT to TEXT, got %v", err)
	}
}

// TestEvalBoolRejectsOrderingOperators: spec.md §4.G only allows =/!=
// on BOOL, every ordering operator must be rejected.
func TestEvalBoolRejectsOrderingOperators(t *testing.T) {
	rb := RowBinding{
		Aliases: []string{"t"},
		Columns: []string{"active"},
		Values:  []storage.Value{storage.BoolValue(true)},
	}
	for _, op := range []CmpOp{OpLt, OpLe, OpGt, OpGe} {
		_, err := Eval(Cmp(op, col("t", "active"), lit(storage.BoolValue(false))), rb)
		if !errors.Is(err, ErrInvalidOpForType) {
			t.Fatalf("op %v on BOOL: expected ErrInvalidOpForType, got %v", op, err)
		}
	}
	for _, op := range []CmpOp{OpEq, OpNe} {
		if _, err := Eval(Cmp(op, col("t", "active"), lit(storage.BoolValue(false))), rb); err != nil {
			t.Fatalf("op %v on BOOL should be allowed, got %v", op, err)
		}
	}
}

// TestResolveAmbiguousUnqualifiedColumn: two joined tables that share
// an unqualified column name must reject an unqualified reference.
func TestResolveAmbiguousUnqualifiedColumn(t *testing.T) {
	rb := RowBinding{
		Aliases: []string{"a", "b"},
		Columns: []string{"id", "id"},
		Values:  []storage.Value{storage.IntValue(1), storage.IntValue(2)},
	}
	_, err := Eval(Cmp(OpEq, col("", "id"), lit(storage.IntValue(1))), rb)
	if !errors.Is(err, ErrAmbiguousColumn) {
		t.Fatalf("expected ErrAmbiguousColumn, got %v", err)
	}
}

// TestResolveQualifiedColumnDisambiguates shows the alias-qualified
// form resolves the same join binding unambiguously.
func TestResolveQualifiedColumnDisambiguates(t *testing.T) {
	rb := RowBinding{
		Aliases: []string{"a", "b"},
		Columns: []string{"id", "id"},
		Values:  []storage.Value{storage.IntValue(1), storage.IntValue(2)},
	}
	got, err := Eval(Cmp(OpEq, col("b", "id"), lit(storage.IntValue(2))), rb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatalf("expected b.id = 2 to match")
	}
}

func TestResolveUnknownColumn(t *testing.T) {
	rb := singleRowBinding()
	_, err := Eval(Cmp(OpEq, col("", "missing"), lit(storage.IntValue(1))), rb)
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestEqConjunctsAndSingleRangeConjunct(t *testing.T) {
	eq := And(
		Cmp(OpEq, col("", "a"), lit(storage.IntValue(1))),
		Cmp(OpEq, col("", "b"), lit(storage.IntValue(2))),
	)
	cols, vals, ok := EqConjuncts(eq)
	if !ok || len(cols) != 2 || len(vals) != 2 {
		t.Fatalf("expected a 2-column eq conjunct set, got cols=%v vals=%v ok=%v", cols, vals, ok)
	}

	rng := Cmp(OpGt, col("", "a"), lit(storage.IntValue(5)))
	c, op, v, ok := SingleRangeConjunct(rng)
	if !ok || c != "a" || op != OpGt || v.I != 5 {
		t.Fatalf("got c=%q op=%v v=%v ok=%v", c, op, v, ok)
	}

	// Literal on the left must flip the operator.
	flipped := Cmp(OpLt, lit(storage.IntValue(5)), col("", "a"))
	c2, op2, v2, ok2 := SingleRangeConjunct(flipped)
	if !ok2 || c2 != "a" || op2 != OpGt || v2.I != 5 {
		t.Fatalf("flipped range: got c=%q op=%v v=%v ok=%v", c2, op2, v2, ok2)
	}
}
