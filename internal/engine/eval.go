package engine

import (
	"fmt"

	"github.com/relcore/relcore/internal/storage"
)

// CmpOp is one of the six comparison operators spec.md §4.G allows.
type CmpOp uint8

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// Operand is either a column reference or a literal value.
type Operand struct {
	IsLiteral bool
	Literal   storage.Value
	Alias     string // qualifier before the dot, "" if unqualified
	Column    string
}

func LiteralOperand(v storage.Value) Operand { return Operand{IsLiteral: true, Literal: v} }
func ColumnOperand(alias, col string) Operand {
	return Operand{Alias: alias, Column: col}
}

// Cond is a predicate tree: Cmp leaves, And/Or/Not combinators, per
// spec.md §4.G.
type Cond struct {
	Kind CondKind

	// Cmp fields
	Op  CmpOp
	LHS Operand
	RHS Operand

	// And/Or/Not fields
	Left  *Cond
	Right *Cond
}

type CondKind uint8

const (
	CondCmp CondKind = iota
	CondAnd
	CondOr
	CondNot
)

func Cmp(op CmpOp, lhs, rhs Operand) *Cond { return &Cond{Kind: CondCmp, Op: op, LHS: lhs, RHS: rhs} }
func And(l, r *Cond) *Cond                 { return &Cond{Kind: CondAnd, Left: l, Right: r} }
func Or(l, r *Cond) *Cond                  { return &Cond{Kind: CondOr, Left: l, Right: r} }
func Not(c *Cond) *Cond                    { return &Cond{Kind: CondNot, Left: c} }

// RowBinding is one materialized, possibly-joined row: values plus parallel
// alias/column metadata used for predicate and projection lookup.
type RowBinding struct {
	Aliases []string
	Columns []string
	Values  []storage.Value
}

func (rb RowBinding) resolve(alias, col string) (int, error) {
	if alias != "" {
		for i := range rb.Values {
			if rb.Aliases[i] == alias && rb.Columns[i] == col {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, alias, col)
	}

	match := -1
	for i := range rb.Values {
		if rb.Columns[i] == col {
			if match != -1 {
				return -1, fmt.Errorf("%w: %s", ErrAmbiguousColumn, col)
			}
			match = i
		}
	}
	if match == -1 {
		return -1, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	return match, nil
}

func (rb RowBinding) operandValue(op Operand) (storage.Value, error) {
	if op.IsLiteral {
		return op.Literal, nil
	}
	i, err := rb.resolve(op.Alias, op.Column)
	if err != nil {
		return storage.Value{}, err
	}
	return rb.Values[i], nil
}

// Eval evaluates a condition tree against a row binding. If left
// evaluates to Null, the comparison is false (two-valued logic by
// design, spec.md §4.G).
func Eval(c *Cond, rb RowBinding) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.Kind {
	case CondAnd:
		l, err := Eval(c.Left, rb)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return Eval(c.Right, rb)
	case CondOr:
		l, err := Eval(c.Left, rb)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return Eval(c.Right, rb)
	case CondNot:
		v, err := Eval(c.Left, rb)
		if err != nil {
			return false, err
		}
		return !v, nil
	case CondCmp:
		return evalCmp(c, rb)
	default:
		return false, fmt.Errorf("engine: unknown condition kind")
	}
}

func evalCmp(c *Cond, rb RowBinding) (bool, error) {
	lv, err := rb.operandValue(c.LHS)
	if err != nil {
		return false, err
	}
	if lv.IsNull() {
		return false, nil
	}
	rv, err := rb.operandValue(c.RHS)
	if err != nil {
		return false, err
	}
	if lv.Kind != rv.Kind {
		return false, fmt.Errorf("%w: %s vs %s for %s", ErrTypeMismatch, lv.Kind.TypeName(), rv.Kind.TypeName(), c.Op)
	}
	if lv.Kind == storage.KindBool && c.Op != OpEq && c.Op != OpNe {
		return false, fmt.Errorf("%w: %s on BOOL", ErrInvalidOpForType, c.Op)
	}

	cmp := lv.Compare(rv)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("engine: unknown comparison operator")
	}
}

// EqConjuncts walks a Cond tree of pure ANDs and collects every
// `col = literal` conjunct, used by the executor's index-selection
// heuristic (spec.md §4.H). Returns ok=false if the tree contains
// anything other than an AND-chain of equality comparisons.
func EqConjuncts(c *Cond) (cols []string, vals []storage.Value, ok bool) {
	if c == nil {
		return nil, nil, false
	}
	var walk func(n *Cond) bool
	walk = func(n *Cond) bool {
		switch n.Kind {
		case CondAnd:
			return walk(n.Left) && walk(n.Right)
		case CondCmp:
			if n.Op != OpEq {
				return false
			}
			var col string
			var lit storage.Value
			switch {
			case !n.LHS.IsLiteral && n.RHS.IsLiteral:
				col, lit = n.LHS.Column, n.RHS.Literal
			case n.LHS.IsLiteral && !n.RHS.IsLiteral:
				col, lit = n.RHS.Column, n.LHS.Literal
			default:
				return false
			}
			cols = append(cols, col)
			vals = append(vals, lit)
			return true
		default:
			return false
		}
	}
	if !walk(c) {
		return nil, nil, false
	}
	return cols, vals, true
}

// SingleRangeConjunct recognizes a lone `col op literal` with op in
// {<,<=,>,>=}, for the executor's range-scan heuristic.
func SingleRangeConjunct(c *Cond) (col string, op CmpOp, lit storage.Value, ok bool) {
	if c == nil || c.Kind != CondCmp {
		return "", 0, storage.Value{}, false
	}
	if c.Op != OpLt && c.Op != OpLe && c.Op != OpGt && c.Op != OpGe {
		return "", 0, storage.Value{}, false
	}
	switch {
	case !c.LHS.IsLiteral && c.RHS.IsLiteral:
		return c.LHS.Column, c.Op, c.RHS.Literal, true
	case c.LHS.IsLiteral && !c.RHS.IsLiteral:
		return c.RHS.Column, flipOp(c.Op), c.LHS.Literal, true
	default:
		return "", 0, storage.Value{}, false
	}
}

func flipOp(op CmpOp) CmpOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}
