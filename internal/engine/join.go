// Join materialization, grounded on the teacher's join.go nested-loop
// shape (innerJoin/leftJoin over materialized []Row slices), narrowed
// to the two join types spec.md §6 supports (INNER, LEFT) and
// generalized to carry alias-qualified column metadata through
// RowBinding so predicates can reference either side.
package engine

import "github.com/relcore/relcore/internal/storage"

type JoinKind uint8

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// materializeJoin performs full materialization, per spec.md §9
// "specified as full materialization for simplicity": INNER emits
// left⊕right wherever eval(on) == true; LEFT additionally emits
// left⊕(Nulls) for left rows with no matching right row. Row order is
// left-driven and stable within each side. rightShape carries the
// right side's alias/column metadata (but no meaningful values) so a
// LEFT JOIN can still project correctly-named NULL columns even when
// the right side has zero materialized rows.
func materializeJoin(kind JoinKind, left, right []RowBinding, rightShape RowBinding, on *Cond) ([]RowBinding, error) {
	var out []RowBinding

	for _, l := range left {
		matched := false
		for _, r := range right {
			combined := combineBindings(l, r)
			ok, err := Eval(on, combined)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, combined)
				matched = true
			}
		}
		if !matched && kind == LeftJoin {
			out = append(out, combineBindings(l, nullBinding(rightShape)))
		}
	}

	return out, nil
}

func combineBindings(l, r RowBinding) RowBinding {
	out := RowBinding{
		Aliases: make([]string, 0, len(l.Aliases)+len(r.Aliases)),
		Columns: make([]string, 0, len(l.Columns)+len(r.Columns)),
		Values:  make([]storage.Value, 0, len(l.Values)+len(r.Values)),
	}
	out.Aliases = append(out.Aliases, l.Aliases...)
	out.Columns = append(out.Columns, l.Columns...)
	out.Values = append(out.Values, l.Values...)
	out.Aliases = append(out.Aliases, r.Aliases...)
	out.Columns = append(out.Columns, r.Columns...)
	out.Values = append(out.Values, r.Values...)
	return out
}

// nullBinding returns a binding with shape's alias/column metadata
// but every value Null — used for LEFT JOIN's unmatched left rows.
func nullBinding(shape RowBinding) RowBinding {
	out := RowBinding{
		Aliases: append([]string(nil), shape.Aliases...),
		Columns: append([]string(nil), shape.Columns...),
		Values:  make([]storage.Value, len(shape.Aliases)),
	}
	for i := range out.Values {
		out.Values[i] = storage.NullValue()
	}
	return out
}
