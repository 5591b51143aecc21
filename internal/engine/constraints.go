// Constraint validation, grounded on the teacher's
// src/core/constraints.go ConstraintValidator, rewritten against the
// typed storage.Value/Row instead of interface{} maps and extended
// with the delete-side FkReferenced (RESTRICT) check the teacher
// never implements, per spec.md §4.F.
package engine

import (
	"fmt"

	"github.com/relcore/relcore/internal/storage"
	"github.com/relcore/relcore/internal/txn"
)

// bindColumns implements spec.md §4.F step 1: if an explicit column
// list was given, verify counts, names, and place each value at its
// column index in a Null-initialized row; else require a full
// positional row.
func bindColumns(t *Table, cols []string, values []storage.Value) (storage.Row, error) {
	if cols == nil {
		if len(values) != len(t.Columns) {
			return nil, fmt.Errorf("%w: table %s has %d columns, got %d values", ErrColumnCountMismatch, t.Name, len(t.Columns), len(values))
		}
		return storage.Row(values).Clone(), nil
	}

	if len(cols) != len(values) {
		return nil, fmt.Errorf("%w: %d columns named, %d values given", ErrColumnCountMismatch, len(cols), len(values))
	}

	row := make(storage.Row, len(t.Columns))
	for i := range row {
		row[i] = storage.NullValue()
	}
	for i, name := range cols {
		idx := t.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnUnknown, t.Name, name)
		}
		row[idx] = values[i]
	}
	return row, nil
}

// applyDefaultsAndNotNull implements spec.md §4.F steps 2-3: type
// check every non-Null value, then for each still-Null column
// substitute its default or reject if not_null.
func applyDefaultsAndNotNull(t *Table, row storage.Row) error {
	for i, col := range t.Columns {
		v := row[i]
		if !v.IsNull() {
			if v.Kind != col.Type {
				return fmt.Errorf("%w: column %s wants %s, got %s", ErrTypeMismatch, col.Name, col.Type.TypeName(), v.Kind.TypeName())
			}
			continue
		}
		if col.Default != nil {
			row[i] = *col.Default
			continue
		}
		if col.NotNull {
			return fmt.Errorf("%w: %s", ErrNotNullViolation, col.Name)
		}
	}
	return nil
}

// checkPrimaryKey implements spec.md §4.F step 4. skipPos, when
// non-nil, excludes that heap position from the uniqueness scan —
// used by UPDATE to bypass the pre-image's own slot.
func checkPrimaryKey(t *Table, tm *txn.Manager, curXid uint32, snap txn.Snapshot, row storage.Row, skipPos *storage.TupleID) error {
	if t.PrimaryKey == "" {
		return nil
	}
	pkIdx := t.columnIndex(t.PrimaryKey)
	if pkIdx < 0 {
		return fmt.Errorf("engine: table %s has unknown primary key column %s", t.Name, t.PrimaryKey)
	}
	if row[pkIdx].IsNull() {
		return fmt.Errorf("%w: %s", ErrPkNull, t.PrimaryKey)
	}

	var scanErr error
	err := t.Heap.ScanAll(func(tid storage.TupleID, data []byte) error {
		if skipPos != nil && tid == *skipPos {
			return nil
		}
		hdr, other, derr := storage.DecodeTuple(data, t.Columns)
		if derr != nil {
			return derr
		}
		if !tm.Visible(hdr.Xmin, hdr.Xmax, curXid, snap) {
			return nil
		}
		if other[pkIdx].Equal(row[pkIdx]) {
			scanErr = fmt.Errorf("%w: %s=%s", ErrPkConflict, t.PrimaryKey, row[pkIdx].String())
			return scanErr
		}
		return nil
	})
	if err != nil {
		return err
	}
	return scanErr
}

// checkForeignKeys implements spec.md §4.F step 5: for each FK,
// project the row on its local columns; if all are Null, skip;
// otherwise require at least one matching tuple in the referenced
// table via a plain scan (dirty read, no snapshot filter).
func checkForeignKeys(eng *Engine, t *Table, row storage.Row) error {
	for _, fk := range t.ForeignKeys {
		allNull := true
		localVals := make([]storage.Value, len(fk.LocalColumns))
		for i, name := range fk.LocalColumns {
			idx := t.columnIndex(name)
			if idx < 0 {
				return fmt.Errorf("engine: fk local column %s unknown on %s", name, t.Name)
			}
			localVals[i] = row[idx]
			if !row[idx].IsNull() {
				allNull = false
			}
		}
		if allNull {
			continue
		}

		ref, ok := eng.tables[fk.RefTable]
		if !ok {
			return fmt.Errorf("%w: %s", ErrFkMissingRef, fk.RefTable)
		}
		refIdxs := make([]int, len(fk.RefColumns))
		for i, name := range fk.RefColumns {
			idx := ref.columnIndex(name)
			if idx < 0 {
				return fmt.Errorf("%w: %s.%s", ErrFkMissingRef, fk.RefTable, name)
			}
			refIdxs[i] = idx
		}

		found := false
		_ = ref.Heap.ScanAll(func(_ storage.TupleID, data []byte) error {
			if found {
				return nil
			}
			_, other, derr := storage.DecodeTuple(data, ref.Columns)
			if derr != nil {
				return nil
			}
			match := true
			for i, idx := range refIdxs {
				if !other[idx].Equal(localVals[i]) {
					match = false
					break
				}
			}
			if match {
				found = true
			}
			return nil
		})
		if !found {
			return fmt.Errorf("%w: %s on %v", ErrFkViolation, fk.RefTable, fk.LocalColumns)
		}
	}
	return nil
}

// checkFkReferenced implements the delete-side RESTRICT check,
// spec.md §4.F "Applied during DELETE": for every other table whose
// FK points at t, reject if any tuple there matches the row being
// deleted on the FK columns.
func checkFkReferenced(eng *Engine, t *Table, row storage.Row) error {
	for _, child := range eng.tables {
		for _, fk := range child.ForeignKeys {
			if fk.RefTable != t.Name {
				continue
			}
			refIdxs := make([]int, len(fk.RefColumns))
			for i, name := range fk.RefColumns {
				refIdxs[i] = t.columnIndex(name)
			}
			localIdxs := make([]int, len(fk.LocalColumns))
			for i, name := range fk.LocalColumns {
				localIdxs[i] = child.columnIndex(name)
			}

			var blocked error
			child.Heap.ScanAll(func(_ storage.TupleID, data []byte) error {
				if blocked != nil {
					return nil
				}
				_, other, derr := storage.DecodeTuple(data, child.Columns)
				if derr != nil {
					return nil
				}
				match := true
				for i := range refIdxs {
					if !other[localIdxs[i]].Equal(row[refIdxs[i]]) {
						match = false
						break
					}
				}
				if match {
					blocked = fmt.Errorf("%w: %s references %s", ErrFkReferenced, child.Name, t.Name)
				}
				return nil
			})
			if blocked != nil {
				return blocked
			}
		}
	}
	return nil
}

// ValidateInsert runs the full insert-time constraint pipeline
// (spec.md §4.F), returning the fully-bound post-image row.
func ValidateInsert(eng *Engine, t *Table, cols []string, values []storage.Value, curXid uint32, snap txn.Snapshot) (storage.Row, error) {
	row, err := bindColumns(t, cols, values)
	if err != nil {
		return nil, err
	}
	if err := applyDefaultsAndNotNull(t, row); err != nil {
		return nil, err
	}
	if err := checkPrimaryKey(t, eng.txm, curXid, snap, row, nil); err != nil {
		return nil, err
	}
	if err := checkForeignKeys(eng, t, row); err != nil {
		return nil, err
	}
	return row, nil
}

// ValidateUpdate runs the update-time pipeline: same as insert but
// the PK uniqueness scan excludes the row's own pre-image position.
func ValidateUpdate(eng *Engine, t *Table, post storage.Row, oldPos storage.TupleID, curXid uint32, snap txn.Snapshot) error {
	if err := applyDefaultsAndNotNull(t, post); err != nil {
		return err
	}
	if err := checkPrimaryKey(t, eng.txm, curXid, snap, post, &oldPos); err != nil {
		return err
	}
	return checkForeignKeys(eng, t, post)
}
