package engine

import (
	"fmt"

	"github.com/relcore/relcore/internal/index"
	"github.com/relcore/relcore/internal/storage"
)

// indexKey projects row onto an index's columns, in the index's
// declared column order (spec.md §4.H "build the key by projecting
// the final row on the index columns").
func indexKey(t *Table, cols []string, row storage.Row) ([]storage.Value, error) {
	key := make([]storage.Value, len(cols))
	for i, name := range cols {
		idx := t.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrIndexColumnMissing, name)
		}
		key[i] = row[idx]
	}
	return key, nil
}

// insertIntoIndexes adds pos to every index defined on t, keyed by
// row's projection on each index's columns.
func (eng *Engine) insertIntoIndexes(t *Table, row storage.Row, pos storage.TupleID) error {
	for _, name := range t.IndexNames {
		h := eng.indexes[name]
		key, err := indexKey(t, h.Columns, row)
		if err != nil {
			return err
		}
		h.Tree.Insert(key, pos)
	}
	return nil
}

// removeFromIndexes removes pos from every index defined on t, keyed
// by row's projection on each index's columns.
func (eng *Engine) removeFromIndexes(t *Table, row storage.Row, pos storage.TupleID) error {
	for _, name := range t.IndexNames {
		h := eng.indexes[name]
		key, err := indexKey(t, h.Columns, row)
		if err != nil {
			return err
		}
		h.Tree.Remove(key, pos)
	}
	return nil
}

// rebuildIndexesForTable implements spec.md §4.D "rebuilt from the
// heap at engine open by scanning each base table and inserting every
// live tuple" — a tuple is dead only once xmax is set AND the deleting
// transaction committed (eng.txm.Dead), not merely because xmax is
// non-zero: a delete left behind by a transaction that never
// committed (crash recovery normalizes it to Aborted in
// Manager.Restore) must still be indexed, since VisibleDelete will
// still report the row as visible.
func (eng *Engine) rebuildIndexesForTable(t *Table) error {
	if len(t.IndexNames) == 0 {
		return nil
	}
	return t.Heap.ScanAll(func(tid storage.TupleID, data []byte) error {
		hdr, row, err := storage.DecodeTuple(data, t.Columns)
		if err != nil {
			return err
		}
		if eng.txm.Dead(hdr.Xmax) {
			return nil
		}
		return eng.insertIntoIndexes(t, row, tid)
	})
}

// CreateIndex implements spec.md §4.H CREATE INDEX: validate every
// column exists, register in the catalog, build an empty B-tree, then
// populate it from the existing heap.
func (eng *Engine) CreateIndex(name, tableName string, cols []string) error {
	t, ok := eng.tables[tableName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableDoesNotExist, tableName)
	}
	for _, c := range cols {
		if t.columnIndex(c) < 0 {
			return fmt.Errorf("%w: %s", ErrIndexColumnMissing, c)
		}
	}
	if _, exists := eng.indexes[name]; exists {
		return fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	if _, err := eng.cat.CreateIndex(name, tableName, cols); err != nil {
		return err
	}

	h := &IndexHandle{Name: name, Table: tableName, Columns: cols, Tree: index.New()}
	eng.indexes[name] = h
	t.IndexNames = append(t.IndexNames, name)

	return eng.rebuildIndexesForTable(t)
}
