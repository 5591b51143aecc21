// Executor: CREATE TABLE/INDEX, INSERT, DELETE, UPDATE, SELECT (with
// joins and index-assisted lookups), VACUUM, per spec.md §4.H.
// Grounded on the teacher's paged_storage.go (table lifecycle) and
// engine_adapter.go (operation dispatch shape).
package engine

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/relcore/relcore/internal/catalog"
	"github.com/relcore/relcore/internal/index"
	"github.com/relcore/relcore/internal/storage"
	"github.com/relcore/relcore/internal/txn"
)

// ColumnDef describes one column as written in CREATE TABLE, before
// it becomes a storage.Column.
type ColumnDef struct {
	Name       string
	Type       storage.Kind
	NotNull    bool
	Default    *storage.Value
	PrimaryKey bool
	References *ColumnRef
}

type ColumnRef struct {
	Table  string
	Column string
}

type ForeignKeyDef struct {
	LocalColumns []string
	RefTable     string
	RefColumns   []string
}

// CreateTable implements spec.md §4.H CREATE TABLE: catalog.create_table
// -> heap_file.new -> register in-memory.
func (eng *Engine) CreateTable(name string, cols []ColumnDef, pk string, fks []ForeignKeyDef) error {
	if _, exists := eng.tables[name]; exists {
		return fmt.Errorf("%w: %s", ErrTableAlreadyExists, name)
	}

	colMetas := make([]catalog.ColumnMeta, len(cols))
	storageCols := make([]storage.Column, len(cols))
	for i, c := range cols {
		colMetas[i] = catalog.ColumnMeta{Name: c.Name, Type: c.Type.TypeName(), NotNull: c.NotNull, Default: c.Default}
		storageCols[i] = storage.Column{Name: c.Name, Type: c.Type, NotNull: c.NotNull, Default: c.Default}
		if c.PrimaryKey {
			pk = c.Name
		}
	}

	var pkPtr *string
	if pk != "" {
		pkPtr = &pk
	}

	catFks := make([]catalog.ForeignKeyMeta, 0, len(fks))
	engFks := make([]ForeignKey, 0, len(fks))
	for _, c := range cols {
		if c.References != nil {
			catFks = append(catFks, catalog.ForeignKeyMeta{
				LocalColumns: []string{c.Name},
				RefTable:     c.References.Table,
				RefColumns:   []string{c.References.Column},
			})
			engFks = append(engFks, ForeignKey{
				LocalColumns: []string{c.Name},
				RefTable:     c.References.Table,
				RefColumns:   []string{c.References.Column},
			})
		}
	}
	for _, fk := range fks {
		catFks = append(catFks, catalog.ForeignKeyMeta{LocalColumns: fk.LocalColumns, RefTable: fk.RefTable, RefColumns: fk.RefColumns})
		engFks = append(engFks, ForeignKey{LocalColumns: fk.LocalColumns, RefTable: fk.RefTable, RefColumns: fk.RefColumns})
	}

	path := eng.TablePath(name)
	tm, err := eng.cat.CreateTable(name, colMetas, path, pkPtr, catFks)
	if err != nil {
		return err
	}

	heap, err := storage.NewHeapFile(path)
	if err != nil {
		return err
	}

	eng.tables[name] = &Table{
		OID:         tm.OID,
		Name:        name,
		Columns:     storageCols,
		PrimaryKey:  pk,
		ForeignKeys: engFks,
		Heap:        heap,
	}

	log.Info().Str("table", name).Int("columns", len(cols)).Msg("engine: created table")
	return nil
}

// Insert implements spec.md §4.H INSERT.
func (eng *Engine) Insert(tableName string, cols []string, values []storage.Value, curXid uint32, snap txn.Snapshot) error {
	t, ok := eng.tables[tableName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableDoesNotExist, tableName)
	}

	row, err := ValidateInsert(eng, t, cols, values, curXid, snap)
	if err != nil {
		return err
	}

	data, err := storage.EncodeTuple(row, t.Columns, curXid, 0)
	if err != nil {
		return err
	}
	pos, err := t.Heap.InsertRow(data)
	if err != nil {
		return err
	}
	return eng.insertIntoIndexes(t, row, pos)
}

// scanVisible walks every physical tuple in t's heap, decoding it and
// reporting only the ones visible under (curXid, snap).
func (eng *Engine) scanVisible(t *Table, curXid uint32, snap txn.Snapshot, fn func(pos storage.TupleID, row storage.Row) error) error {
	return t.Heap.ScanAll(func(tid storage.TupleID, data []byte) error {
		hdr, row, err := storage.DecodeTuple(data, t.Columns)
		if err != nil {
			return err
		}
		if !eng.txm.Visible(hdr.Xmin, hdr.Xmax, curXid, snap) {
			return nil
		}
		return fn(tid, row)
	})
}

func singleBinding(t *Table, alias string, row storage.Row) RowBinding {
	rb := RowBinding{
		Aliases: make([]string, len(t.Columns)),
		Columns: make([]string, len(t.Columns)),
		Values:  row,
	}
	for i, c := range t.Columns {
		rb.Aliases[i] = alias
		rb.Columns[i] = c.Name
	}
	return rb
}

// Delete implements spec.md §4.H DELETE: scan heap; for each visible
// tuple matching cond, run the FK-referenced check, remove it from
// every index, then heap.delete_at. Returns the number of rows
// deleted.
func (eng *Engine) Delete(tableName string, cond *Cond, curXid uint32, snap txn.Snapshot) (int, error) {
	t, ok := eng.tables[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableDoesNotExist, tableName)
	}

	type victim struct {
		pos storage.TupleID
		row storage.Row
	}
	var victims []victim

	err := eng.scanVisible(t, curXid, snap, func(pos storage.TupleID, row storage.Row) error {
		ok, err := Eval(cond, singleBinding(t, tableName, row))
		if err != nil {
			return err
		}
		if ok {
			victims = append(victims, victim{pos: pos, row: row.Clone()})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, v := range victims {
		if err := checkFkReferenced(eng, t, v.row); err != nil {
			return 0, err
		}
	}

	for _, v := range victims {
		if err := eng.removeFromIndexes(t, v.row, v.pos); err != nil {
			return 0, err
		}
		if err := t.Heap.DeleteAt(v.pos, curXid); err != nil {
			return 0, err
		}
	}

	return len(victims), nil
}

// Assignment is one `col = expr` clause of an UPDATE statement.
type Assignment struct {
	Column string
	Value  storage.Value
}

// Update implements spec.md §4.H UPDATE: last-assignment-wins per
// column, type-checked, applied to every visible row matching cond.
func (eng *Engine) Update(tableName string, assigns []Assignment, cond *Cond, curXid uint32, snap txn.Snapshot) (int, error) {
	t, ok := eng.tables[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableDoesNotExist, tableName)
	}

	winning := map[int]storage.Value{}
	for _, a := range assigns {
		idx := t.columnIndex(a.Column)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %s", ErrColumnUnknown, a.Column)
		}
		col := t.Columns[idx]
		if !a.Value.IsNull() && a.Value.Kind != col.Type {
			return 0, fmt.Errorf("%w: column %s wants %s, got %s", ErrTypeMismatch, a.Column, col.Type.TypeName(), a.Value.Kind.TypeName())
		}
		winning[idx] = a.Value
	}

	type target struct {
		pos storage.TupleID
		old storage.Row
	}
	var targets []target

	err := eng.scanVisible(t, curXid, snap, func(pos storage.TupleID, row storage.Row) error {
		ok, err := Eval(cond, singleBinding(t, tableName, row))
		if err != nil {
			return err
		}
		if ok {
			targets = append(targets, target{pos: pos, old: row.Clone()})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, tg := range targets {
		post := tg.old.Clone()
		for idx, v := range winning {
			post[idx] = v
		}

		if err := ValidateUpdate(eng, t, post, tg.pos, curXid, snap); err != nil {
			return 0, err
		}

		data, err := storage.EncodeTuple(post, t.Columns, curXid, 0)
		if err != nil {
			return 0, err
		}
		newPos, err := t.Heap.UpdateRow(tg.pos, data, curXid)
		if err != nil {
			return 0, err
		}

		if err := eng.removeFromIndexes(t, tg.old, tg.pos); err != nil {
			return 0, err
		}
		if err := eng.insertIntoIndexes(t, post, newPos); err != nil {
			return 0, err
		}
	}

	return len(targets), nil
}

// ResultSet is a SELECT's materialized output: header metadata plus
// rows, ready for display.
type ResultSet struct {
	Aliases []string
	Columns []string
	Rows    []storage.Row
}

// FromItem is one node of a FROM clause: either a leaf table
// reference or a binary join of two FromItems.
type FromItem struct {
	// Leaf
	Table string
	Alias string

	// Join
	Join  *JoinKind
	On    *Cond
	Left  *FromItem
	Right *FromItem
}

func leafAlias(f *FromItem) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Table
}

// materialize recursively resolves a FromItem into row bindings,
// applying the leaf's index-selection heuristic (spec.md §4.H) at
// leaves and full materialization at join nodes.
func (eng *Engine) materialize(f *FromItem, curXid uint32, snap txn.Snapshot) ([]RowBinding, RowBinding, error) {
	if f.Join == nil {
		t, ok := eng.tables[f.Table]
		if !ok {
			return nil, RowBinding{}, fmt.Errorf("%w: %s", ErrTableDoesNotExist, f.Table)
		}
		alias := leafAlias(f)
		shape := RowBinding{Aliases: make([]string, len(t.Columns)), Columns: make([]string, len(t.Columns))}
		for i, c := range t.Columns {
			shape.Aliases[i] = alias
			shape.Columns[i] = c.Name
		}

		var rows []RowBinding
		err := eng.scanVisible(t, curXid, snap, func(_ storage.TupleID, row storage.Row) error {
			rows = append(rows, singleBinding(t, alias, row))
			return nil
		})
		if err != nil {
			return nil, RowBinding{}, err
		}
		return rows, shape, nil
	}

	left, _, err := eng.materialize(f.Left, curXid, snap)
	if err != nil {
		return nil, RowBinding{}, err
	}
	right, rightShape, err := eng.materialize(f.Right, curXid, snap)
	if err != nil {
		return nil, RowBinding{}, err
	}
	out, err := materializeJoin(*f.Join, left, right, rightShape, f.On)
	if err != nil {
		return nil, RowBinding{}, err
	}

	combinedShape := combineBindings(shapeOf(left, f.Left), rightShape)
	_ = combinedShape
	shape := RowBinding{}
	if len(out) > 0 {
		shape = RowBinding{Aliases: out[0].Aliases, Columns: out[0].Columns}
	} else {
		leftShape := shapeOf(left, f.Left)
		shape = combineBindings(leftShape, rightShape)
	}
	return out, shape, nil
}

func shapeOf(rows []RowBinding, f *FromItem) RowBinding {
	if len(rows) > 0 {
		return RowBinding{Aliases: rows[0].Aliases, Columns: rows[0].Columns}
	}
	return RowBinding{}
}

// leafPositions picks the best access path for a leaf table scan
// given a WHERE predicate, per spec.md §4.H's index-selection
// heuristic. It is exposed for the executor's leaf-materialize path
// (kept separate from materialize for unit-testability), though
// materialize above uses a full scan directly for simplicity on join
// inputs — index selection applies to the single-table SELECT path,
// wired in Select below.
func (eng *Engine) leafPositions(t *Table, cond *Cond) ([]storage.TupleID, bool) {
	if cond == nil {
		return nil, false
	}

	if cols, vals, ok := EqConjuncts(cond); ok {
		if h := eng.findIndexForColumnSet(t, cols); h != nil {
			key := make([]storage.Value, len(h.Columns))
			for i, name := range h.Columns {
				for j, c := range cols {
					if c == name {
						key[i] = vals[j]
					}
				}
			}
			return h.Tree.SearchEq(key), true
		}
	}

	if col, op, lit, ok := SingleRangeConjunct(cond); ok {
		if h := eng.findSingleColumnIndex(t, col); h != nil {
			lower, upper := index.Bound{Kind: index.Unbounded}, index.Bound{Kind: index.Unbounded}
			switch op {
			case OpLt:
				upper = index.Bound{Kind: index.Excluded, Key: []storage.Value{lit}}
			case OpLe:
				upper = index.Bound{Kind: index.Included, Key: []storage.Value{lit}}
			case OpGt:
				lower = index.Bound{Kind: index.Excluded, Key: []storage.Value{lit}}
			case OpGe:
				lower = index.Bound{Kind: index.Included, Key: []storage.Value{lit}}
			}
			return h.Tree.SearchRange(lower, upper), true
		}
	}

	return nil, false
}

func (eng *Engine) findIndexForColumnSet(t *Table, cols []string) *IndexHandle {
	want := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		want[c] = struct{}{}
	}
	for _, name := range t.IndexNames {
		h := eng.indexes[name]
		if len(h.Columns) != len(want) {
			continue
		}
		match := true
		for _, c := range h.Columns {
			if _, ok := want[c]; !ok {
				match = false
				break
			}
		}
		if match {
			return h
		}
	}
	return nil
}

func (eng *Engine) findSingleColumnIndex(t *Table, col string) *IndexHandle {
	for _, name := range t.IndexNames {
		h := eng.indexes[name]
		if len(h.Columns) == 1 && h.Columns[0] == col {
			return h
		}
	}
	return nil
}

// Select implements spec.md §4.H SELECT, including the leaf
// index-selection heuristic for a single-table FROM clause.
func (eng *Engine) Select(cols []string, from *FromItem, cond *Cond, curXid uint32, snap txn.Snapshot) (*ResultSet, error) {
	var rows []RowBinding
	var shape RowBinding

	if from.Join == nil {
		t, ok := eng.tables[from.Table]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTableDoesNotExist, from.Table)
		}
		alias := leafAlias(from)
		shape = RowBinding{Aliases: make([]string, len(t.Columns)), Columns: make([]string, len(t.Columns))}
		for i, c := range t.Columns {
			shape.Aliases[i] = alias
			shape.Columns[i] = c.Name
		}

		if positions, usable := eng.leafPositions(t, cond); usable {
			for _, pos := range positions {
				data, found, err := t.Heap.GetTuple(pos)
				if err != nil {
					return nil, err
				}
				if !found {
					continue
				}
				hdr, row, err := storage.DecodeTuple(data, t.Columns)
				if err != nil {
					return nil, err
				}
				if !eng.txm.Visible(hdr.Xmin, hdr.Xmax, curXid, snap) {
					continue
				}
				ok, err := Eval(cond, singleBinding(t, alias, row))
				if err != nil {
					return nil, err
				}
				if ok {
					rows = append(rows, singleBinding(t, alias, row))
				}
			}
		} else {
			err := eng.scanVisible(t, curXid, snap, func(_ storage.TupleID, row storage.Row) error {
				ok, err := Eval(cond, singleBinding(t, alias, row))
				if err != nil {
					return err
				}
				if ok {
					rows = append(rows, singleBinding(t, alias, row))
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	} else {
		var err error
		rows, shape, err = eng.materialize(from, curXid, snap)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			filtered := rows[:0]
			for _, rb := range rows {
				ok, err := Eval(cond, rb)
				if err != nil {
					return nil, err
				}
				if ok {
					filtered = append(filtered, rb)
				}
			}
			rows = filtered
		}
	}

	return projectColumns(cols, shape, rows)
}

// projectColumns implements spec.md §4.H's projection rules: "*"
// returns every column with alias.name headers; otherwise each name
// resolves via the §4.G ambiguity rules (qualified alias.col,
// unqualified unique match, unqualified-on-join ambiguity).
func projectColumns(cols []string, shape RowBinding, rows []RowBinding) (*ResultSet, error) {
	if len(cols) == 1 && cols[0] == "*" {
		out := &ResultSet{Aliases: append([]string(nil), shape.Aliases...), Columns: append([]string(nil), shape.Columns...)}
		for _, rb := range rows {
			out.Rows = append(out.Rows, storage.Row(rb.Values))
		}
		return out, nil
	}

	idxs := make([]int, len(cols))
	outAliases := make([]string, len(cols))
	outColumns := make([]string, len(cols))
	for i, raw := range cols {
		alias, col := splitQualified(raw)
		idx, err := shape.resolve(alias, col)
		if err != nil {
			return nil, err
		}
		idxs[i] = idx
		outAliases[i] = shape.Aliases[idx]
		outColumns[i] = shape.Columns[idx]
	}

	out := &ResultSet{Aliases: outAliases, Columns: outColumns}
	for _, rb := range rows {
		row := make(storage.Row, len(idxs))
		for i, idx := range idxs {
			row[i] = rb.Values[idx]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func splitQualified(name string) (alias, col string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// Vacuum implements spec.md §4.H VACUUM: reclaim dead tuples from a
// table's heap and drop their matching index entries, returning the
// number removed.
func (eng *Engine) Vacuum(tableName string) (int, error) {
	t, ok := eng.tables[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableDoesNotExist, tableName)
	}

	stats, err := t.Heap.Vacuum(t.Columns, eng.txm.Dead, func(tid storage.TupleID, hdr storage.TupleHeader) {
		data, found, gerr := t.Heap.GetTuple(tid)
		if gerr != nil || !found {
			return
		}
		_, row, derr := storage.DecodeTuple(data, t.Columns)
		if derr != nil {
			return
		}
		_ = eng.removeFromIndexes(t, row, tid)
	})
	if err != nil {
		return 0, err
	}

	log.Info().Str("table", tableName).Int("removed", stats.Removed).Msg("engine: vacuum complete")
	return stats.Removed, nil
}
