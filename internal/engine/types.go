package engine

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/relcore/relcore/internal/catalog"
	"github.com/relcore/relcore/internal/index"
	"github.com/relcore/relcore/internal/storage"
	"github.com/relcore/relcore/internal/txn"
)

// ForeignKey is one FK constraint attached to a table.
type ForeignKey struct {
	LocalColumns []string
	RefTable     string
	RefColumns   []string
}

// IndexHandle is one live B-tree index plus the metadata the
// executor's index-selection heuristic needs: which table it's on
// and which columns, in key order.
type IndexHandle struct {
	Name    string
	Table   string
	Columns []string
	Tree    *index.Index
}

// Table is one in-memory table: its schema, its open heap file, and
// the names of every index defined on it.
type Table struct {
	OID         uint64
	Name        string
	Columns     []storage.Column
	PrimaryKey  string // "" if none
	ForeignKeys []ForeignKey
	Heap        *storage.HeapFile
	IndexNames  []string
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Engine owns the whole in-memory database: tables, indexes, the
// transaction manager, and the catalog handle — one owning value
// threaded through every operation, per spec.md §9's "package as one
// owning Engine value; no process-wide statics".
type Engine struct {
	dir     string
	cat     *catalog.Catalog
	txm     *txn.Manager
	tables  map[string]*Table
	indexes map[string]*IndexHandle
}

// Open implements spec.md §4.I open(): load the catalog, instantiate
// tables from metadata (attaching each table's existing heap-file
// path), restore the transactions map and next_xid, and rebuild every
// B-tree by scanning its table.
func Open(dir string) (*Engine, error) {
	cat, err := catalog.LoadOrCreate(dir)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		dir:     dir,
		cat:     cat,
		txm:     txn.NewManager(1),
		tables:  make(map[string]*Table),
		indexes: make(map[string]*IndexHandle),
	}

	eng.txm.Restore(cat.NextXidPeek(), cat.TransactionStatuses())

	for name, tm := range cat.Tables() {
		t, err := attachTable(name, tm)
		if err != nil {
			return nil, fmt.Errorf("engine: open table %q: %w", name, err)
		}
		eng.tables[name] = t
	}

	for name, im := range cat.Indexes() {
		t, ok := eng.tables[im.Table]
		if !ok {
			return nil, fmt.Errorf("engine: index %q references unknown table %q", name, im.Table)
		}
		h := &IndexHandle{Name: im.Name, Table: im.Table, Columns: im.Columns, Tree: index.New()}
		eng.indexes[name] = h
		t.IndexNames = append(t.IndexNames, name)
	}

	for _, t := range eng.tables {
		if err := eng.rebuildIndexesForTable(t); err != nil {
			return nil, err
		}
	}

	log.Info().Str("dir", dir).Int("tables", len(eng.tables)).Int("indexes", len(eng.indexes)).Msg("engine: opened")
	return eng, nil
}

func attachTable(name string, tm catalog.TableMeta) (*Table, error) {
	cols := make([]storage.Column, len(tm.Columns))
	for i, cm := range tm.Columns {
		kind, ok := storage.TypeFromName(cm.Type)
		if !ok {
			return nil, fmt.Errorf("engine: unknown column type %q", cm.Type)
		}
		var def *storage.Value
		if cm.Default != nil {
			v := *cm.Default
			def = &v
		}
		cols[i] = storage.Column{Name: cm.Name, Type: kind, NotNull: cm.NotNull, Default: def}
	}

	pk := ""
	if tm.PrimaryKey != nil {
		pk = *tm.PrimaryKey
	}
	fks := make([]ForeignKey, len(tm.ForeignKeys))
	for i, fk := range tm.ForeignKeys {
		fks[i] = ForeignKey{LocalColumns: fk.LocalColumns, RefTable: fk.RefTable, RefColumns: fk.RefColumns}
	}

	heap, err := storage.OpenHeapFile(tm.FilePath)
	if err != nil {
		return nil, err
	}

	return &Table{
		OID:         tm.OID,
		Name:        name,
		Columns:     cols,
		PrimaryKey:  pk,
		ForeignKeys: fks,
		Heap:        heap,
	}, nil
}

// TablePath returns the conventional <table>.tbl path inside the
// engine's data directory (spec.md §6).
func (eng *Engine) TablePath(name string) string {
	return filepath.Join(eng.dir, name+".tbl")
}

func (eng *Engine) Table(name string) (*Table, bool) {
	t, ok := eng.tables[name]
	return t, ok
}

func (eng *Engine) TableNames() []string {
	return eng.cat.TableNames()
}
