// Session implements spec.md §4.I: the engine-session state machine
// that sits above the executor and binds xid allocation, autocommit
// vs explicit-transaction handling, and per-isolation-level snapshot
// derivation. Grounded on the teacher's engine_adapter.go +
// root main.go transaction handling, extended with Repeatable Read
// snapshot pinning, which the teacher's always-read-committed
// currentTxn.Snapshot never distinguishes.
package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/relcore/relcore/internal/storage"
	"github.com/relcore/relcore/internal/txn"
)

// IsolationLevel is one of the two isolation levels spec.md §1/§4.C
// names. Serializable is explicitly rejected by spec.md §1.
type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

func (lvl IsolationLevel) String() string {
	if lvl == RepeatableRead {
		return "REPEATABLE READ"
	}
	return "READ COMMITTED"
}

// Session holds everything spec.md §4.I says a session holds: the
// engine handle, the default isolation level, and (while a tx is
// active) the current xid, the per-tx isolation override, and — for
// Repeatable Read — the snapshot pinned at BEGIN.
//
// State machine: Idle --BEGIN--> Active --(Commit|Rollback)--> Idle.
type Session struct {
	eng *Engine

	defaultIsolation IsolationLevel

	active        bool
	xid           uint32
	txIsolation   IsolationLevel
	pinnedSnap    txn.Snapshot
	hasPinnedSnap bool
}

// NewSession wraps an open Engine in a fresh, Idle session at the
// default Read Committed isolation level.
func NewSession(eng *Engine) *Session {
	return &Session{eng: eng, defaultIsolation: ReadCommitted}
}

// SetDefaultIsolation implements `SET SESSION CHARACTERISTICS AS
// TRANSACTION ISOLATION LEVEL ...` (spec.md §6): changes the level
// used by future autocommit statements and future BEGINs that don't
// name their own level explicitly.
func (s *Session) SetDefaultIsolation(lvl IsolationLevel) {
	s.defaultIsolation = lvl
}

// InTransaction reports whether the session is in the Active state.
func (s *Session) InTransaction() bool {
	return s.active
}

// Begin implements spec.md §4.I BEGIN: reject if a tx is already
// active; allocate an xid, mark it InProgress, persist, and — for
// Repeatable Read — pin a snapshot taken right now for reuse by
// every statement until COMMIT/ROLLBACK.
func (s *Session) Begin(lvl *IsolationLevel) (uint32, error) {
	if s.active {
		return 0, ErrTransactionInProgress
	}

	isolation := s.defaultIsolation
	if lvl != nil {
		isolation = *lvl
	}

	xid := s.eng.txm.AllocXid()
	s.eng.txm.Begin(xid)
	if err := s.persistXid(xid, txn.StatusInProgress); err != nil {
		return 0, err
	}

	s.active = true
	s.xid = xid
	s.txIsolation = isolation
	s.hasPinnedSnap = false
	if isolation == RepeatableRead {
		s.pinnedSnap = s.eng.txm.TakeSnapshot()
		s.hasPinnedSnap = true
	}

	log.Info().Uint32("xid", xid).Str("isolation", isolation.String()).Msg("engine: begin")
	return xid, nil
}

// Commit implements spec.md §4.I COMMIT: terminal state, persisted,
// pinned snapshot and isolation override cleared.
func (s *Session) Commit() (uint32, error) {
	if !s.active {
		return 0, ErrNoActiveTransaction
	}
	xid := s.xid
	s.eng.txm.Commit(xid)
	if err := s.persistXid(xid, txn.StatusCommitted); err != nil {
		return 0, err
	}
	s.endTx()
	log.Info().Uint32("xid", xid).Msg("engine: commit")
	return xid, nil
}

// Rollback implements spec.md §4.I ROLLBACK.
func (s *Session) Rollback() (uint32, error) {
	if !s.active {
		return 0, ErrNoActiveTransaction
	}
	xid := s.xid
	s.eng.txm.Rollback(xid)
	if err := s.persistXid(xid, txn.StatusAborted); err != nil {
		return 0, err
	}
	s.endTx()
	log.Info().Uint32("xid", xid).Msg("engine: rollback")
	return xid, nil
}

func (s *Session) endTx() {
	s.active = false
	s.xid = 0
	s.hasPinnedSnap = false
}

func (s *Session) persistXid(xid uint32, st txn.Status) error {
	return s.eng.cat.SetTransactionStatus(xid, st)
}

// statementContext derives (curXid, snapshot) for the next statement,
// per spec.md §4.C's isolation binding and §4.I's autocommit rule:
// Read Committed takes a fresh snapshot per statement; Repeatable
// Read reuses the one pinned at BEGIN; autocommit allocates (and
// immediately will commit) its own xid around the statement and
// always takes a fresh snapshot.
//
// isWrite tells the autocommit path whether to allocate a real xid
// (writes need one to stamp into tuple headers) or use xid 0 as a
// pure marker (spec.md §4.C: "reads use 0 purely as a marker").
func (s *Session) statementContext(isWrite bool) (curXid uint32, snap txn.Snapshot, finish func(err error) error) {
	if s.active {
		curXid = s.xid
		if s.txIsolation == RepeatableRead && s.hasPinnedSnap {
			snap = s.pinnedSnap
		} else {
			snap = s.eng.txm.TakeSnapshot()
		}
		return curXid, snap, func(err error) error { return err }
	}

	// Autocommit: each statement gets its own begin/commit bracket.
	var xid uint32
	if isWrite {
		xid = s.eng.txm.AllocXid()
		s.eng.txm.Begin(xid)
	}
	snap = s.eng.txm.TakeSnapshot()

	finish = func(err error) error {
		if !isWrite {
			return err
		}
		if err != nil {
			s.eng.txm.Rollback(xid)
			_ = s.persistXid(xid, txn.StatusAborted)
			return err
		}
		s.eng.txm.Commit(xid)
		return s.persistXid(xid, txn.StatusCommitted)
	}
	return xid, snap, finish
}

// The statement entry points below take already-parsed arguments
// (storage.Value rows, Cond trees, FromItem trees) built by
// internal/sql and call straight through to the Engine executor
// methods, wrapped in the autocommit/explicit-tx bracket above.

// Insert wraps Engine.Insert in the session's transaction context.
func (s *Session) Insert(table string, cols []string, values []storage.Value) error {
	curXid, snap, finish := s.statementContext(true)
	err := s.eng.Insert(table, cols, values, curXid, snap)
	return finish(err)
}

// Delete wraps Engine.Delete in the session's transaction context.
func (s *Session) Delete(table string, cond *Cond) (int, error) {
	curXid, snap, finish := s.statementContext(true)
	n, err := s.eng.Delete(table, cond, curXid, snap)
	return n, finish(err)
}

// Update wraps Engine.Update in the session's transaction context.
func (s *Session) Update(table string, assigns []Assignment, cond *Cond) (int, error) {
	curXid, snap, finish := s.statementContext(true)
	n, err := s.eng.Update(table, assigns, cond, curXid, snap)
	return n, finish(err)
}

// Select wraps Engine.Select; reads never allocate a real xid even
// in autocommit (spec.md §4.C: "reads use 0 purely as a marker").
func (s *Session) Select(cols []string, from *FromItem, cond *Cond) (*ResultSet, error) {
	curXid, snap, finish := s.statementContext(false)
	rs, err := s.eng.Select(cols, from, cond, curXid, snap)
	return rs, finish(err)
}

// CreateTable, CreateIndex, and Vacuum are DDL/maintenance statements;
// spec.md's grammar never runs them inside a BEGIN/COMMIT bracket
// (its scenarios only ever show them at top level), so they pass
// straight through to the Engine without touching xid/snapshot state.

func (s *Session) CreateTable(name string, cols []ColumnDef, pk string, fks []ForeignKeyDef) error {
	return s.eng.CreateTable(name, cols, pk, fks)
}

func (s *Session) CreateIndex(name, table string, cols []string) error {
	return s.eng.CreateIndex(name, table, cols)
}

func (s *Session) Vacuum(table string) (int, error) {
	return s.eng.Vacuum(table)
}
