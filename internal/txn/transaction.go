// Package txn implements MVCC transaction bookkeeping: xid
// allocation, the transaction status table, snapshot construction,
// and the tuple visibility rule, per spec.md §4.C. Grounded on the
// teacher's transaction.go (same xid/status/active-set shape),
// generalized from the teacher's single always-committed model to
// the full InProgress/Committed/Aborted state machine the spec
// requires.
package txn

import "sync"

// Status is a transaction's terminal or in-flight state.
type Status uint8

const (
	// StatusUnknown is never stored; status(xid) for an xid the
	// manager has never seen returns StatusCommitted per spec.md
	// §4.C ("unknown xids are treated as Committed — covers xid 0,
	// the autocommit marker").
	StatusUnknown Status = iota
	StatusInProgress
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusCommitted:
		return "Committed"
	case StatusAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Snapshot captures a consistent view of which transactions were
// already finished when it was taken (spec.md §4.C).
type Snapshot struct {
	Xmin       uint32
	Xmax       uint32
	ActiveXids map[uint32]struct{}
}

func (s Snapshot) isActive(xid uint32) bool {
	_, ok := s.ActiveXids[xid]
	return ok
}

// Manager owns next_xid, the transactions status table, and the
// set of in-progress xids. The zero value is not usable; use
// NewManager.
type Manager struct {
	mu           sync.Mutex
	nextXid      uint32
	transactions map[uint32]Status
	active       map[uint32]struct{}
}

func NewManager(nextXid uint32) *Manager {
	return &Manager{
		nextXid:      nextXid,
		transactions: make(map[uint32]Status),
		active:       make(map[uint32]struct{}),
	}
}

// Restore installs a transactions map loaded from the catalog at
// engine open (spec.md §4.I: "restore the transactions map, rebuild
// next_xid"). Any xid still InProgress in a loaded catalog is an
// aborted-in-place crash artifact and is normalized to Aborted,
// since no process is left to finish it.
func (m *Manager) Restore(nextXid uint32, transactions map[uint32]Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextXid = nextXid
	m.transactions = make(map[uint32]Status, len(transactions))
	for xid, st := range transactions {
		if st == StatusInProgress {
			st = StatusAborted
		}
		m.transactions[xid] = st
	}
	m.active = make(map[uint32]struct{})
}

// SnapshotTransactions returns next_xid and a copy of the status table suitable for
// persisting back to the catalog.
func (m *Manager) SnapshotTransactions() (nextXid uint32, transactions map[uint32]Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]Status, len(m.transactions))
	for k, v := range m.transactions {
		out[k] = v
	}
	return m.nextXid, out
}

// AllocXid returns next_xid, then increments it.
func (m *Manager) AllocXid() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	xid := m.nextXid
	m.nextXid++
	return xid
}

// Begin marks xid InProgress and adds it to the active set.
func (m *Manager) Begin(xid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[xid] = StatusInProgress
	m.active[xid] = struct{}{}
}

// Commit moves xid to its terminal Committed state.
func (m *Manager) Commit(xid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[xid] = StatusCommitted
	delete(m.active, xid)
}

// Rollback moves xid to its terminal Aborted state.
func (m *Manager) Rollback(xid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[xid] = StatusAborted
	delete(m.active, xid)
}

// Status returns the stored status for xid; an xid the manager has
// never recorded is treated as Committed (spec.md §4.C) — this
// covers xid 0, the autocommit read marker.
func (m *Manager) Status(xid uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.transactions[xid]; ok {
		return st
	}
	return StatusCommitted
}

// TakeSnapshot builds {xmin: min(active) or next_xid, xmax: next_xid,
// active_xids: copy}, per spec.md §4.C.
func (m *Manager) TakeSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	xmin := m.nextXid
	for xid := range m.active {
		if xid < xmin {
			xmin = xid
		}
	}

	active := make(map[uint32]struct{}, len(m.active))
	for xid := range m.active {
		active[xid] = struct{}{}
	}

	return Snapshot{Xmin: xmin, Xmax: m.nextXid, ActiveXids: active}
}

// OldestActiveXid returns the smallest in-progress xid, or next_xid
// if none are active. Vacuum has no separate use for this under the
// dead-tuple rule below (which only consults Status); nothing in the
// engine calls it, and it is exported for diagnostics.
func (m *Manager) OldestActiveXid() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldest := m.nextXid
	for xid := range m.active {
		if xid < oldest {
			oldest = xid
		}
	}
	return oldest
}

// VisibleInsert implements the insert-side half of the visibility
// rule (spec.md §4.C).
func VisibleInsert(xmin uint32, curXid uint32, snap Snapshot, status func(uint32) Status) bool {
	if xmin == curXid {
		return true
	}
	if snap.isActive(xmin) {
		return false
	}
	if xmin >= snap.Xmax {
		return false
	}
	return status(xmin) == StatusCommitted
}

// VisibleDelete implements the delete-side half: true means "not
// visibly deleted", i.e. still present for this reader.
func VisibleDelete(xmax uint32, curXid uint32, snap Snapshot, status func(uint32) Status) bool {
	if xmax == 0 {
		return true
	}
	if xmax == curXid {
		return false
	}
	if snap.isActive(xmax) {
		return true
	}
	if xmax >= snap.Xmax {
		return true
	}
	return status(xmax) != StatusCommitted
}

// Visible combines both halves: a tuple is visible iff both sides
// agree.
func (m *Manager) Visible(xmin, xmax uint32, curXid uint32, snap Snapshot) bool {
	return VisibleInsert(xmin, curXid, snap, m.Status) && VisibleDelete(xmax, curXid, snap, m.Status)
}

// Dead implements the vacuum dead-tuple rule: xmax is set and
// status(xmax) == Committed.
func (m *Manager) Dead(xmax uint32) bool {
	if xmax == 0 {
		return false
	}
	return m.Status(xmax) == StatusCommitted
}
