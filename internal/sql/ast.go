package sql

import (
	"github.com/relcore/relcore/internal/engine"
	"github.com/relcore/relcore/internal/storage"
)

// StatementKind tags a parsed Statement, mirroring the teacher's
// parser.go StatementType enum but narrowed to spec.md §6's grammar
// (no ALTER/DROP/subqueries/aggregates — those are out of scope per
// spec.md §1's "no query planner beyond a simple index-selection
// heuristic").
type StatementKind uint8

const (
	StmtCreateTable StatementKind = iota
	StmtCreateIndex
	StmtInsert
	StmtSelect
	StmtUpdate
	StmtDelete
	StmtBegin
	StmtCommit
	StmtRollback
	StmtVacuum
	StmtSetSession
	StmtExit
)

// Statement is the parsed AST handed to the executor, per spec.md
// §2's "a parsed AST enters the executor". One tagged struct with a
// field set per statement kind, in the teacher's Statement-as-one-
// big-struct idiom (parser.go), narrowed to typed engine/storage
// values instead of the teacher's []interface{} value lists.
type Statement struct {
	Kind StatementKind

	// CREATE TABLE
	TableName   string
	Columns     []engine.ColumnDef
	PrimaryKey  string
	ForeignKeys []engine.ForeignKeyDef

	// CREATE INDEX
	IndexName     string
	IndexTable    string
	IndexColumns  []string

	// INSERT
	InsertColumns []string
	InsertValues  []storage.Value

	// SELECT / shared WHERE+FROM
	SelectColumns []string
	From          *engine.FromItem
	Where         *engine.Cond

	// UPDATE
	Assignments []engine.Assignment

	// DELETE / VACUUM reuse TableName

	// BEGIN / SET SESSION
	Isolation *engine.IsolationLevel
}
