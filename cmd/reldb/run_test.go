// End-to-end tests running the scenarios from spec.md §8 ("Concrete
// end-to-end scenarios" S1-S6) through the real SQL surface: parse via
// internal/sql, execute via internal/engine.Session, exactly the path
// cmd/reldb's REPL takes.
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relcore/relcore/internal/engine"
)

func newTestSession(t *testing.T) *engine.Session {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	eng, err := engine.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return engine.NewSession(eng)
}

// run executes stmt and fails the test if it errors, returning the
// printed result (command tag or rendered table).
func run(t *testing.T, sess *engine.Session, stmt string) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := Execute(sess, stmt, &buf)
	if err != nil {
		t.Fatalf("%s: %v", stmt, err)
	}
	return buf.String()
}

// runErr executes stmt and fails the test if it DOESN'T error,
// returning the error text.
func runErr(t *testing.T, sess *engine.Session, stmt string) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := Execute(sess, stmt, &buf)
	if err == nil {
		t.Fatalf("%s: expected an error, got none", stmt)
	}
	return err.Error()
}

func TestScenarioS1AutocommitInsertSelect(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE u (id INT PRIMARY KEY, name TEXT NOT NULL)`)
	run(t, sess, `INSERT INTO u (id, name) VALUES (1, "a")`)
	run(t, sess, `INSERT INTO u (id, name) VALUES (2, "b")`)
	out := run(t, sess, `SELECT * FROM u`)
	if !strings.Contains(out, "1") || !strings.Contains(out, "a") || !strings.Contains(out, "2") || !strings.Contains(out, "b") {
		t.Fatalf("expected both rows in output, got:\n%s", out)
	}
}

func TestScenarioS2PkDuplicateRejection(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE u (id INT PRIMARY KEY)`)
	run(t, sess, `INSERT INTO u VALUES (1)`)
	msg := runErr(t, sess, `INSERT INTO u VALUES (1)`)
	if !strings.Contains(msg, "primary key") {
		t.Fatalf("expected a PkConflict-flavored error, got: %s", msg)
	}
}

func TestScenarioS3ForeignKeyEnforcement(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE p (id INT PRIMARY KEY)`)
	run(t, sess, `CREATE TABLE c (id INT, pid INT REFERENCES p(id))`)

	if msg := runErr(t, sess, `INSERT INTO c VALUES (10, 1)`); !strings.Contains(msg, "foreign key") {
		t.Fatalf("expected FkViolation, got: %s", msg)
	}

	run(t, sess, `INSERT INTO p VALUES (1)`)
	run(t, sess, `INSERT INTO c VALUES (10, 1)`)

	if msg := runErr(t, sess, `DELETE FROM p WHERE id = 1`); !strings.Contains(msg, "referenced") {
		t.Fatalf("expected FkReferenced, got: %s", msg)
	}
}

func TestScenarioS4RepeatableReadSeesOwnWrites(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE u (id INT)`)
	run(t, sess, `INSERT INTO u VALUES (1)`)

	run(t, sess, `BEGIN ISOLATION LEVEL REPEATABLE READ`)
	run(t, sess, `INSERT INTO u VALUES (3)`)
	out := run(t, sess, `SELECT * FROM u`)
	if !strings.Contains(out, "3") {
		t.Fatalf("own insert within the same RR tx must be visible, got:\n%s", out)
	}
	run(t, sess, `COMMIT`)
}

func TestScenarioS5IndexAssistedLookup(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE k (id INT, v INT)`)
	run(t, sess, `CREATE INDEX ON k(id)`)
	run(t, sess, `INSERT INTO k VALUES (1, 100)`)
	run(t, sess, `INSERT INTO k VALUES (2, 200)`)

	out := run(t, sess, `SELECT v FROM k WHERE id = 2`)
	if !strings.Contains(out, "200") || strings.Contains(out, "100") {
		t.Fatalf("expected only v=200, got:\n%s", out)
	}

	out = run(t, sess, `SELECT v FROM k WHERE id > 1`)
	if !strings.Contains(out, "200") || strings.Contains(out, "100") {
		t.Fatalf("expected only v=200 via range scan, got:\n%s", out)
	}
}

func TestScenarioS6VacuumReclaimsDeadTuples(t *testing.T) {
	sess := newTestSession(t)
	run(t, sess, `CREATE TABLE t (id INT)`)
	run(t, sess, `INSERT INTO t VALUES (1)`)
	run(t, sess, `INSERT INTO t VALUES (2)`)
	run(t, sess, `DELETE FROM t WHERE id = 1`)

	out := run(t, sess, `VACUUM t`)
	if !strings.Contains(out, "1") {
		t.Fatalf("expected vacuum to report removing 1 tuple, got: %s", out)
	}

	out = run(t, sess, `SELECT * FROM t`)
	if strings.Contains(out, " 1 ") || !strings.Contains(out, "2") {
		t.Fatalf("expected only id=2 to remain, got:\n%s", out)
	}
}
