// Execute turns one raw SQL line into a parsed sql.Statement and
// dispatches it against a Session, printing the ASCII-table result
// or a one-line status, per spec.md §6/§7. Grounded on the teacher's
// executeStatement (parse, on error print "Parse error: ...", else
// run and print the result or "Execution error: ...").
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/relcore/relcore/internal/engine"
	"github.com/relcore/relcore/internal/sql"
)

// Execute parses and runs one statement. It returns exit=true when
// the session should end (EXIT statement or EOF-equivalent). Errors
// are returned rather than printed so callers control the error
// stream, but their text already matches spec.md §6's "Parse error:
// ..." / "Execution error: ..." prefixes.
func Execute(sess *engine.Session, line string, out io.Writer) (exit bool, err error) {
	stmt, perr := sql.Parse(line)
	if perr != nil {
		return false, fmt.Errorf("Parse error: %v", perr)
	}

	if stmt.Kind == sql.StmtExit {
		return true, nil
	}

	result, eerr := dispatch(sess, stmt)
	if eerr != nil {
		return false, fmt.Errorf("Execution error: %v", eerr)
	}
	if result != "" {
		fmt.Fprintln(out, result)
	}
	return false, nil
}

func dispatch(sess *engine.Session, stmt *sql.Statement) (string, error) {
	switch stmt.Kind {
	case sql.StmtCreateTable:
		if err := sess.CreateTable(stmt.TableName, stmt.Columns, stmt.PrimaryKey, stmt.ForeignKeys); err != nil {
			return "", err
		}
		return "CREATE TABLE", nil

	case sql.StmtCreateIndex:
		if err := sess.CreateIndex(stmt.IndexName, stmt.IndexTable, stmt.IndexColumns); err != nil {
			return "", err
		}
		return "CREATE INDEX", nil

	case sql.StmtInsert:
		if err := sess.Insert(stmt.TableName, stmt.InsertColumns, stmt.InsertValues); err != nil {
			return "", err
		}
		return "INSERT 1", nil

	case sql.StmtSelect:
		rs, err := sess.Select(stmt.SelectColumns, stmt.From, stmt.Where)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(RenderResultSet(rs), "\n"), nil

	case sql.StmtUpdate:
		n, err := sess.Update(stmt.TableName, stmt.Assignments, stmt.Where)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("UPDATE %d", n), nil

	case sql.StmtDelete:
		n, err := sess.Delete(stmt.TableName, stmt.Where)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DELETE %d", n), nil

	case sql.StmtBegin:
		xid, err := sess.Begin(stmt.Isolation)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("BEGIN %d", xid), nil

	case sql.StmtCommit:
		xid, err := sess.Commit()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("COMMIT %d", xid), nil

	case sql.StmtRollback:
		xid, err := sess.Rollback()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ROLLBACK %d", xid), nil

	case sql.StmtVacuum:
		n, err := sess.Vacuum(stmt.TableName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed %d dead tuple(s)", n), nil

	case sql.StmtSetSession:
		sess.SetDefaultIsolation(*stmt.Isolation)
		return "SET", nil

	default:
		return "", fmt.Errorf("reldb: unhandled statement kind %d", stmt.Kind)
	}
}
