package catalog

import (
	"path/filepath"
	"testing"

	"github.com/relcore/relcore/internal/txn"
)

func TestLoadOrCreateFreshDir(t *testing.T) {
	dir := t.TempDir()
	c, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if c.NextXidPeek() != 1 {
		t.Fatalf("fresh catalog should start next_xid at 1, got %d", c.NextXidPeek())
	}
}

func TestCreateTableThenReload(t *testing.T) {
	dir := t.TempDir()
	c, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	cols := []ColumnMeta{{Name: "id", Type: "INT", NotNull: true}}
	if _, err := c.CreateTable("users", cols, filepath.Join(dir, "users.tbl"), nil, nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, err := c.CreateTable("users", cols, filepath.Join(dir, "users2.tbl"), nil, nil); err == nil {
		t.Fatalf("duplicate table name should fail")
	}

	c2, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(c2.TableNames()) != 1 || c2.TableNames()[0] != "users" {
		t.Fatalf("reloaded catalog should see the persisted table")
	}
}

func TestCreateIndexUnknownTable(t *testing.T) {
	dir := t.TempDir()
	c, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if _, err := c.CreateIndex("idx_missing", "nope", []string{"a"}); err == nil {
		t.Fatalf("index on unknown table should fail")
	}
}

func TestTransactionStatusRoundtrip(t *testing.T) {
	dir := t.TempDir()
	c, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	xid, err := c.NextXid()
	if err != nil {
		t.Fatalf("NextXid: %v", err)
	}
	if err := c.SetTransactionStatus(xid, txn.StatusCommitted); err != nil {
		t.Fatalf("SetTransactionStatus: %v", err)
	}

	c2, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	statuses := c2.TransactionStatuses()
	if statuses[xid] != txn.StatusCommitted {
		t.Fatalf("reloaded status should be Committed, got %v", statuses[xid])
	}
}
