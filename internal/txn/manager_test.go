package txn

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/metrics"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	base := t.TempDir()
	eng, err := storage.NewDisk(base, nil)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return NewManager(base, catalog.New(), eng, nil), base
}

func createUsersCmd() command.Command {
	return command.Command{
		Kind: command.KindCreateTable,
		CreateTable: command.CreateTable{
			Table:      "users",
			Columns:    []command.ColumnDef{{Name: "id", Type: value.Int(), PrimaryKey: true}, {Name: "name", Type: value.Text()}},
			PrimaryKey: []string{"id"},
		},
	}
}

func insertUserCmd(id, name string) command.Command {
	return command.Command{Kind: command.KindInsert, Insert: command.Insert{Table: "users", Values: []string{id, name}}}
}

func TestManagerAutoCommitPersistsAndTruncatesWAL(t *testing.T) {
	m, base := newTestManager(t)

	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := m.Execute(insertUserCmd("1", "ram")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	lines, err := m.wal.ReadLines()
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected auto-commit to checkpoint and truncate the WAL, got %d lines", len(lines))
	}
	if _, err := os.Stat(filepath.Join(base, "tables")); err != nil {
		t.Errorf("expected tables dir to exist: %v", err)
	}
}

func TestManagerBeginCommitAppliesStagedWrites(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Execute(insertUserCmd("1", "ram")); err != nil {
		t.Fatalf("insert inside tx: %v", err)
	}
	rows, _ := m.eng.Scan("users")
	if len(rows) != 1 {
		t.Fatalf("expected the write to be visible within the transaction, got %d rows", len(rows))
	}

	if _, err := m.Execute(command.Command{Kind: command.KindCommit}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rows, _ = m.eng.Scan("users")
	if len(rows) != 1 {
		t.Fatalf("expected committed row to persist, got %d rows", len(rows))
	}
}

func TestManagerBeginTwiceRejected(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := m.Execute(command.Command{Kind: command.KindBegin})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestManagerCommitWithoutActiveTransactionRejected(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Execute(command.Command{Kind: command.KindCommit})
	if !errors.Is(err, ErrNoActive) {
		t.Fatalf("expected ErrNoActive, got %v", err)
	}
}

func TestManagerDDLInsideTransactionRejected(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := m.Execute(createUsersCmd())
	if err == nil {
		t.Fatal("expected DDL inside an active transaction to be rejected")
	}
}

func TestManagerRollbackDiscardsStagedWrites(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Execute(insertUserCmd("1", "ram")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindRollback}); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	rows, _ := m.eng.Scan("users")
	if len(rows) != 0 {
		t.Fatalf("expected rollback to discard the staged insert, got %d rows", len(rows))
	}
}

func TestManagerCommitConflictWhenDatabaseChangedExternally(t *testing.T) {
	m, base := newTestManager(t)
	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Execute(insertUserCmd("1", "ram")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Simulate another process writing to the table file between BEGIN and
	// COMMIT.
	time.Sleep(10 * time.Millisecond)
	rowFile := filepath.Join(base, "tables", "users.rows")
	if err := os.WriteFile(rowFile, []byte("@99|\ti:99\tt:intruder\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := m.Execute(command.Command{Kind: command.KindCommit})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// createParentChildNoAction builds parent table "p" (id pk) and child table
// "c" (id pk, pid referencing p.id ON DELETE NO ACTION), with one parent row
// and one referencing child row already committed.
func createParentChildNoAction(t *testing.T, m *Manager) {
	t.Helper()
	if _, err := m.Execute(command.Command{
		Kind: command.KindCreateTable,
		CreateTable: command.CreateTable{
			Table:      "p",
			Columns:    []command.ColumnDef{{Name: "id", Type: value.Int(), PrimaryKey: true}},
			PrimaryKey: []string{"id"},
		},
	}); err != nil {
		t.Fatalf("create p: %v", err)
	}
	if _, err := m.Execute(command.Command{
		Kind: command.KindCreateTable,
		CreateTable: command.CreateTable{
			Table: "c",
			Columns: []command.ColumnDef{
				{Name: "id", Type: value.Int(), PrimaryKey: true},
				{Name: "pid", Type: value.Int()},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []command.ForeignKeyDef{
				{Columns: []string{"pid"}, RefTable: "p", RefColumns: []string{"id"}, OnDelete: command.ActionNoAction},
			},
		},
	}); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindInsert, Insert: command.Insert{Table: "p", Values: []string{"1"}}}); err != nil {
		t.Fatalf("insert p: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindInsert, Insert: command.Insert{Table: "c", Values: []string{"10", "1"}}}); err != nil {
		t.Fatalf("insert c: %v", err)
	}
}

func TestManagerCommitRejectsDeferredNoActionViolation(t *testing.T) {
	m, _ := newTestManager(t)
	createParentChildNoAction(t, m)

	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// ON DELETE NO ACTION does not block the delete itself; the violation is
	// only caught when COMMIT runs its deferred catalog-wide check.
	del := command.Command{Kind: command.KindDelete, Delete: command.Delete{
		Table: "p",
		Where: command.Predicate("id", command.OpEq, command.ScalarOperand("1")),
	}}
	if _, err := m.Execute(del); err != nil {
		t.Fatalf("delete p inside tx: %v", err)
	}

	_, err := m.Execute(command.Command{Kind: command.KindCommit})
	if err == nil {
		t.Fatal("expected commit to reject a deferred NO ACTION violation")
	}

	rows, _ := m.eng.Scan("p")
	if len(rows) != 1 {
		t.Errorf("expected parent row to be restored after the failed commit, got %d rows", len(rows))
	}
	rows, _ = m.eng.Scan("c")
	if len(rows) != 1 {
		t.Errorf("expected child row to be unaffected after the failed commit, got %d rows", len(rows))
	}
}

func TestManagerCommitConflictIncrementsMetric(t *testing.T) {
	m, base := newTestManager(t)
	mx := metrics.New()
	m.SetMetrics(mx)

	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := m.Execute(command.Command{Kind: command.KindBegin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Execute(insertUserCmd("1", "ram")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	rowFile := filepath.Join(base, "tables", "users.rows")
	if err := os.WriteFile(rowFile, []byte("@99|\ti:99\tt:intruder\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := m.Execute(command.Command{Kind: command.KindCommit}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := testutil.ToFloat64(mx.CommitConflictsTotal); got != 1 {
		t.Errorf("expected 1 recorded commit conflict, got %v", got)
	}
}

func TestManagerReplayAndCheckpointIncrementsMetric(t *testing.T) {
	base := t.TempDir()
	eng, err := storage.NewDisk(base, nil)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	cat := catalog.New()
	m := NewManager(base, cat, eng, nil)
	mx := metrics.New()
	m.SetMetrics(mx)

	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	payload, err := command.Encode(insertUserCmd("1", "ram"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := m.wal.Append(FormatBegin(1), FormatOp(1, string(payload)), FormatCommit(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := m.ReplayAndCheckpoint(); err != nil {
		t.Fatalf("ReplayAndCheckpoint: %v", err)
	}
	if got := testutil.ToFloat64(mx.WALReplayOpsTotal); got != 1 {
		t.Errorf("expected 1 replayed op recorded, got %v", got)
	}
}

func TestManagerReplayAndCheckpointAppliesPendingWAL(t *testing.T) {
	base := t.TempDir()
	eng, err := storage.NewDisk(base, nil)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	cat := catalog.New()
	m := NewManager(base, cat, eng, nil)

	if _, err := m.Execute(createUsersCmd()); err != nil {
		t.Fatalf("create table: %v", err)
	}

	// Hand-craft a pending WAL entry as if a prior process crashed after
	// appending but before checkpointing.
	payload, err := command.Encode(insertUserCmd("1", "ram"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := m.wal.Append(FormatBegin(1), FormatOp(1, string(payload)), FormatCommit(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := m.ReplayAndCheckpoint(); err != nil {
		t.Fatalf("ReplayAndCheckpoint: %v", err)
	}
	rows, err := eng.Scan("users")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected replay to apply the pending insert, got %d rows", len(rows))
	}
	lines, err := m.wal.ReadLines()
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected WAL to be truncated after replay, got %d lines", len(lines))
	}
}
