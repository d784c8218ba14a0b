package query

import (
	"fmt"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
)

// Execute routes one non-transaction-control Command to its handler. BEGIN,
// COMMIT, and ROLLBACK are handled one layer up, by the façade that owns
// transaction state; reaching this function with one of them is a bug in
// the caller.
func Execute(cat *catalog.Catalog, eng storage.Engine, c command.Command) (Result, error) {
	switch c.Kind {
	case command.KindCreateTable:
		return handleCreateTable(cat, eng, c.CreateTable)
	case command.KindCreateIndex:
		return handleCreateIndex(cat, eng, c.CreateIndex)
	case command.KindDropIndex:
		return handleDropIndex(cat, eng, c.DropIndex)
	case command.KindAlterTable:
		return handleAlter(cat, eng, c.AlterTable)
	case command.KindInsert:
		return handleInsert(cat, eng, c.Insert)
	case command.KindUpdate:
		return handleUpdate(cat, eng, c.Update)
	case command.KindDelete:
		return handleDelete(cat, eng, c.Delete)
	case command.KindSelect:
		return handleSelect(cat, eng, c.Select)
	case command.KindBegin, command.KindCommit, command.KindRollback:
		return Result{}, fmt.Errorf("transaction control is handled by the database, not the executor")
	default:
		return Result{}, fmt.Errorf("unknown command kind")
	}
}
