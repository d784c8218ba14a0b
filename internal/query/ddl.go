package query

import (
	"fmt"
	"strings"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/constraints"
	"github.com/skepadb/skepadb/internal/storage"
)

func handleCreateTable(cat *catalog.Catalog, eng storage.Engine, c command.CreateTable) (Result, error) {
	cols := make([]catalog.Column, len(c.Columns))
	for i, cd := range c.Columns {
		cols[i] = catalog.Column{
			Name:       cd.Name,
			Type:       cd.Type,
			PrimaryKey: cd.PrimaryKey,
			Unique:     cd.Unique,
			NotNull:    cd.NotNull,
		}
	}
	fks := make([]catalog.ForeignKeyDef, len(c.ForeignKeys))
	for i, fk := range c.ForeignKeys {
		fks[i] = catalog.ForeignKeyDef{
			Columns:    fk.Columns,
			RefTable:   fk.RefTable,
			RefColumns: fk.RefColumns,
			OnDelete:   fk.OnDelete,
			OnUpdate:   fk.OnUpdate,
		}
	}
	schema := catalog.Schema{
		Columns:           cols,
		PrimaryKey:        c.PrimaryKey,
		UniqueConstraints: c.UniqueConstraints,
		ForeignKeys:       fks,
	}
	if err := cat.CreateTable(c.Table, schema); err != nil {
		return Result{}, err
	}
	if err := eng.CreateTable(c.Table, schema); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("created table %s", c.Table)}, nil
}

func handleCreateIndex(cat *catalog.Catalog, eng storage.Engine, c command.CreateIndex) (Result, error) {
	if err := cat.AddSecondaryIndex(c.Table, c.Columns); err != nil {
		return Result{}, err
	}
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	if err := eng.RebuildIndexes(c.Table, schema); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("created index on %s(%s)", c.Table, strings.Join(c.Columns, ","))}, nil
}

func handleDropIndex(cat *catalog.Catalog, eng storage.Engine, c command.DropIndex) (Result, error) {
	if err := cat.DropSecondaryIndex(c.Table, c.Columns); err != nil {
		return Result{}, err
	}
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	if err := eng.RebuildIndexes(c.Table, schema); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("dropped index on %s(%s)", c.Table, strings.Join(c.Columns, ","))}, nil
}

// handleAlter applies one ALTER TABLE action, cloning the catalog first and
// restoring it verbatim if validation against existing rows fails. This is
// the only DDL path that needs a rollback: every other DDL operation either
// cannot fail after its initial checks, or has nothing existing to violate.
func handleAlter(cat *catalog.Catalog, eng storage.Engine, c command.AlterTable) (Result, error) {
	before := cat.Clone()

	result, err := applyAlterAction(cat, eng, c)
	if err != nil {
		cat.ReplaceFrom(before)
		return Result{}, err
	}
	return result, nil
}

func applyAlterAction(cat *catalog.Catalog, eng storage.Engine, c command.AlterTable) (Result, error) {
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	action := c.Action

	switch action.Kind {
	case command.AlterAddUnique:
		if err := cat.AddUniqueConstraint(c.Table, action.Columns); err != nil {
			return Result{}, err
		}
		rows, err := eng.Scan(c.Table)
		if err != nil {
			return Result{}, err
		}
		newSchema, _ := cat.Schema(c.Table)
		if err := constraints.ValidateAllUniqueConstraints(newSchema, rows); err != nil {
			return Result{}, err
		}
		if err := eng.RebuildIndexes(c.Table, newSchema); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("added unique constraint on %s(%s)", c.Table, strings.Join(action.Columns, ","))}, nil

	case command.AlterDropUnique:
		if err := cat.DropUniqueConstraint(c.Table, action.Columns); err != nil {
			return Result{}, err
		}
		newSchema, _ := cat.Schema(c.Table)
		if err := eng.RebuildIndexes(c.Table, newSchema); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("dropped unique constraint on %s(%s)", c.Table, strings.Join(action.Columns, ","))}, nil

	case command.AlterAddForeignKey:
		fk := catalog.ForeignKeyDef{
			Columns:    action.ForeignKey.Columns,
			RefTable:   action.ForeignKey.RefTable,
			RefColumns: action.ForeignKey.RefColumns,
			OnDelete:   action.ForeignKey.OnDelete,
			OnUpdate:   action.ForeignKey.OnUpdate,
		}
		if err := cat.AddForeignKey(c.Table, fk); err != nil {
			return Result{}, err
		}
		rows, err := eng.Scan(c.Table)
		if err != nil {
			return Result{}, err
		}
		newSchema, _ := cat.Schema(c.Table)
		if err := constraints.ValidateAllForeignKeys(cat, eng, newSchema, rows); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("added foreign key on %s(%s)", c.Table, strings.Join(fk.Columns, ","))}, nil

	case command.AlterDropForeignKey:
		if err := cat.DropForeignKey(c.Table, action.Columns); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("dropped foreign key on %s(%s)", c.Table, strings.Join(action.Columns, ","))}, nil

	case command.AlterSetNotNull:
		col := action.Columns[0]
		rows, err := eng.Scan(c.Table)
		if err != nil {
			return Result{}, err
		}
		probe := schema.Clone()
		idx := probe.ColumnIndex(col)
		if idx < 0 {
			return Result{}, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, col)
		}
		probe.Columns[idx].NotNull = true
		if err := constraints.ValidateNotNullColumns(probe, rows); err != nil {
			return Result{}, err
		}
		if err := cat.SetNotNull(c.Table, col, true); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("set %s.%s NOT NULL", c.Table, col)}, nil

	case command.AlterDropNotNull:
		col := action.Columns[0]
		if err := cat.SetNotNull(c.Table, col, false); err != nil {
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("dropped NOT NULL on %s.%s", c.Table, col)}, nil

	default:
		return Result{}, fmt.Errorf("unknown alter action")
	}
}
