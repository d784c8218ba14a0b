// Package storage implements the on-disk row store: one flat file per
// table, a JSON snapshot per index, and the self-healing rebuild logic that
// reconciles the two after an unclean shutdown.
package storage

import (
	"fmt"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/value"
)

var (
	ErrRowNotFound  = fmt.Errorf("row not found")
	ErrTableExists  = fmt.Errorf("table already exists")
	ErrNoSuchTable  = fmt.Errorf("no such table")
)

// Row is one stored tuple. ID is a stable, monotonically increasing
// identifier assigned at insert time; it never changes for the lifetime of
// the row and is never reused after a delete.
type Row struct {
	ID     uint64
	Values []value.Value
}

// Engine is the storage layer's contract. Every method a disk-backed
// implementation can give a sensible default for (index maintenance,
// single-column PK lookups) is still part of the interface so alternate
// backends can opt out cheaply, matching the trait-with-defaults shape this
// is grounded on.
type Engine interface {
	CreateTable(table string, schema catalog.Schema) error
	BootstrapTable(table string, schema catalog.Schema) error

	InsertRow(table string, vals []value.Value) (uint64, error)
	Scan(table string) ([]Row, error)

	// ReplaceRowsWithAlignment replaces a table's entire row set. oldIndices
	// maps each position in newRows to its original index in the prior row
	// set, or -1 if the row is new; this lets index maintenance tell which
	// rows actually changed without a full rebuild when alignment is known.
	ReplaceRowsWithAlignment(table string, newRows []Row, oldIndices []int) error

	LookupPKRowIndex(table string, schema catalog.Schema, vals []value.Value) (int, bool, error)
	LookupUniqueRowIndex(table string, cols []string, key string) (int, bool, error)
	LookupSecondaryRowIndices(table string, cols []string, key string) ([]int, bool, error)

	RebuildIndexes(table string, schema catalog.Schema) error
	PersistTable(table string) error
	CheckpointAll() error

	// Clone deep-copies all in-memory table state, used to snapshot storage
	// at the start of an explicit transaction.
	Clone() Engine
	// ReplaceFrom wholesale-replaces this engine's in-memory state with
	// other's, used to restore a transaction's snapshot on ROLLBACK.
	ReplaceFrom(other Engine)
}
