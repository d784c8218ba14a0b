package storage

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skepadb/skepadb/internal/catalog"
)

// tableIndexes holds the in-memory authoritative index structures for one
// table. Every lookup here is an exact-match lookup: the engine's scope
// never needs a range-ordered structure, only single-column and composite
// equality lookups for PK/unique/secondary indexes.
type tableIndexes struct {
	pkCols        []string
	pk            map[string]uint64

	uniqueCols []([]string)
	unique     []map[string]uint64

	secondaryCols []([]string)
	secondary     []map[string][]uint64
}

func newTableIndexes(schema catalog.Schema) *tableIndexes {
	ti := &tableIndexes{pkCols: schema.PrimaryKey, pk: make(map[string]uint64)}
	for _, g := range schema.UniqueConstraints {
		ti.uniqueCols = append(ti.uniqueCols, g)
		ti.unique = append(ti.unique, make(map[string]uint64))
	}
	for _, g := range schema.SecondaryIndexes {
		ti.secondaryCols = append(ti.secondaryCols, g)
		ti.secondary = append(ti.secondary, make(map[string][]uint64))
	}
	return ti
}

type tableState struct {
	schema catalog.Schema
	rows   []Row
	nextID uint64
	idx    *tableIndexes
}

// Disk is the default Engine: one row file and one index snapshot file per
// table under baseDir.
type Disk struct {
	mu      sync.RWMutex
	baseDir string
	tables  map[string]*tableState
	log     *slog.Logger

	// SelfHealEvents counts how many BootstrapTable calls found a snapshot
	// that disagreed with the rebuilt authoritative index.
	SelfHealEvents int
}

func NewDisk(baseDir string, log *slog.Logger) (*Disk, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "tables"), 0o755); err != nil {
		return nil, fmt.Errorf("initialize storage layout: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "indexes"), 0o755); err != nil {
		return nil, fmt.Errorf("initialize storage layout: %w", err)
	}
	return &Disk{baseDir: baseDir, tables: make(map[string]*tableState), log: log}, nil
}

func (d *Disk) rowFilePath(table string) string {
	return filepath.Join(d.baseDir, "tables", table+".rows")
}

func (d *Disk) CreateTable(table string, schema catalog.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[table]; ok {
		return fmt.Errorf("%w: '%s'", ErrTableExists, table)
	}
	d.tables[table] = &tableState{schema: schema, nextID: 1, idx: newTableIndexes(schema)}
	if err := os.WriteFile(d.rowFilePath(table), nil, 0o644); err != nil {
		return fmt.Errorf("create table file: %w", err)
	}
	return d.persistLocked(table)
}

// BootstrapTable loads an existing table's rows from disk (tolerating the
// pre-id-header legacy line format) and rebuilds its indexes from them. An
// index snapshot on disk is only checked against that rebuild: a
// disagreement counts as a self-heal event, and the rebuilt index is used
// either way.
func (d *Disk) BootstrapTable(table string, schema catalog.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := &tableState{schema: schema, nextID: 1, idx: newTableIndexes(schema)}

	f, err := os.Open(d.rowFilePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			d.tables[table] = st
			return nil
		}
		return fmt.Errorf("open table file '%s': %w", table, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := uint64(0)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := DecodeRow(line, schema, lineNo)
		if err != nil {
			return fmt.Errorf("table '%s' line %d: %w", table, lineNo, err)
		}
		st.rows = append(st.rows, row)
		if row.ID >= st.nextID {
			st.nextID = row.ID + 1
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read table file '%s': %w", table, err)
	}

	rebuildTableIndexes(st)

	rowIDs := make(map[uint64]bool, len(st.rows))
	for _, r := range st.rows {
		rowIDs[r.ID] = true
	}
	if snap, ok := readIndexSnapshot(d.baseDir, table); ok {
		if !validateSnapshotEntries(snap, st.idx, rowIDs) {
			d.SelfHealEvents++
			d.log.Warn("index snapshot disagreed with rebuilt index, using rebuilt index",
				slog.String("table", table))
		}
	}

	d.tables[table] = st
	return d.persistLocked(table)
}

func rebuildTableIndexes(st *tableState) {
	st.idx = newTableIndexes(st.schema)
	pkIdxs := colIdxs(st.schema, st.schema.PrimaryKey)
	uniqueIdxs := make([][]int, len(st.schema.UniqueConstraints))
	for i, g := range st.schema.UniqueConstraints {
		uniqueIdxs[i] = colIdxs(st.schema, g)
	}
	secIdxs := make([][]int, len(st.schema.SecondaryIndexes))
	for i, g := range st.schema.SecondaryIndexes {
		secIdxs[i] = colIdxs(st.schema, g)
	}

	for _, row := range st.rows {
		if len(pkIdxs) > 0 {
			st.idx.pk[EncodeKey(row, pkIdxs)] = row.ID
		}
		for i, idxs := range uniqueIdxs {
			st.idx.unique[i][EncodeKey(row, idxs)] = row.ID
		}
		for i, idxs := range secIdxs {
			key := EncodeKey(row, idxs)
			st.idx.secondary[i][key] = append(st.idx.secondary[i][key], row.ID)
		}
	}
}

func colIdxs(schema catalog.Schema, cols []string) []int {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		idxs[i] = schema.ColumnIndex(c)
	}
	return idxs
}

