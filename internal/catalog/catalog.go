// Package catalog holds the schema metadata for every table: columns,
// keys, unique constraints, secondary indexes, and foreign keys. It is the
// single source of truth the storage and constraint layers validate against.
package catalog

import (
	"fmt"
	"sort"

	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/value"
)

var (
	ErrTableExists   = fmt.Errorf("table already exists")
	ErrNoSuchTable   = fmt.Errorf("no such table")
	ErrNoSuchColumn  = fmt.Errorf("no such column")
)

// Column describes one column of a table.
type Column struct {
	Name       string
	Type       value.DataType
	PrimaryKey bool
	Unique     bool
	NotNull    bool
}

// ForeignKeyDef is a table-level FOREIGN KEY constraint.
type ForeignKeyDef struct {
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   command.ForeignKeyAction
	OnUpdate   command.ForeignKeyAction
}

// Schema is the full metadata of one table.
type Schema struct {
	Columns           []Column
	PrimaryKey        []string
	UniqueConstraints [][]string
	SecondaryIndexes  [][]string
	ForeignKeys       []ForeignKeyDef
}

// ColumnIndex returns the position of name in the schema's column list, or
// -1 if it doesn't exist.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s Schema) Column(name string) (Column, bool) {
	idx := s.ColumnIndex(name)
	if idx < 0 {
		return Column{}, false
	}
	return s.Columns[idx], true
}

// Clone deep-copies a Schema so ALTER can roll back on validation failure.
func (s Schema) Clone() Schema {
	cols := make([]Column, len(s.Columns))
	copy(cols, s.Columns)
	pk := append([]string(nil), s.PrimaryKey...)
	uq := make([][]string, len(s.UniqueConstraints))
	for i, g := range s.UniqueConstraints {
		uq[i] = append([]string(nil), g...)
	}
	idx := make([][]string, len(s.SecondaryIndexes))
	for i, g := range s.SecondaryIndexes {
		idx[i] = append([]string(nil), g...)
	}
	fks := make([]ForeignKeyDef, len(s.ForeignKeys))
	for i, fk := range s.ForeignKeys {
		fks[i] = ForeignKeyDef{
			Columns:    append([]string(nil), fk.Columns...),
			RefTable:   fk.RefTable,
			RefColumns: append([]string(nil), fk.RefColumns...),
			OnDelete:   fk.OnDelete,
			OnUpdate:   fk.OnUpdate,
		}
	}
	return Schema{Columns: cols, PrimaryKey: pk, UniqueConstraints: uq, SecondaryIndexes: idx, ForeignKeys: fks}
}

// Catalog is the set of all table schemas, keyed by table name.
type Catalog struct {
	tables map[string]Schema
}

func New() *Catalog {
	return &Catalog{tables: make(map[string]Schema)}
}

func (c *Catalog) Exists(table string) bool {
	_, ok := c.tables[table]
	return ok
}

func (c *Catalog) Schema(table string) (Schema, error) {
	s, ok := c.tables[table]
	if !ok {
		return Schema{}, fmt.Errorf("%w: '%s'", ErrNoSuchTable, table)
	}
	return s, nil
}

// TableNames returns every table name in a deterministic (sorted) order.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone deep-copies the entire catalog, used both by explicit-transaction
// snapshots and by the ALTER rollback-on-failure discipline.
func (c *Catalog) Clone() *Catalog {
	out := New()
	for name, s := range c.tables {
		out.tables[name] = s.Clone()
	}
	return out
}

// ReplaceFrom wholesale-replaces this catalog's contents with other's,
// without swapping the pointer identity (callers may hold the *Catalog).
func (c *Catalog) ReplaceFrom(other *Catalog) {
	c.tables = make(map[string]Schema, len(other.tables))
	for name, s := range other.tables {
		c.tables[name] = s
	}
}

// CreateTable registers a brand-new table. It rejects duplicate table
// names, duplicate column names, a primary key or unique constraint naming
// an unknown column, and a schema declaring more than one primary key.
// Primary key columns are forced NOT NULL in the stored schema regardless
// of how the caller declared them.
func (c *Catalog) CreateTable(name string, schema Schema) error {
	if c.Exists(name) {
		return fmt.Errorf("%w: '%s'", ErrTableExists, name)
	}
	seen := make(map[string]bool, len(schema.Columns))
	for _, col := range schema.Columns {
		if seen[col.Name] {
			return fmt.Errorf("duplicate column '%s'", col.Name)
		}
		seen[col.Name] = true
	}
	if err := validatePrimaryKey(schema); err != nil {
		return err
	}
	for _, col := range schema.PrimaryKey {
		if !seen[col] {
			return fmt.Errorf("%w: primary key column '%s'", ErrNoSuchColumn, col)
		}
	}
	for _, group := range schema.UniqueConstraints {
		for _, col := range group {
			if !seen[col] {
				return fmt.Errorf("%w: unique constraint column '%s'", ErrNoSuchColumn, col)
			}
		}
	}
	for _, fk := range schema.ForeignKeys {
		for _, col := range fk.Columns {
			if !seen[col] {
				return fmt.Errorf("%w: foreign key column '%s'", ErrNoSuchColumn, col)
			}
		}
		if err := c.validateForeignKeyDef(schema, fk); err != nil {
			return err
		}
	}
	schema.Columns = forceNotNullOnPrimaryKey(schema)
	c.tables[name] = schema
	return nil
}

// validatePrimaryKey rejects a schema that declares more than one primary
// key: either more than one column flagged PrimaryKey with no PrimaryKey
// list, or a PrimaryKey list that disagrees with the flagged columns.
func validatePrimaryKey(schema Schema) error {
	var flagged []string
	for _, col := range schema.Columns {
		if col.PrimaryKey {
			flagged = append(flagged, col.Name)
		}
	}
	if len(flagged) > 1 && len(schema.PrimaryKey) == 0 {
		return fmt.Errorf("table declares more than one primary key column: %v", flagged)
	}
	if len(flagged) > 0 && len(schema.PrimaryKey) > 0 && !equalColsUnordered(flagged, schema.PrimaryKey) {
		return fmt.Errorf("conflicting primary key declarations: column flags %v vs PRIMARY KEY %v", flagged, schema.PrimaryKey)
	}
	return nil
}

func equalColsUnordered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
	}
	return true
}

// forceNotNullOnPrimaryKey returns schema's columns with NotNull set on
// every primary key column, since a primary key can never hold NULL.
func forceNotNullOnPrimaryKey(schema Schema) []Column {
	if len(schema.PrimaryKey) == 0 {
		return schema.Columns
	}
	inPK := make(map[string]bool, len(schema.PrimaryKey))
	for _, col := range schema.PrimaryKey {
		inPK[col] = true
	}
	cols := append([]Column(nil), schema.Columns...)
	for i, col := range cols {
		if inPK[col.Name] {
			cols[i].NotNull = true
		}
	}
	return cols
}

func (c *Catalog) setSchema(table string, s Schema) {
	c.tables[table] = s
}

// AddSecondaryIndex registers a CREATE INDEX group on table.
func (c *Catalog) AddSecondaryIndex(table string, cols []string) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if s.ColumnIndex(col) < 0 {
			return fmt.Errorf("%w: '%s'", ErrNoSuchColumn, col)
		}
	}
	for _, group := range s.SecondaryIndexes {
		if equalCols(group, cols) {
			return fmt.Errorf("index on %s(%v) already exists", table, cols)
		}
	}
	s.SecondaryIndexes = append(s.SecondaryIndexes, append([]string(nil), cols...))
	c.setSchema(table, s)
	return nil
}

// DropSecondaryIndex removes a previously created secondary index group.
func (c *Catalog) DropSecondaryIndex(table string, cols []string) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	out := s.SecondaryIndexes[:0]
	found := false
	for _, group := range s.SecondaryIndexes {
		if equalCols(group, cols) {
			found = true
			continue
		}
		out = append(out, group)
	}
	if !found {
		return fmt.Errorf("no such index on %s(%v)", table, cols)
	}
	s.SecondaryIndexes = out
	c.setSchema(table, s)
	return nil
}

func equalCols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AddUniqueConstraint adds a UNIQUE constraint group; callers must validate
// existing rows against it before committing the change.
func (c *Catalog) AddUniqueConstraint(table string, cols []string) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if s.ColumnIndex(col) < 0 {
			return fmt.Errorf("%w: '%s'", ErrNoSuchColumn, col)
		}
	}
	s.UniqueConstraints = append(s.UniqueConstraints, append([]string(nil), cols...))
	c.setSchema(table, s)
	return nil
}

func (c *Catalog) DropUniqueConstraint(table string, cols []string) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	out := s.UniqueConstraints[:0]
	found := false
	for _, group := range s.UniqueConstraints {
		if equalCols(group, cols) {
			found = true
			continue
		}
		out = append(out, group)
	}
	if !found {
		return fmt.Errorf("no such unique constraint on %s(%v)", table, cols)
	}
	s.UniqueConstraints = out
	c.setSchema(table, s)
	return nil
}

// AddForeignKey registers a table-level FOREIGN KEY constraint. Beyond the
// basic column existence checks, it requires: the referencing and
// referenced column counts to match; the referenced columns to exactly
// match either the parent's primary key or one of its declared UNIQUE
// constraints (a foreign key must reference a key, not an arbitrary
// column group); and, when either action is SET NULL, every referencing
// column to be nullable (not a primary key column and not NOT NULL).
func (c *Catalog) AddForeignKey(table string, fk ForeignKeyDef) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	for _, col := range fk.Columns {
		if s.ColumnIndex(col) < 0 {
			return fmt.Errorf("%w: '%s'", ErrNoSuchColumn, col)
		}
	}
	if err := c.validateForeignKeyDef(s, fk); err != nil {
		return err
	}
	s.ForeignKeys = append(s.ForeignKeys, fk)
	c.setSchema(table, s)
	return nil
}

// validateForeignKeyDef checks a foreign key definition against the
// referenced table, shared by CreateTable (for inline FOREIGN KEY clauses)
// and AddForeignKey (for ALTER TABLE ADD FOREIGN KEY). s is the schema the
// constraint is being attached to, used for the SET NULL nullability check.
func (c *Catalog) validateForeignKeyDef(s Schema, fk ForeignKeyDef) error {
	if !c.Exists(fk.RefTable) {
		return fmt.Errorf("%w: '%s'", ErrNoSuchTable, fk.RefTable)
	}
	if len(fk.Columns) != len(fk.RefColumns) {
		return fmt.Errorf("foreign key column count (%d) does not match referenced column count (%d)", len(fk.Columns), len(fk.RefColumns))
	}
	refSchema, err := c.Schema(fk.RefTable)
	if err != nil {
		return err
	}
	if !equalColsUnordered(fk.RefColumns, refSchema.PrimaryKey) && !refSchemaHasUniqueGroup(refSchema, fk.RefColumns) {
		return fmt.Errorf("foreign key must reference the primary key or a unique constraint of '%s', got %v", fk.RefTable, fk.RefColumns)
	}
	if fk.OnDelete == command.ActionSetNull || fk.OnUpdate == command.ActionSetNull {
		for _, col := range fk.Columns {
			colDef, _ := s.Column(col)
			if colDef.PrimaryKey || colDef.NotNull {
				return fmt.Errorf("SET NULL requires foreign key column '%s' to be nullable", col)
			}
		}
	}
	return nil
}

// refSchemaHasUniqueGroup reports whether cols exactly matches (in any
// order) one of refSchema's declared UNIQUE constraint groups.
func refSchemaHasUniqueGroup(refSchema Schema, cols []string) bool {
	for _, group := range refSchema.UniqueConstraints {
		if equalColsUnordered(group, cols) {
			return true
		}
	}
	if len(cols) == 1 {
		if colDef, ok := refSchema.Column(cols[0]); ok && colDef.Unique {
			return true
		}
	}
	return false
}

func (c *Catalog) DropForeignKey(table string, cols []string) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	out := s.ForeignKeys[:0]
	found := false
	for _, fk := range s.ForeignKeys {
		if equalCols(fk.Columns, cols) {
			found = true
			continue
		}
		out = append(out, fk)
	}
	if !found {
		return fmt.Errorf("no such foreign key on %s(%v)", table, cols)
	}
	s.ForeignKeys = out
	c.setSchema(table, s)
	return nil
}

func (c *Catalog) SetNotNull(table, column string, notNull bool) error {
	s, err := c.Schema(table)
	if err != nil {
		return err
	}
	idx := s.ColumnIndex(column)
	if idx < 0 {
		return fmt.Errorf("%w: '%s'", ErrNoSuchColumn, column)
	}
	cols := append([]Column(nil), s.Columns...)
	cols[idx].NotNull = notNull
	s.Columns = cols
	c.setSchema(table, s)
	return nil
}
