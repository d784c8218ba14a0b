package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/value"
)

// catalogFile / columnFile / tableConstraintFile / foreignKeyFile mirror the
// on-disk catalog.json shape: one entry per table, columns and constraints
// kept in separate maps so renaming a constraint group never touches the
// column list.
type catalogFile struct {
	Tables            map[string][]columnFile           `json:"tables"`
	TableConstraints  map[string]tableConstraintFile     `json:"table_constraints"`
}

type columnFile struct {
	Name       string `json:"name"`
	DType      string `json:"dtype"`
	PrimaryKey bool   `json:"primary_key"`
	Unique     bool   `json:"unique"`
	NotNull    bool   `json:"not_null"`
}

type tableConstraintFile struct {
	PrimaryKey       []string         `json:"primary_key"`
	Unique           [][]string       `json:"unique"`
	SecondaryIndexes [][]string       `json:"secondary_indexes"`
	ForeignKeys      []foreignKeyFile `json:"foreign_keys"`
}

type foreignKeyFile struct {
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
	OnDelete   string   `json:"on_delete"`
	OnUpdate   string   `json:"on_update"`
}

func actionToString(a command.ForeignKeyAction) string {
	switch a {
	case command.ActionRestrict:
		return "restrict"
	case command.ActionCascade:
		return "cascade"
	case command.ActionSetNull:
		return "set null"
	case command.ActionNoAction:
		return "no action"
	default:
		return "restrict"
	}
}

func actionFromString(s string) (command.ForeignKeyAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restrict":
		return command.ActionRestrict, nil
	case "cascade":
		return command.ActionCascade, nil
	case "set null":
		return command.ActionSetNull, nil
	case "no action":
		return command.ActionNoAction, nil
	default:
		return 0, fmt.Errorf("unknown foreign key action '%s'", s)
	}
}

// catalogSchema is the bundled JSON Schema a loaded catalog.json must
// validate against before it is trusted. It exists to catch a hand-edited
// or partially-written catalog file before it corrupts table state.
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tables", "table_constraints"],
  "properties": {
    "tables": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["name", "dtype", "primary_key", "unique", "not_null"],
          "properties": {
            "name": {"type": "string"},
            "dtype": {"type": "string"},
            "primary_key": {"type": "boolean"},
            "unique": {"type": "boolean"},
            "not_null": {"type": "boolean"}
          }
        }
      }
    },
    "table_constraints": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["primary_key", "unique", "secondary_indexes", "foreign_keys"],
        "properties": {
          "primary_key": {"type": "array", "items": {"type": "string"}},
          "unique": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}},
          "secondary_indexes": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}},
          "foreign_keys": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["columns", "ref_table", "ref_columns", "on_delete", "on_update"],
              "properties": {
                "columns": {"type": "array", "items": {"type": "string"}},
                "ref_table": {"type": "string"},
                "ref_columns": {"type": "array", "items": {"type": "string"}},
                "on_delete": {"type": "string"},
                "on_update": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledCatalogSchema = mustCompileCatalogSchema()

func mustCompileCatalogSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	const uri = "mem://catalog.schema.json"
	if err := compiler.AddResource(uri, bytes.NewReader([]byte(catalogSchema))); err != nil {
		panic(fmt.Sprintf("invalid embedded catalog schema: %v", err))
	}
	schema, err := compiler.Compile(uri)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded catalog schema: %v", err))
	}
	return schema
}

// SaveToPath writes the catalog to path as JSON.
func (c *Catalog) SaveToPath(path string) error {
	file := catalogFile{
		Tables:           make(map[string][]columnFile, len(c.tables)),
		TableConstraints: make(map[string]tableConstraintFile, len(c.tables)),
	}
	for name, s := range c.tables {
		cols := make([]columnFile, len(s.Columns))
		for i, col := range s.Columns {
			cols[i] = columnFile{
				Name:       col.Name,
				DType:      col.Type.String(),
				PrimaryKey: col.PrimaryKey,
				Unique:     col.Unique,
				NotNull:    col.NotNull,
			}
		}
		file.Tables[name] = cols

		fks := make([]foreignKeyFile, len(s.ForeignKeys))
		for i, fk := range s.ForeignKeys {
			fks[i] = foreignKeyFile{
				Columns:    fk.Columns,
				RefTable:   fk.RefTable,
				RefColumns: fk.RefColumns,
				OnDelete:   actionToString(fk.OnDelete),
				OnUpdate:   actionToString(fk.OnUpdate),
			}
		}
		file.TableConstraints[name] = tableConstraintFile{
			PrimaryKey:       s.PrimaryKey,
			Unique:           s.UniqueConstraints,
			SecondaryIndexes: s.SecondaryIndexes,
			ForeignKeys:      fks,
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFromPath reads a catalog from path. A missing or empty file yields an
// empty catalog rather than an error, matching first-run bootstrap.
func LoadFromPath(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return New(), nil
	}
	if err := compiledCatalogSchema.Validate(probe); err != nil {
		return New(), nil
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return New(), nil
	}

	cat := New()
	for name, cols := range file.Tables {
		columns := make([]Column, len(cols))
		for i, cf := range cols {
			dt, err := value.ParseDataType(cf.DType)
			if err != nil {
				return nil, fmt.Errorf("catalog: table '%s' column '%s': %w", name, cf.Name, err)
			}
			columns[i] = Column{
				Name:       cf.Name,
				Type:       dt,
				PrimaryKey: cf.PrimaryKey,
				Unique:     cf.Unique,
				NotNull:    cf.NotNull,
			}
		}
		tc := file.TableConstraints[name]
		fks := make([]ForeignKeyDef, len(tc.ForeignKeys))
		for i, fkf := range tc.ForeignKeys {
			onDelete, err := actionFromString(fkf.OnDelete)
			if err != nil {
				return nil, fmt.Errorf("catalog: table '%s' foreign key: %w", name, err)
			}
			onUpdate, err := actionFromString(fkf.OnUpdate)
			if err != nil {
				return nil, fmt.Errorf("catalog: table '%s' foreign key: %w", name, err)
			}
			fks[i] = ForeignKeyDef{
				Columns:    fkf.Columns,
				RefTable:   fkf.RefTable,
				RefColumns: fkf.RefColumns,
				OnDelete:   onDelete,
				OnUpdate:   onUpdate,
			}
		}
		cat.tables[name] = Schema{
			Columns:           columns,
			PrimaryKey:        tc.PrimaryKey,
			UniqueConstraints: tc.Unique,
			SecondaryIndexes:  tc.SecondaryIndexes,
			ForeignKeys:       fks,
		}
	}
	return cat, nil
}
