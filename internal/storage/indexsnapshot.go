package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// indexSnapshot is the on-disk shape of one table's index state, one file
// per table under indexes/<table>.indexes.json. It is written on every
// persist and checked at bootstrap, but never loaded into memory: the
// in-memory index is always rebuilt from the row file, and a snapshot that
// disagrees with that rebuild is counted as a self-heal event.
type indexSnapshot struct {
	PrimaryKey struct {
		Cols    []string          `json:"cols"`
		Entries map[string]uint64 `json:"entries"`
	} `json:"primary_key"`
	Unique []snapshotGroup `json:"unique"`
	Secondary []snapshotSecondaryGroup `json:"secondary"`
}

type snapshotGroup struct {
	Cols    []string          `json:"cols"`
	Entries map[string]uint64 `json:"entries"`
}

type snapshotSecondaryGroup struct {
	Cols    []string            `json:"cols"`
	Entries map[string][]uint64 `json:"entries"`
}

func indexSnapshotPath(dir, table string) string {
	return filepath.Join(dir, "indexes", table+".indexes.json")
}

func writeIndexSnapshot(dir, table string, snap indexSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(indexSnapshotPath(dir, table), data, 0o644)
}

func readIndexSnapshot(dir, table string) (indexSnapshot, bool) {
	data, err := os.ReadFile(indexSnapshotPath(dir, table))
	if err != nil {
		return indexSnapshot{}, false
	}
	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return indexSnapshot{}, false
	}
	return snap, true
}

func groupKey(cols []string) string {
	return strings.Join(cols, ",")
}

// validateSnapshotEntries reports whether a trusted snapshot's shape and
// content agree with the freshly rebuilt authoritative index: same column
// groups, no entry referencing a row-id absent from the authoritative
// index, no duplicate keys, and no empty secondary row-id list.
func validateSnapshotEntries(snap indexSnapshot, authoritative *tableIndexes, rowIDs map[uint64]bool) bool {
	if groupKey(snap.PrimaryKey.Cols) != groupKey(authoritative.pkCols) && len(authoritative.pkCols) > 0 {
		return false
	}
	for key, id := range snap.PrimaryKey.Entries {
		if !rowIDs[id] {
			return false
		}
		_ = key
	}
	if len(snap.Unique) != len(authoritative.uniqueCols) {
		return false
	}
	for i, g := range snap.Unique {
		if i >= len(authoritative.uniqueCols) || groupKey(g.Cols) != groupKey(authoritative.uniqueCols[i]) {
			return false
		}
		for _, id := range g.Entries {
			if !rowIDs[id] {
				return false
			}
		}
	}
	if len(snap.Secondary) != len(authoritative.secondaryCols) {
		return false
	}
	for i, g := range snap.Secondary {
		if i >= len(authoritative.secondaryCols) || groupKey(g.Cols) != groupKey(authoritative.secondaryCols[i]) {
			return false
		}
		for _, ids := range g.Entries {
			if len(ids) == 0 {
				return false
			}
			for _, id := range ids {
				if !rowIDs[id] {
					return false
				}
			}
		}
	}
	return true
}
