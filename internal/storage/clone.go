package storage

import "github.com/skepadb/skepadb/internal/value"

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{ID: r.ID, Values: append([]value.Value(nil), r.Values...)}
	}
	return out
}

func cloneTableIndexes(idx *tableIndexes) *tableIndexes {
	out := &tableIndexes{
		pkCols: append([]string(nil), idx.pkCols...),
		pk:     make(map[string]uint64, len(idx.pk)),
	}
	for k, v := range idx.pk {
		out.pk[k] = v
	}
	for i, g := range idx.uniqueCols {
		out.uniqueCols = append(out.uniqueCols, append([]string(nil), g...))
		m := make(map[string]uint64, len(idx.unique[i]))
		for k, v := range idx.unique[i] {
			m[k] = v
		}
		out.unique = append(out.unique, m)
	}
	for i, g := range idx.secondaryCols {
		out.secondaryCols = append(out.secondaryCols, append([]string(nil), g...))
		m := make(map[string][]uint64, len(idx.secondary[i]))
		for k, v := range idx.secondary[i] {
			m[k] = append([]uint64(nil), v...)
		}
		out.secondary = append(out.secondary, m)
	}
	return out
}

func cloneTableState(st *tableState) *tableState {
	return &tableState{
		schema: st.schema.Clone(),
		rows:   cloneRows(st.rows),
		nextID: st.nextID,
		idx:    cloneTableIndexes(st.idx),
	}
}

// Clone deep-copies every table's in-memory rows and indexes, used to
// snapshot storage at the start of an explicit transaction. It shares the
// same baseDir as the original, since a clone is only ever installed back
// into the live engine via ReplaceFrom, never persisted independently.
func (d *Disk) Clone() Engine {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := &Disk{baseDir: d.baseDir, tables: make(map[string]*tableState, len(d.tables)), log: d.log}
	for name, st := range d.tables {
		out.tables[name] = cloneTableState(st)
	}
	return out
}

// ReplaceFrom wholesale-replaces this engine's table state with other's,
// used to restore a transaction's snapshot on ROLLBACK.
func (d *Disk) ReplaceFrom(other Engine) {
	o, ok := other.(*Disk)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = make(map[string]*tableState, len(o.tables))
	for name, st := range o.tables {
		d.tables[name] = cloneTableState(st)
	}
}
