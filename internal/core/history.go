package core

// CellChange is one cell's value before and after an edit. The audit trail
// keeps these for single-row edits so a user can see what was overwritten.
type CellChange struct {
	Column string `json:"column"`
	Old    Value  `json:"old"`
	New    Value  `json:"new"`
}

// diffRecord lists the columns in cols whose value differs between two
// snapshots of the same row. Columns missing from either side are skipped.
func diffRecord(before, after map[string]Value, cols []string) []CellChange {
	var out []CellChange
	for _, c := range cols {
		o, ok1 := before[c]
		n, ok2 := after[c]
		if !ok1 || !ok2 || o.Equal(n) {
			continue
		}
		out = append(out, CellChange{Column: c, Old: o, New: n})
	}
	return out
}

// snapshotRow returns a row's record, or nil when the table or row is gone.
func snapshotRow(store *Store, table string, id RowID) map[string]Value {
	t, err := store.Get(table)
	if err != nil {
		return nil
	}
	rec, _ := t.Record(id)
	return rec
}
