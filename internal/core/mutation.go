package core

// mutation.go applies deletes and cell edits to tables in a Store.
//
// Row ids are stable: Delete leaves gaps and only Compact renumbers. Every
// request is validated in full before the first write so a rejected request
// changes nothing. Per-column problems inside an accepted request are
// reported, not raised.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Delete removes the requested rows from one table in a single step and
// returns how many were removed. An unknown id rejects the whole request.
func Delete(store *Store, req DeleteRequest) (int, error) {
	if len(req.RowIDs) == 0 {
		return 0, rejectf("no rows selected for deletion")
	}
	t, err := store.Get(req.Table)
	if err != nil {
		return 0, err
	}

	ids := make(map[RowID]struct{}, len(req.RowIDs))
	var missing []RowID
	for _, id := range req.RowIDs {
		if !t.Has(id) {
			missing = append(missing, id)
			continue
		}
		ids[id] = struct{}{}
	}
	if len(missing) > 0 {
		sortRowIDs(missing)
		return 0, fmt.Errorf("%w: %s rows %v", ErrRowNotFound, req.Table, missing)
	}

	return t.removeRows(ids), nil
}

// Update writes raw values into one row. Each value is coerced to its
// column's load-time type; a value that does not fit is stored as text and
// reported in Softened. Unknown columns are reported in Failed without
// blocking the others.
func Update(store *Store, req UpdateRequest) (UpdateResult, error) {
	if len(req.Values) == 0 {
		return UpdateResult{}, rejectf("no values to update")
	}
	t, err := store.Get(req.Table)
	if err != nil {
		return UpdateResult{}, err
	}
	if !t.Has(req.RowID) {
		return UpdateResult{}, fmt.Errorf("%w: %s row %d", ErrRowNotFound, req.Table, req.RowID)
	}

	var res UpdateResult
	for _, name := range sortedKeys(req.Values) {
		applyCell(t, req.RowID, name, req.Values[name], &res)
	}
	return res, nil
}

// BatchEdit writes the same values to several rows. Only values that are
// non-empty after trimming are applied; the rest leave the cell untouched.
// All targets are checked before anything is written.
func BatchEdit(store *Store, req BatchEditRequest) (BatchEditResult, error) {
	if len(req.Targets) == 0 {
		return BatchEditResult{}, rejectf("no rows selected for editing")
	}
	values := make(map[string]string, len(req.Values))
	for col, raw := range req.Values {
		if strings.TrimSpace(raw) != "" {
			values[col] = raw
		}
	}
	if len(values) == 0 {
		return BatchEditResult{}, rejectf("no values to apply")
	}

	tables := make(map[string]*Table)
	seen := make(map[RowTarget]struct{}, len(req.Targets))
	targets := make([]RowTarget, 0, len(req.Targets))
	for _, tgt := range req.Targets {
		if _, dup := seen[tgt]; dup {
			continue
		}
		seen[tgt] = struct{}{}
		t, ok := tables[tgt.Table]
		if !ok {
			var err error
			if t, err = store.Get(tgt.Table); err != nil {
				return BatchEditResult{}, err
			}
			tables[tgt.Table] = t
		}
		if !t.Has(tgt.RowID) {
			return BatchEditResult{}, fmt.Errorf("%w: %s row %d", ErrRowNotFound, tgt.Table, tgt.RowID)
		}
		targets = append(targets, tgt)
	}

	cols := sortedKeys(values)
	var out BatchEditResult
	// A column missing from a table is reported once per table.
	reported := make(map[string]struct{})
	for _, tgt := range targets {
		var res UpdateResult
		for _, col := range cols {
			applyCell(tables[tgt.Table], tgt.RowID, col, values[col], &res)
		}
		out.Rows++
		out.Updated += len(res.Updated)
		out.Softened += len(res.Softened)
		for _, f := range res.Failed {
			key := tgt.Table + "\x00" + f.Column
			if _, dup := reported[key]; dup {
				continue
			}
			reported[key] = struct{}{}
			f.Reason = tgt.Table + ": " + f.Reason
			out.Failed = append(out.Failed, f)
		}
	}
	return out, nil
}

// Compact renumbers a table's row ids to 0..n-1 in row order.
func Compact(store *Store, table string) (int, error) {
	t, err := store.Get(table)
	if err != nil {
		return 0, err
	}
	c := t.Compact()
	if err := store.swap(table, c); err != nil {
		return 0, err
	}
	return c.Len(), nil
}

func applyCell(t *Table, id RowID, name, raw string, res *UpdateResult) {
	col, idx, ok := t.Column(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		res.Failed = append(res.Failed, ColumnFailure{Column: name, Err: err, Reason: err.Error()})
		return
	}
	v, err := Coerce(name, raw, col.Type)
	var ce *CoercionError
	if errors.As(err, &ce) {
		res.Softened = append(res.Softened, name)
	}
	t.setCell(id, idx, v)
	res.Updated = append(res.Updated, name)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
