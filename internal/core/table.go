package core

import (
	"fmt"
	"sort"
)

// Table is a named, ordered collection of rows over a fixed column schema.
// Row ids are assigned densely at load and stay stable across deletions;
// only Compact renumbers them.
type Table struct {
	columns []Column
	colIdx  map[string]int
	rows    []Row         // ascending by ID
	rowIdx  map[RowID]int // ID -> position in rows
	nextID  RowID
}

// NewTable builds a table from a schema and positional cell rows. Row ids
// are assigned 0..n-1 in the given order.
func NewTable(columns []Column, cells [][]Value) (*Table, error) {
	t := &Table{
		columns: append([]Column(nil), columns...),
		colIdx:  make(map[string]int, len(columns)),
		rows:    make([]Row, 0, len(cells)),
		rowIdx:  make(map[RowID]int, len(cells)),
	}
	for i, c := range t.columns {
		if _, dup := t.colIdx[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		t.colIdx[c.Name] = i
	}
	for _, rc := range cells {
		if len(rc) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d columns", t.nextID, len(rc), len(columns))
		}
		t.appendRow(append([]Value(nil), rc...))
	}
	return t, nil
}

func (t *Table) appendRow(cells []Value) {
	id := t.nextID
	t.nextID++
	t.rowIdx[id] = len(t.rows)
	t.rows = append(t.rows, Row{ID: id, Cells: cells})
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns a copy of the schema.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (Column, int, bool) {
	i, ok := t.colIdx[name]
	if !ok {
		return Column{}, -1, false
	}
	return t.columns[i], i, true
}

// Has reports whether id is a current row of t.
func (t *Table) Has(id RowID) bool {
	_, ok := t.rowIdx[id]
	return ok
}

// RowIDs returns the current row ids in ascending order.
func (t *Table) RowIDs() []RowID {
	ids := make([]RowID, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.ID
	}
	return ids
}

// Row returns a copy of the row with the given id.
func (t *Table) Row(id RowID) (Row, bool) {
	i, ok := t.rowIdx[id]
	if !ok {
		return Row{}, false
	}
	r := t.rows[i]
	return Row{ID: r.ID, Cells: append([]Value(nil), r.Cells...)}, true
}

// Rows returns copies of all rows in row order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = Row{ID: r.ID, Cells: append([]Value(nil), r.Cells...)}
	}
	return out
}

// Record returns the row as a column name -> value map.
func (t *Table) Record(id RowID) (map[string]Value, bool) {
	i, ok := t.rowIdx[id]
	if !ok {
		return nil, false
	}
	return t.record(t.rows[i]), true
}

func (t *Table) record(r Row) map[string]Value {
	m := make(map[string]Value, len(t.columns))
	for i, c := range t.columns {
		if i < len(r.Cells) {
			m[c.Name] = r.Cells[i]
		}
	}
	return m
}

// Clone returns a deep copy that shares nothing with t.
func (t *Table) Clone() *Table {
	c := &Table{
		columns: append([]Column(nil), t.columns...),
		colIdx:  make(map[string]int, len(t.colIdx)),
		rows:    make([]Row, len(t.rows)),
		rowIdx:  make(map[RowID]int, len(t.rowIdx)),
		nextID:  t.nextID,
	}
	for k, v := range t.colIdx {
		c.colIdx[k] = v
	}
	for i, r := range t.rows {
		c.rows[i] = Row{ID: r.ID, Cells: append([]Value(nil), r.Cells...)}
		c.rowIdx[r.ID] = i
	}
	return c
}

// Compact returns a copy of t with row ids renumbered 0..n-1 in row order.
func (t *Table) Compact() *Table {
	c := t.Clone()
	c.nextID = 0
	c.rowIdx = make(map[RowID]int, len(c.rows))
	for i := range c.rows {
		c.rows[i].ID = c.nextID
		c.rowIdx[c.nextID] = i
		c.nextID++
	}
	return c
}

// removeRows drops the given ids. Callers validate the ids first.
func (t *Table) removeRows(ids map[RowID]struct{}) int {
	kept := t.rows[:0]
	removed := 0
	for _, r := range t.rows {
		if _, drop := ids[r.ID]; drop {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so dropped rows can be collected.
	for i := len(kept); i < len(t.rows); i++ {
		t.rows[i] = Row{}
	}
	t.rows = kept
	t.reindex()
	return removed
}

func (t *Table) reindex() {
	t.rowIdx = make(map[RowID]int, len(t.rows))
	for i, r := range t.rows {
		t.rowIdx[r.ID] = i
	}
}

// setCell writes one cell. Callers validate id and column index.
func (t *Table) setCell(id RowID, col int, v Value) {
	t.rows[t.rowIdx[id]].Cells[col] = v
}

// sortRowIDs sorts ids ascending in place.
func sortRowIDs(ids []RowID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
