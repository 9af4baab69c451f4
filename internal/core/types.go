package core

// ColumnType is the type a column was inferred to hold at load time.
type ColumnType int

const (
	// ColumnEmpty marks a column that had no non-blank cell at load time.
	ColumnEmpty ColumnType = iota
	ColumnNumber
	ColumnBoolean
	ColumnText
)

// String returns the type name used in API payloads.
func (t ColumnType) String() string {
	switch t {
	case ColumnNumber:
		return "number"
	case ColumnBoolean:
		return "boolean"
	case ColumnText:
		return "text"
	default:
		return "empty"
	}
}

// Column is one entry of a table schema.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"-"`
}

// RowID identifies a row within one table generation.
type RowID int

// Row is a single record. Cells are positional and follow the table's
// column order.
type Row struct {
	ID    RowID
	Cells []Value
}

// NamedTable pairs a table with the name it is stored under.
type NamedTable struct {
	Name  string
	Table *Table
}

// Upload is one raw file handed to the loader: a plain table file or an
// archive of table files.
type Upload struct {
	Name string
	Data []byte
}

// LoadReport summarizes one Session.Load call.
type LoadReport struct {
	Reloaded   bool     `json:"reloaded"`   // false when the upload set matched the loaded one
	Generation string   `json:"generation"` // store generation after the call
	Tables     []string `json:"tables"`     // names installed, in insertion order
	Sources    []string `json:"sources"`    // upload names the tables came from
	Failures   []error  `json:"-"`          // per-file load failures
}

// MatchRef is a search hit: a live pointer into a table plus the row values
// captured when the search ran. The snapshot is never refreshed.
type MatchRef struct {
	Table    string           `json:"table"`
	RowID    RowID            `json:"rowId"`
	Snapshot map[string]Value `json:"record,omitempty"`
}

// DeleteRequest removes rows from one table.
type DeleteRequest struct {
	Table  string  `json:"table"`
	RowIDs []RowID `json:"rowIds"`
}

// UpdateRequest sets raw string values on one row. Each raw value is coerced
// to the column's type; an empty string clears the cell.
type UpdateRequest struct {
	Table  string            `json:"table"`
	RowID  RowID             `json:"rowId"`
	Values map[string]string `json:"values"`
}

// ColumnFailure records a column that could not be written.
type ColumnFailure struct {
	Column string `json:"column"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// UpdateResult reports what an update did per column.
type UpdateResult struct {
	Updated  []string        `json:"updated"`            // columns written
	Softened []string        `json:"softened,omitempty"` // columns stored as raw text after a failed coercion
	Failed   []ColumnFailure `json:"failed,omitempty"`   // columns skipped
}

// RowTarget addresses one row in one table.
type RowTarget struct {
	Table string `json:"table"`
	RowID RowID  `json:"rowId"`
}

// BatchEditRequest writes the same set of values to several rows. Only
// columns with a non-empty new value are changed.
type BatchEditRequest struct {
	Targets []RowTarget       `json:"targets"`
	Values  map[string]string `json:"values"`
}

// BatchEditResult aggregates per-row update results.
type BatchEditResult struct {
	Rows     int             `json:"rows"`
	Updated  int             `json:"updated"` // cells written
	Softened int             `json:"softened"`
	Failed   []ColumnFailure `json:"failed,omitempty"`
}

// TableSummary describes a loaded table for listings.
type TableSummary struct {
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	Rows        int            `json:"rows"`
	Spreadsheet bool           `json:"spreadsheet"`
}

// ColumnSchema is the listing form of a Column.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
