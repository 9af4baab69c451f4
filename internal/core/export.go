package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"
)

// WriteCSV serializes a table as UTF-8 comma separated text: a header row of
// column names followed by one line per row in row order. Row ids are not
// written. Null cells become empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for _, r := range t.rows {
		for i := range rec {
			rec[i] = ""
			if i < len(r.Cells) {
				rec[i] = r.Cells[i].String()
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportName is the download name for an edited table. Archive folders are
// kept, flattened with "_": "data/clients.xlsx" -> "data_clients_modificado.csv".
func ExportName(name string) string {
	return baseName(name) + "_modificado.csv"
}

// ConvertName is the download name for a spreadsheet converted to CSV:
// "clients.xlsx" -> "clients.csv".
func ConvertName(name string) string {
	return baseName(name) + ".csv"
}

// baseName drops the extension and joins the path segments of name with "_"
// so that members with the same file name in different folders get distinct
// downloads.
func baseName(name string) string {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
		p = strings.ReplaceAll(p, ":", "")
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "table"
	}
	last := parts[len(parts)-1]
	if ext := path.Ext(last); ext != "" && ext != last {
		parts[len(parts)-1] = strings.TrimSuffix(last, ext)
	}
	return strings.Join(parts, "_")
}
