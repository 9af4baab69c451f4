package core

// loader.go turns raw file bytes into Tables.
//
// The format is chosen by extension. Delimited text is decoded as UTF-8 and
// retried as Latin-1 when that fails; the delimiter is sniffed rather than
// assumed. Spreadsheets contribute their first sheet only. Every loaded table
// has its fully blank rows dropped before row ids are assigned.

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatDelimited
	formatXLSX
	formatXLS
	formatZip
)

func formatOf(name string) fileFormat {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return formatDelimited
	case ".xlsx", ".xlsm":
		return formatXLSX
	case ".xls":
		return formatXLS
	case ".zip":
		return formatZip
	default:
		return formatUnknown
	}
}

// IsTableFile reports whether name has a loadable table extension.
func IsTableFile(name string) bool {
	switch formatOf(name) {
	case formatDelimited, formatXLSX, formatXLS:
		return true
	default:
		return false
	}
}

// IsSpreadsheet reports whether name is a spreadsheet (xlsx/xls) file.
func IsSpreadsheet(name string) bool {
	f := formatOf(name)
	return f == formatXLSX || f == formatXLS
}

// IsArchive reports whether name is a supported archive.
func IsArchive(name string) bool {
	return formatOf(name) == formatZip
}

// LoadFile parses one table file. Failures are returned as *LoadError.
func LoadFile(name string, data []byte) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch formatOf(name) {
	case formatDelimited:
		records, err = readDelimited(data)
	case formatXLSX:
		records, err = readXLSX(data)
	case formatXLS:
		records, err = readXLS(data)
	default:
		return nil, &LoadError{File: name, Err: ErrFormatUnsupported}
	}
	if err != nil {
		return nil, &LoadError{File: name, Err: err}
	}

	t, err := buildTable(records)
	if err != nil {
		return nil, &LoadError{File: name, Err: err}
	}
	return t, nil
}

// LoadBatch loads every upload, expanding archives, with at most
// concurrency files parsed at once. Output order follows upload order and
// member order within archives. Per-file failures are collected in the
// returned slice; only a malformed archive or a cancelled context fails the
// whole batch.
func LoadBatch(ctx context.Context, uploads []Upload, concurrency int) ([]NamedTable, []error, error) {
	type slot struct {
		tables []NamedTable
		errs   []error
	}
	slots := make([]slot, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, up := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if IsArchive(up.Name) {
				tables, errs, err := LoadArchive(up.Name, up.Data)
				if err != nil {
					return err
				}
				slots[i] = slot{tables: tables, errs: errs}
				return nil
			}
			t, err := LoadFile(up.Name, up.Data)
			if err != nil {
				slots[i] = slot{errs: []error{err}}
				return nil
			}
			slots[i] = slot{tables: []NamedTable{{Name: up.Name, Table: t}}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		tables []NamedTable
		errs   []error
	)
	for _, s := range slots {
		tables = append(tables, s.tables...)
		errs = append(errs, s.errs...)
	}
	return tables, errs, nil
}

func readDelimited(data []byte) ([][]string, error) {
	data = stripBOM(data)
	if utf8.Valid(data) {
		records, err := parseDelimited(data)
		if err == nil {
			return records, nil
		}
	}
	decoded, err := decodeLatin1(data)
	if err != nil {
		return nil, err
	}
	records, err := parseDelimited(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse delimited text: %w", err)
	}
	return records, nil
}

func parseDelimited(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return preferRawNumbers(rows, raw), nil
}

// preferRawNumbers swaps number-formatted cells ("1,234.50", "$10", "12%")
// for their stored value. Dates and booleans are stored as numbers too, so
// cells whose display is not numeric keep it.
func preferRawNumbers(shown, raw [][]string) [][]string {
	for i, row := range shown {
		if i >= len(raw) {
			break
		}
		for j, cell := range row {
			if j >= len(raw[i]) {
				break
			}
			r := raw[i][j]
			if r == cell || !ParseNumeric(r).Valid {
				continue
			}
			if ParseLenientNumeric(strings.TrimSuffix(strings.TrimSpace(cell), "%")).Valid {
				row[j] = r
			}
		}
	}
	return shown
}

func readXLS(data []byte) (records [][]string, err error) {
	// The BIFF reader panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("read workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyFile
	}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := range cells {
			cells[c] = row.Col(c)
		}
		records = append(records, cells)
	}
	return records, nil
}

// buildTable turns raw records into a typed table. The first record that is
// not entirely blank is the header.
func buildTable(records [][]string) (*Table, error) {
	start := -1
	for i, rec := range records {
		if !isBlankRecord(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyFile
	}

	header := records[start]
	body := records[start+1:]

	width := len(header)
	for _, rec := range body {
		if len(rec) > width {
			width = len(rec)
		}
	}
	names := columnNames(header, width)

	// Fully blank rows are dropped before ids are assigned.
	kept := make([][]string, 0, len(body))
	for _, rec := range body {
		if isBlankRecord(rec) {
			continue
		}
		padded := make([]string, width)
		copy(padded, rec)
		kept = append(kept, padded)
	}

	columns := make([]Column, width)
	colCells := make([]string, len(kept))
	for c := 0; c < width; c++ {
		for r, rec := range kept {
			colCells[r] = rec[c]
		}
		columns[c] = Column{Name: names[c], Type: inferColumnType(colCells)}
	}

	cells := make([][]Value, len(kept))
	for r, rec := range kept {
		row := make([]Value, width)
		for c := range row {
			row[c] = inferCell(rec[c], columns[c].Type)
		}
		cells[r] = row
	}

	return NewTable(columns, cells)
}

// columnNames normalizes header cells: blanks become "Unnamed: i" and
// repeated names get ".1", ".2" suffixes.
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for {
			n, dup := seen[name]
			if !dup {
				break
			}
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", base, n+1)
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if !isBlankText(v) {
			return false
		}
	}
	return true
}
