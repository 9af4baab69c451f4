package core

import (
	"context"
	"errors"
	"time"
)

// maxPreviewSamples is how many leading rows a table preview shows.
const maxPreviewSamples = 10

// PreviewSummary counts what loading the previewed files would install.
type PreviewSummary struct {
	Files  int `json:"files"`
	Tables int `json:"tables"`
	Rows   int `json:"rows"`
	Failed int `json:"failed"`
}

// TablePreview describes one table a load would create.
type TablePreview struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
	Rows    int            `json:"rows"`
	Samples []RowView      `json:"samples"`
}

// FileFailure is one file that could not be loaded, in listing form.
type FileFailure struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// PreviewResponse is the read-only analysis of a set of uploads.
type PreviewResponse struct {
	Summary          PreviewSummary `json:"summary"`
	Tables           []TablePreview `json:"tables"`
	Failures         []FileFailure  `json:"failures,omitempty"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// DescribeFailure turns a per-file load error into its listing form.
func DescribeFailure(err error) FileFailure {
	ff := FileFailure{Reason: err.Error(), Code: MapError(err).Code}
	var le *LoadError
	if errors.As(err, &le) {
		ff.File = le.File
		ff.Reason = le.Reason()
	}
	return ff
}

// Preview parses uploads exactly as a load would, without installing
// anything, and reports the resulting tables with their inferred column
// types and first rows.
func Preview(ctx context.Context, uploads []Upload, concurrency int) (*PreviewResponse, error) {
	start := time.Now()

	tables, failures, err := LoadBatch(ctx, uploads, concurrency)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{
		Summary: PreviewSummary{Files: len(uploads), Tables: len(tables), Failed: len(failures)},
		Tables:  make([]TablePreview, 0, len(tables)),
	}
	for _, nt := range tables {
		tp := TablePreview{
			Name:    nt.Name,
			Columns: columnSchemas(nt.Table),
			Rows:    nt.Table.Len(),
		}
		for _, r := range nt.Table.Rows() {
			if len(tp.Samples) == maxPreviewSamples {
				break
			}
			tp.Samples = append(tp.Samples, RowView{ID: r.ID, Cells: r.Cells})
		}
		resp.Summary.Rows += tp.Rows
		resp.Tables = append(resp.Tables, tp)
	}
	for _, f := range failures {
		resp.Failures = append(resp.Failures, DescribeFailure(f))
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}
