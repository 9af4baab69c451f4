package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormatUnsupported is returned for files whose extension is not a
	// supported table format.
	ErrFormatUnsupported = errors.New("unsupported file format")

	// ErrArchiveMalformed is returned when an archive cannot be opened.
	ErrArchiveMalformed = errors.New("malformed archive")

	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("empty file")

	ErrTableNotFound  = errors.New("table not found")
	ErrRowNotFound    = errors.New("row not found")
	ErrColumnNotFound = errors.New("column not found")

	// ErrResultsStale is returned when an action targets search results that
	// no longer match the store. The caller should search again.
	ErrResultsStale = errors.New("search results are stale, search again")
)

// LoadError is a per-file load failure. It wraps ErrFormatUnsupported,
// ErrArchiveMalformed or the underlying read/decode error.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Reason returns the underlying failure message without the file name.
func (e *LoadError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// CoercionError describes a raw value that did not convert to its column's
// type. It is informational only: the value is stored as text instead.
type CoercionError struct {
	Column string
	Raw    string
	Type   ColumnType
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %q to %s for column %q", e.Raw, e.Type, e.Column)
}

// TableError is a failure scanning one table during a search.
type TableError struct {
	Table string
	Err   error
}

func (e TableError) Error() string { return fmt.Sprintf("%s: %v", e.Table, e.Err) }

// SearchPartialFailure is returned alongside the matches that were found when
// one or more tables could not be scanned.
type SearchPartialFailure struct {
	Tables []TableError
}

func (e *SearchPartialFailure) Error() string {
	parts := make([]string, len(e.Tables))
	for i, te := range e.Tables {
		parts[i] = te.Error()
	}
	return "search partially failed: " + strings.Join(parts, "; ")
}

// MutationRejected is returned when a mutation request is refused before any
// change was made.
type MutationRejected struct {
	Reason string
}

func (e *MutationRejected) Error() string { return "mutation rejected: " + e.Reason }

func rejectf(format string, args ...any) error {
	return &MutationRejected{Reason: fmt.Sprintf(format, args...)}
}
