package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// MaxArchiveMemberSize caps the uncompressed size read from one member.
var MaxArchiveMemberSize int64 = 100 * 1024 * 1024

// LoadArchive loads every table file inside a zip archive. Tables are named
// by their path inside the archive. Members without a table extension are
// skipped silently since archives legitimately carry other files. Per-member
// failures are returned in the error slice; a malformed archive fails the
// whole call with a *LoadError wrapping ErrArchiveMalformed.
func LoadArchive(name string, data []byte) ([]NamedTable, []error, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, &LoadError{File: name, Err: fmt.Errorf("%w: %v", ErrArchiveMalformed, err)}
	}

	var (
		tables []NamedTable
		errs   []error
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !IsTableFile(f.Name) || isArchiveJunk(f.Name) {
			continue
		}
		content, err := readMember(f)
		if err != nil {
			errs = append(errs, &LoadError{File: f.Name, Err: err})
			continue
		}
		t, err := LoadFile(f.Name, content)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tables = append(tables, NamedTable{Name: f.Name, Table: t})
	}
	return tables, errs, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxArchiveMemberSize+1))
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}
	if int64(len(data)) > MaxArchiveMemberSize {
		return nil, fmt.Errorf("file too large: member exceeds %dMB limit", MaxArchiveMemberSize/(1024*1024))
	}
	return data, nil
}

// isArchiveJunk reports macOS resource-fork entries, which carry table
// extensions but no table data.
func isArchiveJunk(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/._") || strings.HasPrefix(name, "._")
}
