package core

// search.go scans every table in a store for matching rows.
//
// Two modes exist:
//   - term search: a row matches when any cell's string form contains one of
//     the terms, case-insensitively. Null cells never match.
//   - blank search (no terms): a row matches when every cell is blank.
//
// Results follow store insertion order, then row order, so repeated searches
// over unchanged state number their results identically.

import (
	"fmt"
	"strings"
	"unicode"
)

// Search runs a single-term search. Only an empty term selects blank-row
// mode; a term of spaces is searched for like any other.
func Search(store *Store, term string) ([]MatchRef, error) {
	if term == "" {
		return SearchAny(store, nil)
	}
	return SearchAny(store, []string{term})
}

// SearchAny matches rows containing any of the terms. With no terms it
// selects blank-row mode. When some tables cannot be scanned, the matches
// from the others are returned together with a *SearchPartialFailure.
func SearchAny(store *Store, terms []string) ([]MatchRef, error) {
	needles := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		needles = append(needles, strings.ToLower(t))
	}

	var (
		refs   []MatchRef
		failed []TableError
	)
	for _, name := range store.Names() {
		t, err := store.Get(name)
		if err != nil {
			failed = append(failed, TableError{Table: name, Err: err})
			continue
		}
		found, err := scanTable(name, t, needles)
		if err != nil {
			failed = append(failed, TableError{Table: name, Err: err})
			continue
		}
		refs = append(refs, found...)
	}

	if len(failed) > 0 {
		return refs, &SearchPartialFailure{Tables: failed}
	}
	return refs, nil
}

// scanTable collects matches for one table. A table is scanned completely or
// not at all, so a failure never yields partial matches for it.
func scanTable(name string, t *Table, needles []string) ([]MatchRef, error) {
	width := len(t.columns)
	var refs []MatchRef
	for _, r := range t.rows {
		if len(r.Cells) != width {
			return nil, fmt.Errorf("row %d has %d cells, schema has %d columns", r.ID, len(r.Cells), width)
		}
		var hit bool
		if len(needles) == 0 {
			hit = rowIsBlank(r)
		} else {
			hit = rowContainsAny(r, needles)
		}
		if hit {
			refs = append(refs, MatchRef{Table: name, RowID: r.ID, Snapshot: t.record(r)})
		}
	}
	return refs, nil
}

func rowIsBlank(r Row) bool {
	for _, v := range r.Cells {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

func rowContainsAny(r Row, needles []string) bool {
	for _, v := range r.Cells {
		if v.IsNull() {
			continue
		}
		s := strings.ToLower(v.String())
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
	}
	return false
}

// ParseTerms splits multi-term input on commas, semicolons, newlines and
// other whitespace. Terms are trimmed, empties dropped and repeats removed
// while keeping first-seen order.
func ParseTerms(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
