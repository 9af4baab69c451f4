package core

// session.go holds the state of one user's editing session.
//
// A Session owns a Store, the last search results and an audit trail. Every
// action passes through a one-slot Gate, so a load, search or edit runs to
// completion before the next one starts and a half-applied batch is never
// visible. Results are discarded on every reload and after every successful
// mutation; readers always get them re-validated against the store.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// SessionConfig tunes new sessions.
type SessionConfig struct {
	ParseConcurrency int           // files parsed in parallel per load
	BusyWait         time.Duration // how long an action waits for the gate
	AuditSize        int           // audit entries kept
	// Uploads, when set, is a gate shared by all sessions that bounds
	// how many loads parse at once.
	Uploads *Gate
}

// Session is one user's tables, search results and history.
type Session struct {
	ID string

	cfg     SessionConfig
	gate    *Gate
	store   *Store
	results Results
	audit   *AuditTrail

	mu       sync.Mutex
	lastUsed time.Time
}

// NewSession creates an empty session.
func NewSession(id string, cfg SessionConfig) *Session {
	return &Session{
		ID:       id,
		cfg:      cfg,
		gate:     NewGate(1, cfg.BusyWait, ErrSessionBusy),
		store:    NewStore(),
		audit:    NewAuditTrail(cfg.AuditSize),
		lastUsed: time.Now(),
	}
}

// TableView is a full table listing with row ids.
type TableView struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
	Rows    []RowView      `json:"rows"`
}

// RowView is one listed row; cells follow the column order.
type RowView struct {
	ID    RowID   `json:"id"`
	Cells []Value `json:"cells"`
}

// DeleteSummary reports a delete of search matches.
type DeleteSummary struct {
	Deleted int `json:"deleted"`
	// Skipped counts requested matches that were no longer live.
	Skipped int `json:"skipped"`
}

// do runs fn while holding the session gate.
func (s *Session) do(ctx context.Context, fn func() error) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	s.touch()
	return fn()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns when the session last ran an action.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Busy reports whether an action is running.
func (s *Session) Busy() bool { return s.gate.ActiveCount() > 0 }

// Generation returns the current store generation.
func (s *Session) Generation() string { return s.store.Generation() }

// Load replaces the session's tables with the given uploads. When the set of
// upload names equals the loaded set, or no uploads are given, nothing is
// reloaded so in-progress edits survive. Per-file failures are returned in
// the report; a malformed archive fails the whole load and leaves the
// current tables in place.
func (s *Session) Load(ctx context.Context, uploads []Upload) (LoadReport, error) {
	var report LoadReport
	err := s.do(ctx, func() error {
		names := make([]string, len(uploads))
		for i, up := range uploads {
			names[i] = up.Name
		}
		if len(uploads) == 0 || s.store.SameSources(names) {
			report = LoadReport{
				Generation: s.store.Generation(),
				Tables:     s.store.Names(),
				Sources:    s.store.Sources(),
			}
			return nil
		}

		if s.cfg.Uploads != nil {
			if err := s.cfg.Uploads.Acquire(ctx); err != nil {
				return err
			}
			defer s.cfg.Uploads.Release()
		}

		start := time.Now()
		tables, failures, err := LoadBatch(ctx, uploads, s.cfg.ParseConcurrency)
		if err != nil {
			return err
		}

		// With nothing loaded the same upload is parsed again next time.
		sources := names
		if len(tables) == 0 {
			sources = nil
		}
		gen := s.store.ReplaceAll(tables, sources)
		s.results.Discard()

		report = LoadReport{
			Reloaded:   true,
			Generation: gen,
			Tables:     s.store.Names(),
			Sources:    s.store.Sources(),
			Failures:   failures,
		}
		s.audit.Record(ctx, AuditEntry{
			Action:       ActionLoad,
			RowsAffected: len(report.Tables),
			Generation:   gen,
			Reason:       fmt.Sprintf("%d files, %d failed", len(uploads), len(failures)),
		})
		slog.Info("session loaded",
			"session", s.ID,
			"files", len(uploads),
			"tables", len(report.Tables),
			"failures", len(failures),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	return report, err
}

// Search runs a single-term search and holds its matches. An empty term
// finds fully blank rows. A *SearchPartialFailure is returned together with
// the matches from the tables that could be scanned.
func (s *Session) Search(ctx context.Context, term string) ([]MatchRef, error) {
	var terms []string
	if term != "" {
		terms = []string{term}
	}
	return s.search(ctx, terms, func() ([]MatchRef, error) { return Search(s.store, term) })
}

// SearchTerms splits input into terms and finds rows matching any of them.
// Input without terms finds fully blank rows.
func (s *Session) SearchTerms(ctx context.Context, input string) ([]MatchRef, error) {
	terms := ParseTerms(input)
	return s.search(ctx, terms, func() ([]MatchRef, error) { return SearchAny(s.store, terms) })
}

func (s *Session) search(ctx context.Context, terms []string, run func() ([]MatchRef, error)) ([]MatchRef, error) {
	var refs []MatchRef
	var searchErr error
	err := s.do(ctx, func() error {
		refs, searchErr = run()
		var partial *SearchPartialFailure
		if searchErr != nil && !errors.As(searchErr, &partial) {
			return searchErr
		}
		s.results.Set(s.store.Generation(), terms, refs)
		s.audit.Record(ctx, AuditEntry{
			Action:       ActionSearch,
			Terms:        terms,
			RowsAffected: len(refs),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, searchErr
}

// Preview analyses uploads without touching the session's tables. It runs
// outside the session gate but takes an upload slot like Load does.
func (s *Session) Preview(ctx context.Context, uploads []Upload) (*PreviewResponse, error) {
	if len(uploads) == 0 {
		return nil, rejectf("no files to preview")
	}
	if s.cfg.Uploads != nil {
		if err := s.cfg.Uploads.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.cfg.Uploads.Release()
	}
	s.touch()
	return Preview(ctx, uploads, s.cfg.ParseConcurrency)
}

// Results returns the held matches that are still live.
func (s *Session) Results(ctx context.Context) (ValidatedResults, error) {
	var v ValidatedResults
	err := s.do(ctx, func() error {
		v = s.results.Validate(s.store)
		return nil
	})
	return v, err
}

// Delete removes rows by id from one table.
func (s *Session) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	var n int
	err := s.do(ctx, func() error {
		var err error
		if n, err = Delete(s.store, req); err != nil {
			return err
		}
		s.results.Discard()
		s.audit.Record(ctx, AuditEntry{Action: ActionRowDelete, Table: req.Table, RowsAffected: n})
		return nil
	})
	return n, err
}

// DeleteMatches removes rows picked from the held search results. Targets
// that are not among the live held matches are skipped; when none is left
// the call fails with ErrResultsStale and nothing changes.
func (s *Session) DeleteMatches(ctx context.Context, targets []RowTarget) (DeleteSummary, error) {
	var sum DeleteSummary
	err := s.do(ctx, func() error {
		if len(targets) == 0 {
			return rejectf("no matches selected for deletion")
		}
		live := s.results.Filter(s.store, targets)
		if len(live) == 0 {
			s.results.Discard()
			return ErrResultsStale
		}
		var err error
		if sum, err = s.deleteTargets(ctx, live); err != nil {
			return err
		}
		sum.Skipped = len(targets) - len(live)
		return nil
	})
	return sum, err
}

// DeleteAllMatches removes every row in the held search results.
func (s *Session) DeleteAllMatches(ctx context.Context) (DeleteSummary, error) {
	var sum DeleteSummary
	err := s.do(ctx, func() error {
		wasHeld := !s.results.Empty()
		v := s.results.Validate(s.store)
		if len(v.Refs) == 0 {
			if wasHeld {
				return ErrResultsStale
			}
			return rejectf("no search results to delete")
		}
		targets := make([]RowTarget, len(v.Refs))
		for i, ref := range v.Refs {
			targets[i] = RowTarget{Table: ref.Table, RowID: ref.RowID}
		}
		var err error
		sum, err = s.deleteTargets(ctx, targets)
		return err
	})
	return sum, err
}

// deleteTargets deletes live targets grouped per table in store order.
func (s *Session) deleteTargets(ctx context.Context, targets []RowTarget) (DeleteSummary, error) {
	byTable := make(map[string][]RowID)
	for _, t := range targets {
		byTable[t.Table] = append(byTable[t.Table], t.RowID)
	}
	var sum DeleteSummary
	for _, name := range s.store.Names() {
		ids, ok := byTable[name]
		if !ok {
			continue
		}
		n, err := Delete(s.store, DeleteRequest{Table: name, RowIDs: ids})
		if err != nil {
			return sum, err
		}
		sum.Deleted += n
		s.audit.Record(ctx, AuditEntry{Action: ActionRowDelete, Table: name, RowsAffected: n})
	}
	s.results.Discard()
	return sum, nil
}

// Update writes raw values into one row. The audit entry keeps the old and
// new value of every changed cell.
func (s *Session) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	var res UpdateResult
	err := s.do(ctx, func() error {
		before := snapshotRow(s.store, req.Table, req.RowID)
		var err error
		if res, err = Update(s.store, req); err != nil {
			return err
		}
		s.results.Discard()
		id := req.RowID
		s.audit.Record(ctx, AuditEntry{
			Action:       ActionCellEdit,
			Table:        req.Table,
			RowID:        &id,
			Columns:      res.Updated,
			Changes:      diffRecord(before, snapshotRow(s.store, req.Table, req.RowID), res.Updated),
			RowsAffected: 1,
		})
		return nil
	})
	return res, err
}

// BatchEdit writes the same non-empty values into several rows.
func (s *Session) BatchEdit(ctx context.Context, req BatchEditRequest) (BatchEditResult, error) {
	var res BatchEditResult
	err := s.do(ctx, func() error {
		var err error
		if res, err = BatchEdit(s.store, req); err != nil {
			return err
		}
		s.results.Discard()
		s.audit.Record(ctx, AuditEntry{
			Action:       ActionBatchEdit,
			Columns:      sortedKeys(req.Values),
			RowsAffected: res.Rows,
		})
		return nil
	})
	return res, err
}

// Compact renumbers a table's row ids densely.
func (s *Session) Compact(ctx context.Context, table string) (int, error) {
	var n int
	err := s.do(ctx, func() error {
		var err error
		if n, err = Compact(s.store, table); err != nil {
			return err
		}
		s.results.Discard()
		s.audit.Record(ctx, AuditEntry{Action: ActionCompact, Table: table, RowsAffected: n})
		return nil
	})
	return n, err
}

// Export writes a table as CSV and returns its download name.
func (s *Session) Export(ctx context.Context, table string, w io.Writer) (string, error) {
	return s.export(ctx, table, w, false)
}

// Convert writes a spreadsheet table as CSV under its plain base name.
func (s *Session) Convert(ctx context.Context, table string, w io.Writer) (string, error) {
	return s.export(ctx, table, w, true)
}

func (s *Session) export(ctx context.Context, table string, w io.Writer, convert bool) (string, error) {
	var name string
	err := s.do(ctx, func() error {
		t, err := s.store.Get(table)
		if err != nil {
			return err
		}
		if convert && !IsSpreadsheet(table) {
			return rejectf("%s is not a spreadsheet", table)
		}
		if err := WriteCSV(w, t); err != nil {
			return err
		}
		name = ExportName(table)
		if convert {
			name = ConvertName(table)
		}
		s.audit.Record(ctx, AuditEntry{Action: ActionExport, Table: table, RowsAffected: t.Len(), Reason: name})
		return nil
	})
	return name, err
}

// Tables lists loaded tables in insertion order.
func (s *Session) Tables(ctx context.Context) ([]TableSummary, error) {
	var out []TableSummary
	err := s.do(ctx, func() error {
		for _, name := range s.store.Names() {
			t, err := s.store.Get(name)
			if err != nil {
				return err
			}
			out = append(out, TableSummary{
				Name:        name,
				Columns:     columnSchemas(t),
				Rows:        t.Len(),
				Spreadsheet: IsSpreadsheet(name),
			})
		}
		return nil
	})
	return out, err
}

// Table returns every row of one table.
func (s *Session) Table(ctx context.Context, name string) (TableView, error) {
	var view TableView
	err := s.do(ctx, func() error {
		t, err := s.store.Get(name)
		if err != nil {
			return err
		}
		view = TableView{Name: name, Columns: columnSchemas(t)}
		view.Rows = make([]RowView, 0, t.Len())
		for _, r := range t.Rows() {
			view.Rows = append(view.Rows, RowView{ID: r.ID, Cells: r.Cells})
		}
		return nil
	})
	return view, err
}

// Audit returns the session's audit entries, newest first.
func (s *Session) Audit(f AuditFilter) []AuditEntry {
	return s.audit.Entries(f)
}

func columnSchemas(t *Table) []ColumnSchema {
	cols := t.Columns()
	out := make([]ColumnSchema, len(cols))
	for i, c := range cols {
		out[i] = ColumnSchema{Name: c.Name, Type: c.Type.String()}
	}
	return out
}
