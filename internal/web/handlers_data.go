package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
	"github.com/JonMunkholm/sheets/internal/web/templates"
)

// handleListTables lists the session's tables in load order.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := sessionFrom(r).Tables(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []core.TableSummary{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"generation": sessionFrom(r).Generation(),
		"tables":     tables,
	})
}

// handleTable returns every row of one table with its row id.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name, err := tableParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := sessionFrom(r).Table(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// SearchRequest selects single-term or multi-term search. An empty term, or
// terms input holding no terms, returns fully blank rows.
type SearchRequest struct {
	Term  string  `json:"term"`
	Terms *string `json:"terms"`
}

// TableFailure names a table that could not be searched.
type TableFailure struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// SearchResponse is the result of a search. Matches are also held by the
// session for later delete requests.
type SearchResponse struct {
	Matches []core.MatchRef `json:"matches"`
	Count   int             `json:"count"`
	Failed  []TableFailure  `json:"failed,omitempty"`
}

// handleSearch runs a search over every loaded table.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	sess := sessionFrom(r)
	var (
		refs []core.MatchRef
		err  error
	)
	if req.Terms != nil {
		refs, err = sess.SearchTerms(r.Context(), *req.Terms)
	} else {
		refs, err = sess.Search(r.Context(), req.Term)
	}

	var partial *core.SearchPartialFailure
	if err != nil && !errors.As(err, &partial) {
		respondError(w, r, err)
		return
	}

	resp := SearchResponse{Matches: refs, Count: len(refs)}
	if resp.Matches == nil {
		resp.Matches = []core.MatchRef{}
	}
	if partial != nil {
		for _, te := range partial.Tables {
			resp.Failed = append(resp.Failed, TableFailure{Table: te.Table, Reason: te.Err.Error()})
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleResults returns the held search matches that are still live.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	v, err := sessionFrom(r).Results(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if v.Stale && isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.StaleNotice().Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render fragment", "error", err)
		}
		return
	}
	if v.Refs == nil {
		v.Refs = []core.MatchRef{}
	}
	writeJSON(w, r, http.StatusOK, v)
}

// handleExport downloads a table as <base>_modificado.csv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name, err := tableParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCSVDownload(w, r, func(out io.Writer) (string, error) {
		return sessionFrom(r).Export(r.Context(), name, out)
	})
}

// handleConvert downloads a spreadsheet table as <base>.csv.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	name, err := tableParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCSVDownload(w, r, func(out io.Writer) (string, error) {
		return sessionFrom(r).Convert(r.Context(), name, out)
	})
}
