package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
	"github.com/JonMunkholm/sheets/internal/web/templates"
)

// DeleteRequest removes rows in one of three ways: by id from one table,
// by picking held search matches, or every held match.
type DeleteRequest struct {
	Table   string           `json:"table"`
	RowIDs  []core.RowID     `json:"rowIds"`
	Matches []core.RowTarget `json:"matches"`
	All     bool             `json:"all"`
}

// handleDelete deletes rows. Deletes of search matches only touch matches
// that are still live; a request whose matches are all gone fails with 409.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	sess := sessionFrom(r)
	var (
		sum core.DeleteSummary
		err error
	)
	switch {
	case req.All:
		sum, err = sess.DeleteAllMatches(r.Context())
	case req.Matches != nil:
		sum, err = sess.DeleteMatches(r.Context(), req.Matches)
	case req.Table != "":
		sum.Deleted, err = sess.Delete(r.Context(), core.DeleteRequest{Table: req.Table, RowIDs: req.RowIDs})
	default:
		err = errMissingTarget
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("HX-Trigger", "tables-changed")
		msg := fmt.Sprintf("Deleted %d rows", sum.Deleted)
		if sum.Skipped > 0 {
			msg += fmt.Sprintf(", %d no longer present", sum.Skipped)
		}
		if err := templates.Notice(msg).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render fragment", "error", err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleUpdate writes raw values into one row.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req core.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := sessionFrom(r).Update(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleBatchEdit writes the same non-empty values into several rows.
func (s *Server) handleBatchEdit(w http.ResponseWriter, r *http.Request) {
	var req core.BatchEditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := sessionFrom(r).BatchEdit(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleCompact renumbers a table's row ids.
func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	name, err := tableParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := sessionFrom(r).Compact(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"table": name, "rows": n})
}
