package web

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
)

const defaultAuditPage = 100

// handleAudit returns the session's audit trail, newest first. Query
// parameters: table, action, limit, and format=csv for a download.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := core.AuditFilter{
		Table:  q.Get("table"),
		Action: core.AuditAction(q.Get("action")),
		Limit:  parseIntParam(r, "limit", defaultAuditPage),
	}
	entries := sessionFrom(r).Audit(f)

	if q.Get("format") == "csv" {
		writeAuditCSV(w, r, entries)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func writeAuditCSV(w http.ResponseWriter, r *http.Request, entries []core.AuditEntry) {
	filename := "audit_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Time", "Action", "Severity", "Table", "Row", "Columns", "Terms", "Rows Affected", "IP Address", "Reason"})
	for _, e := range entries {
		row := ""
		if e.RowID != nil {
			row = strconv.Itoa(int(*e.RowID))
		}
		_ = cw.Write([]string{
			e.CreatedAt.Format(time.RFC3339),
			string(e.Action),
			string(e.Severity),
			e.Table,
			row,
			strings.Join(e.Columns, ";"),
			strings.Join(e.Terms, ";"),
			strconv.Itoa(e.RowsAffected),
			e.IPAddress,
			e.Reason,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("audit csv export", "error", err)
	}
}
