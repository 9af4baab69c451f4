package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/sheets/internal/config"
	"github.com/JonMunkholm/sheets/internal/core"
)

const clientsCSV = "Name,Amount\nAna,10\nBruno,20\n,\n"

// testClient drives the router and carries the session cookie between
// requests like a browser would.
type testClient struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func newTestClient(t *testing.T, env map[string]string) *testClient {
	t.Helper()
	vars := map[string]string{"RATE_LIMIT_ENABLED": "false", "SESSION_BUSY_WAIT": "100ms"}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	uploads := core.NewGate(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime, core.ErrTooManyUploads)
	sessions := core.NewSessions(core.SessionConfig{
		ParseConcurrency: cfg.Upload.ParseConcurrency,
		BusyWait:         cfg.Session.BusyWait,
		AuditSize:        cfg.Session.AuditSize,
		Uploads:          uploads,
	})
	srv := NewServer(cfg, sessions, uploads)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testClient{t: t, srv: srv}
}

func (c *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.Router().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "session_id" {
			c.cookie = ck
		}
	}
	return rec
}

func (c *testClient) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *testClient) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *testClient) upload(files map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.multipart("/api/upload", files)
}

func (c *testClient) multipart(path string, files map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			c.t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = io.WriteString(fw, content)
	}
	if err := mw.Close(); err != nil {
		c.t.Fatalf("multipart close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, nil)
	rec := c.get("/healthz")
	wantStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestSessionCookie(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.get("/api/tables"), http.StatusOK)
	if c.cookie == nil {
		t.Fatal("no session cookie set")
	}
	first := c.cookie.Value

	rec := c.get("/api/tables")
	wantStatus(t, rec, http.StatusOK)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("known session should not get a new cookie")
	}
	if c.srv.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", c.srv.sessions.Len())
	}

	c.cookie = &http.Cookie{Name: "session_id", Value: "not-a-uuid"}
	c.get("/api/tables")
	if c.cookie.Value == first || c.cookie.Value == "not-a-uuid" {
		t.Errorf("invalid cookie should start a new session, got %q", c.cookie.Value)
	}
}

func TestEndSession(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	first := c.cookie.Value

	req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	rec := c.do(req)
	wantStatus(t, rec, http.StatusNoContent)
	if c.cookie.MaxAge >= 0 || c.cookie.Value != "" {
		t.Errorf("cookie = %+v, want expired", c.cookie)
	}
	if _, ok := c.srv.sessions.Get(first); ok {
		t.Error("ended session is still registered")
	}

	list := decode[struct {
		Tables []core.TableSummary `json:"tables"`
	}](t, c.get("/api/tables"))
	if len(list.Tables) != 0 {
		t.Errorf("tables after ending session = %+v, want none", list.Tables)
	}
	if c.cookie.Value == "" || c.cookie.Value == first {
		t.Errorf("cookie = %q, want a new session", c.cookie.Value)
	}
}

func TestUploadSearchDeleteExport(t *testing.T) {
	c := newTestClient(t, nil)

	rec := c.upload(map[string]string{"clients.csv": clientsCSV})
	wantStatus(t, rec, http.StatusOK)
	up := decode[UploadResponse](t, rec)
	if !up.Reloaded || len(up.Tables) != 1 || up.Tables[0] != "clients.csv" {
		t.Fatalf("upload = %+v", up)
	}

	rec = c.postJSON("/api/search", `{"term":"an"}`)
	wantStatus(t, rec, http.StatusOK)
	sr := decode[SearchResponse](t, rec)
	if sr.Count != 1 || sr.Matches[0].Table != "clients.csv" {
		t.Fatalf("search = %+v, want one match", sr)
	}

	body := `{"matches":[{"table":"clients.csv","rowId":` + itoa(int(sr.Matches[0].RowID)) + `}]}`
	rec = c.postJSON("/api/delete", body)
	wantStatus(t, rec, http.StatusOK)
	sum := decode[core.DeleteSummary](t, rec)
	if sum.Deleted != 1 {
		t.Fatalf("delete = %+v, want 1 deleted", sum)
	}

	rec = c.get("/api/export/clients.csv")
	wantStatus(t, rec, http.StatusOK)
	if got := rec.Body.String(); got != "Name,Amount\nBruno,20\n" {
		t.Errorf("export body = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "clients_modificado.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestUpload_SameFilesIsNoop(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	wantStatus(t, c.postJSON("/api/delete", `{"table":"clients.csv","rowIds":[0]}`), http.StatusOK)

	rec := c.upload(map[string]string{"clients.csv": clientsCSV})
	wantStatus(t, rec, http.StatusOK)
	if up := decode[UploadResponse](t, rec); up.Reloaded {
		t.Error("re-upload of the same file should not reload")
	}

	view := decode[core.TableView](t, c.get("/api/tables/clients.csv"))
	if len(view.Rows) != 1 {
		t.Errorf("rows = %d, want 1 (edit kept)", len(view.Rows))
	}
}

func TestUpload_Errors(t *testing.T) {
	c := newTestClient(t, map[string]string{"UPLOAD_MAX_FILES": "1", "UPLOAD_MAX_FILE_SIZE": "16B"})

	t.Run("no files", func(t *testing.T) {
		rec := c.upload(nil)
		wantStatus(t, rec, http.StatusBadRequest)
		if e := decode[ErrorResponse](t, rec); e.Code != "FILE004" {
			t.Errorf("code = %q, want FILE004", e.Code)
		}
	})

	t.Run("too many files", func(t *testing.T) {
		rec := c.upload(map[string]string{"a.csv": "x\n1\n", "b.csv": "y\n2\n"})
		wantStatus(t, rec, http.StatusBadRequest)
		if e := decode[ErrorResponse](t, rec); e.Code != "MUT001" {
			t.Errorf("code = %q, want MUT001", e.Code)
		}
	})

	t.Run("file too large", func(t *testing.T) {
		rec := c.upload(map[string]string{"big.csv": strings.Repeat("x", 64)})
		wantStatus(t, rec, http.StatusRequestEntityTooLarge)
		if e := decode[ErrorResponse](t, rec); e.Code != "FILE001" {
			t.Errorf("code = %q, want FILE001 (status %d)", e.Code, rec.Code)
		}
	})
}

func TestUpload_PerFileFailure(t *testing.T) {
	c := newTestClient(t, nil)
	rec := c.upload(map[string]string{"clients.csv": clientsCSV, "notes.pdf": "%PDF"})
	wantStatus(t, rec, http.StatusOK)

	up := decode[UploadResponse](t, rec)
	if len(up.Tables) != 1 {
		t.Errorf("tables = %v, want clients.csv only", up.Tables)
	}
	if len(up.Failures) != 1 || up.Failures[0].File != "notes.pdf" || up.Failures[0].Code != "FILE002" {
		t.Errorf("failures = %+v, want notes.pdf FILE002", up.Failures)
	}
}

func TestPreview_DoesNotLoad(t *testing.T) {
	c := newTestClient(t, nil)
	rec := c.multipart("/api/preview", map[string]string{"clients.csv": clientsCSV, "notes.pdf": "%PDF"})
	wantStatus(t, rec, http.StatusOK)

	p := decode[core.PreviewResponse](t, rec)
	if p.Summary.Files != 2 || p.Summary.Tables != 1 || p.Summary.Rows != 2 || p.Summary.Failed != 1 {
		t.Errorf("summary = %+v", p.Summary)
	}
	if len(p.Tables) != 1 || p.Tables[0].Columns[1].Type != "number" || len(p.Tables[0].Samples) != 2 {
		t.Errorf("tables = %+v", p.Tables)
	}

	list := decode[struct {
		Tables []core.TableSummary `json:"tables"`
	}](t, c.get("/api/tables"))
	if len(list.Tables) != 0 {
		t.Errorf("preview loaded tables: %+v", list.Tables)
	}
}

func TestTableNotFound(t *testing.T) {
	c := newTestClient(t, nil)
	rec := c.get("/api/tables/" + url.PathEscape("missing.csv"))
	wantStatus(t, rec, http.StatusNotFound)
	if e := decode[ErrorResponse](t, rec); e.Code != "TBL001" {
		t.Errorf("code = %q, want TBL001", e.Code)
	}
}

func TestTableNameWithPath(t *testing.T) {
	c := newTestClient(t, nil)

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	f, err := zw.Create("data/clients.csv")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = io.WriteString(f, clientsCSV)
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	wantStatus(t, c.upload(map[string]string{"bundle.zip": zbuf.String()}), http.StatusOK)

	tables := decode[struct {
		Tables []core.TableSummary `json:"tables"`
	}](t, c.get("/api/tables"))
	if len(tables.Tables) != 1 || tables.Tables[0].Name != "data/clients.csv" {
		t.Fatalf("tables = %+v, want data/clients.csv", tables)
	}

	rec := c.get("/api/tables/" + url.PathEscape("data/clients.csv"))
	wantStatus(t, rec, http.StatusOK)
	if view := decode[core.TableView](t, rec); len(view.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(view.Rows))
	}

	rec = c.get("/api/export/" + url.PathEscape("data/clients.csv"))
	wantStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "filename=data_clients_modificado.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestTableNameWithPercent(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"100%.csv": clientsCSV}), http.StatusOK)

	rec := c.get("/api/tables/" + url.PathEscape("100%.csv"))
	wantStatus(t, rec, http.StatusOK)
	if view := decode[core.TableView](t, rec); view.Name != "100%.csv" || len(view.Rows) != 2 {
		t.Errorf("view = %s with %d rows, want 100%%.csv with 2", view.Name, len(view.Rows))
	}

	rec = c.get("/api/export/" + url.PathEscape("100%.csv"))
	wantStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "100%_modificado.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestDelete_StaleMatches(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	wantStatus(t, c.postJSON("/api/search", `{"term":"bruno"}`), http.StatusOK)

	// An edit discards held results.
	wantStatus(t, c.postJSON("/api/update", `{"table":"clients.csv","rowId":0,"values":{"Amount":"11"}}`), http.StatusOK)

	rec := c.postJSON("/api/delete", `{"matches":[{"table":"clients.csv","rowId":1}]}`)
	wantStatus(t, rec, http.StatusConflict)
	if e := decode[ErrorResponse](t, rec); e.Code != "SRCH002" {
		t.Errorf("code = %q, want SRCH002", e.Code)
	}
}

func TestDelete_AllMatches(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)

	rec := c.postJSON("/api/delete", `{"all":true}`)
	wantStatus(t, rec, http.StatusBadRequest)

	wantStatus(t, c.postJSON("/api/search", `{"terms":"ana, bruno"}`), http.StatusOK)
	rec = c.postJSON("/api/delete", `{"all":true}`)
	wantStatus(t, rec, http.StatusOK)
	if sum := decode[core.DeleteSummary](t, rec); sum.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", sum.Deleted)
	}
}

func TestDelete_HTMXFragment(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/api/delete", strings.NewReader(`{"table":"clients.csv","rowIds":[7]}`))
	req.Header.Set("HX-Request", "true")
	rec := c.do(req)
	wantStatus(t, rec, http.StatusNotFound)
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q, want html fragment", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "ROW001") {
		t.Errorf("fragment = %s, want ROW001", rec.Body.String())
	}
}

func TestResults_Stale(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	wantStatus(t, c.postJSON("/api/search", `{"term":"ana"}`), http.StatusOK)

	v := decode[core.ValidatedResults](t, c.get("/api/results"))
	if len(v.Refs) != 1 || v.Stale {
		t.Fatalf("results = %+v, want one live match", v)
	}

	wantStatus(t, c.upload(map[string]string{"other.csv": "A\n1\n"}), http.StatusOK)
	v = decode[core.ValidatedResults](t, c.get("/api/results"))
	if len(v.Refs) != 0 {
		t.Errorf("results after reload = %+v, want none", v)
	}
}

func TestUpdateAndBatchEdit(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)

	rec := c.postJSON("/api/update", `{"table":"clients.csv","rowId":0,"values":{"Amount":"abc","Nope":"1"}}`)
	wantStatus(t, rec, http.StatusOK)
	res := decode[core.UpdateResult](t, rec)
	if len(res.Softened) != 1 || len(res.Failed) != 1 {
		t.Errorf("update = %+v, want Amount softened and Nope failed", res)
	}

	rec = c.postJSON("/api/batch-edit", `{"targets":[{"table":"clients.csv","rowId":0},{"table":"clients.csv","rowId":1}],"values":{"Name":"X","Amount":"  "}}`)
	wantStatus(t, rec, http.StatusOK)
	be := decode[core.BatchEditResult](t, rec)
	if be.Rows != 2 || be.Updated != 2 {
		t.Errorf("batch edit = %+v, want 2 rows, 2 cells", be)
	}

	rec = c.postJSON("/api/update", `{"table":"clients.csv","rowId":0,"bogus":1}`)
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestCompact(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	wantStatus(t, c.postJSON("/api/delete", `{"table":"clients.csv","rowIds":[0]}`), http.StatusOK)

	wantStatus(t, c.do(httptest.NewRequest(http.MethodPost, "/api/compact/clients.csv", nil)), http.StatusOK)
	view := decode[core.TableView](t, c.get("/api/tables/clients.csv"))
	if len(view.Rows) != 1 || view.Rows[0].ID != 0 {
		t.Errorf("rows after compact = %+v, want id 0", view.Rows)
	}
}

func TestConvert_RequiresSpreadsheet(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)

	rec := c.get("/api/convert/clients.csv")
	wantStatus(t, rec, http.StatusBadRequest)
	if e := decode[ErrorResponse](t, rec); e.Code != "MUT001" {
		t.Errorf("code = %q, want MUT001", e.Code)
	}
}

func TestAudit(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.upload(map[string]string{"clients.csv": clientsCSV}), http.StatusOK)
	wantStatus(t, c.postJSON("/api/search", `{"term":"ana"}`), http.StatusOK)

	got := decode[struct {
		Entries []core.AuditEntry `json:"entries"`
		Count   int               `json:"count"`
	}](t, c.get("/api/audit"))
	if got.Count != 2 || got.Entries[0].Action != core.ActionSearch {
		t.Fatalf("audit = %+v, want search then load", got)
	}
	if got.Entries[1].Severity != core.SeverityCritical {
		t.Errorf("load severity = %q, want critical", got.Entries[1].Severity)
	}

	rec := c.get("/api/audit?format=csv&action=load")
	wantStatus(t, rec, http.StatusOK)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("csv lines = %d, want header + 1", len(lines))
	}
}

func TestSessionBusy(t *testing.T) {
	c := newTestClient(t, nil)
	wantStatus(t, c.get("/api/tables"), http.StatusOK)
	sess, ok := c.srv.sessions.Get(c.cookie.Value)
	if !ok {
		t.Fatal("session not registered")
	}

	// With every upload slot taken, a load holds the session while it waits.
	for i := 0; i < c.srv.uploads.Capacity(); i++ {
		if !c.srv.uploads.TryAcquire() {
			t.Fatal("upload gate already full")
		}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.Load(context.Background(), []core.Upload{{Name: "a.csv", Data: []byte("A\n1\n")}})
	}()
	for !sess.Busy() {
		time.Sleep(time.Millisecond)
	}

	rec := c.get("/api/tables")
	wantStatus(t, rec, http.StatusServiceUnavailable)
	if e := decode[ErrorResponse](t, rec); e.Code != "SES001" {
		t.Errorf("code = %q, want SES001", e.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	for i := 0; i < c.srv.uploads.Capacity(); i++ {
		c.srv.uploads.Release()
	}
	<-done
}

func TestRateLimit(t *testing.T) {
	c := newTestClient(t, map[string]string{"RATE_LIMIT_ENABLED": "true", "RATE_LIMIT_REQUESTS_PER_MINUTE": "2"})
	wantStatus(t, c.get("/api/tables"), http.StatusOK)
	wantStatus(t, c.get("/api/tables"), http.StatusOK)

	rec := c.get("/api/tables")
	wantStatus(t, rec, http.StatusTooManyRequests)
	if e := decode[ErrorResponse](t, rec); e.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", e.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	c := newTestClient(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "k1"})
	wantStatus(t, c.get("/api/tables"), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", "k1")
	wantStatus(t, c.do(req), http.StatusOK)

	// Liveness stays open.
	wantStatus(t, c.get("/healthz"), http.StatusOK)
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, nil)
	st := decode[StatusResponse](t, c.get("/api/status"))
	if st.Sessions != 1 || st.Uploads.Capacity != 4 {
		t.Errorf("status = %+v, want 1 session and 4 upload slots", st)
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
