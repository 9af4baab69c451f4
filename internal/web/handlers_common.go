package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheets/internal/core"
)

// maxJSONBody caps JSON request bodies. Uploads have their own limit.
const maxJSONBody = 1 << 20

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// tableParam returns the {name} route parameter. Table names are file
// names and archive paths, so clients path-escape them. chi matches on
// RawPath when the request has one, leaving the parameter escaped; otherwise
// it is already decoded and must not be unescaped again.
func tableParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		var err error
		if name, err = url.PathUnescape(name); err != nil {
			return "", errMissingTarget
		}
	}
	if name == "" {
		return "", errMissingTarget
	}
	return name, nil
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected
// so a misspelt key does not silently become an empty request.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return errInvalidBody
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// writeCSVDownload runs export into a buffer first so that an error can
// still produce a proper error response, then sends it as an attachment.
func writeCSVDownload(w http.ResponseWriter, r *http.Request, export func(io.Writer) (string, error)) {
	var buf bytes.Buffer
	filename, err := export(&buf)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// StatusResponse reports server load for monitoring.
type StatusResponse struct {
	Sessions int             `json:"sessions"`
	Uploads  core.GateStatus `json:"uploads"`
}

// handleStatus returns the session count and upload gate state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Sessions: s.sessions.Len()}
	if s.uploads != nil {
		resp.Uploads = s.uploads.Status()
	}
	writeJSON(w, r, http.StatusOK, resp)
}
