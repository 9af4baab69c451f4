package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// UploadResponse is the result of an upload.
type UploadResponse struct {
	core.LoadReport
	Failures []core.FileFailure `json:"failures,omitempty"`
}

// handleUpload loads the multipart "files" field into the caller's session,
// replacing its tables unless the same set of files is already loaded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.readUploads(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := sessionFrom(r).Load(r.Context(), uploads)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := UploadResponse{LoadReport: report}
	for _, ferr := range report.Failures {
		resp.Failures = append(resp.Failures, core.DescribeFailure(ferr))
	}

	logging.FromContext(r.Context()).Info("upload processed",
		"files", len(uploads),
		"reloaded", report.Reloaded,
		"tables", len(report.Tables),
		"failures", len(resp.Failures),
	)
	writeJSON(w, r, http.StatusOK, resp)
}

// handlePreview parses uploaded files and reports the tables they would
// produce without loading them.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.readUploads(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := sessionFrom(r).Preview(r.Context(), uploads)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// readUploads reads the multipart "files" field (or a single "file") with
// the configured count and size limits.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) ([]core.Upload, error) {
	uc := s.cfg.Upload

	r.Body = http.MaxBytesReader(w, r.Body, uc.MaxFileSize*int64(uc.MaxFiles)+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		return nil, errNoFile
	}
	if len(headers) > uc.MaxFiles {
		return nil, &core.MutationRejected{
			Reason: fmt.Sprintf("%d files uploaded, at most %d allowed", len(headers), uc.MaxFiles),
		}
	}

	uploads := make([]core.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > uc.MaxFileSize {
			return nil, fmt.Errorf("%s (%d bytes, limit %d): %w", fh.Filename, fh.Size, uc.MaxFileSize, errFileTooLarge)
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, core.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}
