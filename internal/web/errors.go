package web

// errors.go renders every handler error the same way: the technical error
// is logged with the request id, the client gets the mapped user message.
// HTMX requests receive an HTML fragment, everything else JSON.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
	"github.com/JonMunkholm/sheets/internal/web/templates"
)

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errNoFile        = errors.New("no file provided")
	errFileTooLarge  = errors.New("file too large")
	errInvalidBody   = &core.MutationRejected{Reason: "invalid request body"}
	errMissingTarget = &core.MutationRejected{Reason: "missing table name"}
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	var (
		rejected *core.MutationRejected
		loadErr  *core.LoadError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.Is(err, core.ErrTableNotFound),
		errors.Is(err, core.ErrRowNotFound),
		errors.Is(err, core.ErrColumnNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrResultsStale):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionBusy),
		errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &tooLarge), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rejected),
		errors.As(err, &loadErr),
		errors.Is(err, core.ErrFormatUnsupported),
		errors.Is(err, core.ErrArchiveMalformed),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ue := core.NewUserError(err)
	msg := ue.User

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", ue.Technical,
	}
	// Errors without a specific message are unexpected whatever their status.
	if !core.IsUserFacing(err) || (status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable) {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, msg, status)
		return
	}
	writeJSON(w, r, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// HTMX discards non-2xx bodies unless told where to put them.
	w.Header().Set("HX-Retarget", "#alerts")
	w.Header().Set("HX-Reswap", "innerHTML")
	w.WriteHeader(status)

	c := templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
	if msg.Code == "SRCH002" {
		c = templates.StaleNotice()
	}
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error fragment", "error", err)
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
