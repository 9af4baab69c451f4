package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large: a file or archive member exceeds the size limit
//	FILE002 - Unsupported format: extension is not csv, tsv, txt, xlsx, xls or zip
//	FILE003 - Unreadable file: the file could not be decoded or parsed
//	FILE004 - No file: the upload carried no files
//	FILE005 - Empty file: no header row was found
//	FILE006 - Malformed archive: the zip could not be opened, nothing was loaded
//
// Data errors:
//
//	TBL001  - Table not found
//	ROW001  - Row not found: the row was deleted or ids were compacted
//	COL001  - Column not found
//	SRCH001 - Some tables could not be searched
//	SRCH002 - Results are stale: search again before acting on them
//	MUT001  - Request rejected before any change was made
//
// Session and request errors:
//
//	SES001  - Session busy with another action
//	SES002  - Too many uploads being parsed
//	REQ001  - Request cancelled
//	REQ002  - Request timed out
//	RATE001 - Too many requests
//	AUTH001 - API key missing (issued by the web middleware)
//	AUTH002 - API key invalid (issued by the web middleware)
//	ERR000  - Anything else; check the logs for the technical error
//
// Typed and sentinel errors are classified with errors.Is/As first. Errors
// that only carry text (from transport or middleware) are then matched
// case-insensitively by substring; the first match wins.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorClass matches a sentinel error anywhere in the chain.
type errorClass struct {
	target error
	msg    UserMessage
}

var errorClasses = []errorClass{
	{ErrResultsStale, UserMessage{
		Message: "Results are stale",
		Action:  "The data changed since the search ran. Search again",
		Code:    "SRCH002",
	}},
	{ErrArchiveMalformed, UserMessage{
		Message: "The archive could not be opened",
		Action:  "Check that the file is a valid zip archive. Nothing was loaded",
		Code:    "FILE006",
	}},
	{ErrFormatUnsupported, UserMessage{
		Message: "Unsupported file format",
		Action:  "Upload csv, tsv, txt, xlsx, xls or zip files",
		Code:    "FILE002",
	}},
	{ErrEmptyFile, UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row",
		Code:    "FILE005",
	}},
	{ErrTableNotFound, UserMessage{
		Message: "Table not found",
		Action:  "Reload the table list and pick a loaded table",
		Code:    "TBL001",
	}},
	{ErrRowNotFound, UserMessage{
		Message: "Row not found",
		Action:  "The row was deleted or renumbered. Reload the table",
		Code:    "ROW001",
	}},
	{ErrColumnNotFound, UserMessage{
		Message: "Column not found",
		Action:  "Use a column name from the table header",
		Code:    "COL001",
	}},
	{ErrSessionBusy, UserMessage{
		Message: "Another action is still running",
		Action:  "Please wait a moment and try again",
		Code:    "SES001",
	}},
	{ErrTooManyUploads, UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "SES002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "REQ002",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are tried in order after errorClasses.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Upload exceeds maximum size limit",
			Action:  "Upload fewer or smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.msg
		}
	}

	var rejected *MutationRejected
	if errors.As(err, &rejected) {
		return UserMessage{
			Message: "Request rejected: " + rejected.Reason,
			Action:  "Nothing was changed. Adjust the selection and try again",
			Code:    "MUT001",
		}
	}
	var partial *SearchPartialFailure
	if errors.As(err, &partial) {
		names := make([]string, len(partial.Tables))
		for i, te := range partial.Tables {
			names[i] = te.Table
		}
		return UserMessage{
			Message: "Some tables could not be searched: " + strings.Join(names, ", "),
			Action:  "Results from the other tables are shown. Reload the affected files",
			Code:    "SRCH001",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return UserMessage{
			Message: "The file could not be read",
			Action:  "Save it as UTF-8 csv or xlsx and upload again",
			Code:    "FILE003",
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with the message
// shown to users.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
