package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionLoad      AuditAction = "load"
	ActionSearch    AuditAction = "search"
	ActionCellEdit  AuditAction = "cell_edit"
	ActionBatchEdit AuditAction = "batch_edit"
	ActionRowDelete AuditAction = "row_delete"
	ActionCompact   AuditAction = "compact"
	ActionExport    AuditAction = "export"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// DefaultAuditSize is the number of entries kept per session.
const DefaultAuditSize = 500

// AuditEntry represents a single audit trail entry.
type AuditEntry struct {
	ID           string        `json:"id"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	Table        string        `json:"table,omitempty"`
	RowID        *RowID        `json:"rowId,omitempty"`
	Columns      []string      `json:"columns,omitempty"`
	Changes      []CellChange  `json:"changes,omitempty"`
	Terms        []string      `json:"terms,omitempty"`
	RowsAffected int           `json:"rowsAffected,omitempty"`
	Generation   string        `json:"generation,omitempty"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	UserAgent    string        `json:"userAgent,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionBatchEdit, ActionRowDelete:
		return SeverityHigh
	case ActionLoad, ActionCompact:
		return SeverityCritical
	case ActionSearch, ActionExport:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditTrail is a bounded, in-memory record of what happened in a session.
// The oldest entries are dropped once the limit is reached. It is not an
// undo history: entries describe changes but cannot replay them.
type AuditTrail struct {
	mu      sync.Mutex
	limit   int
	entries []AuditEntry
}

// NewAuditTrail creates a trail that keeps at most limit entries.
func NewAuditTrail(limit int) *AuditTrail {
	if limit <= 0 {
		limit = DefaultAuditSize
	}
	return &AuditTrail{limit: limit}
}

// Record appends an entry, filling in id, severity, timestamp and the
// client details carried by ctx.
func (a *AuditTrail) Record(ctx context.Context, e AuditEntry) AuditEntry {
	e.ID = uuid.NewString()
	e.Severity = determineSeverity(e.Action)
	e.CreatedAt = time.Now().UTC()
	client := ClientFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = client.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = client.UserAgent
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if over := len(a.entries) - a.limit; over > 0 {
		a.entries = append(a.entries[:0:0], a.entries[over:]...)
	}
	return e
}

// AuditFilter narrows Entries. Zero fields match everything.
type AuditFilter struct {
	Table  string
	Action AuditAction
	Limit  int
}

// Entries returns matching entries, newest first.
func (a *AuditTrail) Entries(f AuditFilter) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if f.Table != "" && e.Table != f.Table {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of entries held.
func (a *AuditTrail) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
