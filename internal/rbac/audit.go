package rbac

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one access decision, granted or denied. FilteredCount
// reports how many entities scope narrowing removed from a read, so a
// reviewer can tell when someone is being shown less than the full graph.
type AuditEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"ts"`
	PrincipalID   string    `json:"principal_id"`
	Operation     string    `json:"operation"`
	Granted       bool      `json:"granted"`
	Reason        string    `json:"reason,omitempty"`
	FilteredCount int       `json:"filtered_count,omitempty"`
}

// AuditLog is an append-only decision log. It tolerates concurrent appenders;
// entries are never compacted or mutated here.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	now     func() time.Time
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

func (l *AuditLog) append(entry AuditEntry) {
	if l == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = l.now().UTC()
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded decisions, oldest first.
func (l *AuditLog) Entries() []AuditEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
