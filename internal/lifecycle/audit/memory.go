package audit

import (
	"context"
	"sync"

	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// MemoryWriter keeps the ledger in a bounded in-memory ring. Used by
// tests and single-node development; production runs the Postgres writer.
type MemoryWriter struct {
	mu      sync.RWMutex
	entries []models.AuditLogEntry
	max     int
}

// NewMemoryWriter creates a ring-buffered in-memory writer. max <= 0
// means unbounded.
func NewMemoryWriter(max int) *MemoryWriter {
	return &MemoryWriter{max: max}
}

// Write appends the entry.
func (w *MemoryWriter) Write(ctx context.Context, entry models.AuditLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, entry)
	if w.max > 0 && len(w.entries) > w.max {
		w.entries = w.entries[len(w.entries)-w.max:]
	}
	return nil
}

// Recent returns up to limit matching entries, newest first.
func (w *MemoryWriter) Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]models.AuditLogEntry, 0, limit)
	for i := len(w.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := w.entries[i]
		if filter.Horizon != "" && e.Horizon != filter.Horizon {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len reports how many entries are retained.
func (w *MemoryWriter) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}
