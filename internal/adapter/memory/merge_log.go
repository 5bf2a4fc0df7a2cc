// internal/adapter/memory/merge_log.go

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/domain/cluster"
)

// MergeLog is an in-memory cluster.MergeLog
type MergeLog struct {
	mu      sync.RWMutex
	entries []cluster.MergeLogEntry
}

// NewMergeLog creates an empty in-memory merge log
func NewMergeLog() *MergeLog {
	return &MergeLog{}
}

// Append adds an entry to the log.
func (l *MergeLog) Append(_ context.Context, entry cluster.MergeLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now()
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of all logged entries in append order.
func (l *MergeLog) Entries() []cluster.MergeLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]cluster.MergeLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
