// internal/adapter/memory/processing_store.go

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentinel/internal/domain/cluster"
)

// ProcessingStore is an in-memory cluster.ProcessingStore
type ProcessingStore struct {
	mu      sync.RWMutex
	records map[string]cluster.ProcessingRecord // keyed by date (2006-01-02)
}

// NewProcessingStore creates an empty in-memory processing store
func NewProcessingStore() *ProcessingStore {
	return &ProcessingStore{
		records: make(map[string]cluster.ProcessingRecord),
	}
}

// IsProcessed reports whether the date already has a record.
func (s *ProcessingStore) IsProcessed(_ context.Context, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[dayKey(date)]
	return ok, nil
}

// Record writes the completion marker for a date, once.
func (s *ProcessingStore) Record(_ context.Context, rec cluster.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(rec.AnalysisInputDate)
	if _, ok := s.records[key]; ok {
		return cluster.ErrAlreadyProcessed
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	s.records[key] = rec
	return nil
}

// Summary returns all processing records, newest first.
func (s *ProcessingStore) Summary(_ context.Context) ([]cluster.ProcessingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]cluster.ProcessingRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AnalysisInputDate.After(out[j].AnalysisInputDate)
	})
	return out, nil
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
