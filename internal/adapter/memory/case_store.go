// internal/adapter/memory/case_store.go

// Package memory provides in-memory store implementations for tests
// and ephemeral environments. They mirror the behavior of the pgx
// stores in internal/adapter/storage.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentinel/internal/domain/caserecord"
)

// CaseStore is an in-memory caserecord.Store
type CaseStore struct {
	mu    sync.RWMutex
	cases []caserecord.Case
}

// NewCaseStore creates an empty in-memory case store
func NewCaseStore() *CaseStore {
	return &CaseStore{}
}

// Add appends cases to the store.
func (s *CaseStore) Add(cases ...caserecord.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, cases...)
}

// MaxEntryDate returns the most recent entry date present.
func (s *CaseStore) MaxEntryDate(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max time.Time
	for _, c := range s.cases {
		if c.EntryDate.After(max) {
			max = c.EntryDate
		}
	}
	if max.IsZero() {
		return time.Time{}, false, nil
	}
	return max, true, nil
}

// CoverageForDate returns geocoding coverage counts for one date.
func (s *CaseStore) CoverageForDate(_ context.Context, date time.Time) (caserecord.Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cov caserecord.Coverage
	for _, c := range s.cases {
		if sameDay(c.EntryDate, date) {
			cov.Total++
			if c.Geocoded() {
				cov.Geocoded++
			}
		}
	}
	return cov, nil
}

// FindWindow returns cases with entry dates in [from, to) in ingestion
// order.
func (s *CaseStore) FindWindow(_ context.Context, from, to time.Time) ([]caserecord.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []caserecord.Case
	for _, c := range s.cases {
		if !c.EntryDate.Before(from) && c.EntryDate.Before(to) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
