// internal/domain/caserecord/model.go

// Package caserecord defines the patient case model consumed by the
// clustering pipeline and the read-only store that supplies it. Cases
// arrive from an upstream ingestion system; this service never writes
// them.
package caserecord

import (
	"context"
	"time"
)

// AreaType classifies the reporting area of a case
type AreaType string

const (
	AreaRural AreaType = "Rural"
	AreaUrban AreaType = "Urban"
)

// Case represents a single reported patient case. Location hierarchy
// fields use the empty string for missing levels; coordinates are nil
// when geocoding failed or was never attempted.
type Case struct {
	ID          string
	Syndrome    string
	State       string
	District    string
	SubDistrict string
	Village     string
	AreaType    AreaType
	Latitude    *float64
	Longitude   *float64
	EntryDate   time.Time
}

// Geocoded reports whether the case carries a coordinate pair.
func (c Case) Geocoded() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// Coverage holds the geocoding coverage counts for a single entry date.
type Coverage struct {
	Total    int
	Geocoded int
}

// Percent returns geocoded coverage as a percentage. A date with no
// cases counts as zero coverage, never as fully covered.
func (c Coverage) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Geocoded) / float64(c.Total) * 100
}

// Store provides read access to ingested cases
type Store interface {
	// MaxEntryDate returns the most recent entry date present in the
	// store, or ok=false when the store holds no cases at all.
	MaxEntryDate(ctx context.Context) (time.Time, bool, error)

	// CoverageForDate returns the geocoding coverage counts for the
	// given entry date.
	CoverageForDate(ctx context.Context, date time.Time) (Coverage, error)

	// FindWindow returns all cases with entry dates in [from, to),
	// ordered by ingestion order (entry date, then case ID).
	FindWindow(ctx context.Context, from, to time.Time) ([]Case, error)
}
