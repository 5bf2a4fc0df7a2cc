// internal/adapter/storage/case_store.go

// Package storage implements the domain store interfaces on
// PostgreSQL via pgx.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"sentinel/internal/domain/caserecord"
)

// CaseStore implements caserecord.Store using PostgreSQL. The case
// table is owned by the ingestion system; this store only reads it.
type CaseStore struct {
	db *pgxpool.Pool
}

// NewCaseStore creates a new PostgreSQL case store
func NewCaseStore(db *pgxpool.Pool) *CaseStore {
	return &CaseStore{db: db}
}

// MaxEntryDate returns the most recent entry date present.
func (s *CaseStore) MaxEntryDate(ctx context.Context) (time.Time, bool, error) {
	query := `SELECT MAX(entry_date) FROM cases`

	var max *time.Time
	if err := s.db.QueryRow(ctx, query).Scan(&max); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max entry date: %w", err)
	}
	if max == nil {
		return time.Time{}, false, nil
	}
	return *max, true, nil
}

// CoverageForDate returns geocoding coverage counts for one date.
func (s *CaseStore) CoverageForDate(ctx context.Context, date time.Time) (caserecord.Coverage, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE latitude IS NOT NULL AND longitude IS NOT NULL)
		FROM cases
		WHERE entry_date = $1
	`

	var cov caserecord.Coverage
	if err := s.db.QueryRow(ctx, query, date).Scan(&cov.Total, &cov.Geocoded); err != nil {
		return caserecord.Coverage{}, fmt.Errorf("failed to query coverage: %w", err)
	}
	return cov, nil
}

// FindWindow returns cases with entry dates in [from, to) in
// ingestion order.
func (s *CaseStore) FindWindow(ctx context.Context, from, to time.Time) ([]caserecord.Case, error) {
	query := `
		SELECT
			id, syndrome,
			COALESCE(state, ''), COALESCE(district, ''),
			COALESCE(sub_district, ''), COALESCE(village, ''),
			area_type, latitude, longitude, entry_date
		FROM cases
		WHERE entry_date >= $1 AND entry_date < $2
		ORDER BY entry_date, id
	`

	rows, err := s.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query case window: %w", err)
	}
	defer rows.Close()

	var cases []caserecord.Case
	for rows.Next() {
		var c caserecord.Case
		if err := rows.Scan(
			&c.ID, &c.Syndrome,
			&c.State, &c.District, &c.SubDistrict, &c.Village,
			&c.AreaType, &c.Latitude, &c.Longitude, &c.EntryDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case rows: %w", err)
	}
	return cases, nil
}
