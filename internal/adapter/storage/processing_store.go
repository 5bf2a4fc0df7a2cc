// internal/adapter/storage/processing_store.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"sentinel/internal/domain/cluster"
)

// ProcessingStore implements cluster.ProcessingStore using PostgreSQL.
// Rows are write-once; the date primary key enforces it.
type ProcessingStore struct {
	db *pgxpool.Pool
}

// NewProcessingStore creates a new PostgreSQL processing store
func NewProcessingStore(db *pgxpool.Pool) *ProcessingStore {
	return &ProcessingStore{db: db}
}

// IsProcessed reports whether the date already has a record.
func (s *ProcessingStore) IsProcessed(ctx context.Context, date time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processing_log WHERE analysis_input_date = $1)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processing record: %w", err)
	}
	return exists, nil
}

// Record writes the completion marker for a date, once.
func (s *ProcessingStore) Record(ctx context.Context, rec cluster.ProcessingRecord) error {
	query := `
		INSERT INTO processing_log (analysis_input_date, total_clusters, total_cases, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (analysis_input_date) DO NOTHING
	`

	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	tag, err := s.db.Exec(ctx, query, rec.AnalysisInputDate, rec.TotalClusters, rec.TotalCases, processedAt)
	if err != nil {
		return fmt.Errorf("failed to insert processing record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cluster.ErrAlreadyProcessed
	}
	return nil
}

// Summary returns all processing records, newest first.
func (s *ProcessingStore) Summary(ctx context.Context) ([]cluster.ProcessingRecord, error) {
	query := `
		SELECT analysis_input_date, total_clusters, total_cases, processed_at
		FROM processing_log
		ORDER BY analysis_input_date DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing log: %w", err)
	}
	defer rows.Close()

	var records []cluster.ProcessingRecord
	for rows.Next() {
		var rec cluster.ProcessingRecord
		if err := rows.Scan(&rec.AnalysisInputDate, &rec.TotalClusters, &rec.TotalCases, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processing record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processing records: %w", err)
	}
	return records, nil
}
