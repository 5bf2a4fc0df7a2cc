// internal/adapter/storage/merge_log_store.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"sentinel/internal/domain/cluster"
)

// MergeLogStore implements cluster.MergeLog using PostgreSQL. The
// table is append-only.
type MergeLogStore struct {
	db *pgxpool.Pool
}

// NewMergeLogStore creates a new PostgreSQL merge log store
func NewMergeLogStore(db *pgxpool.Pool) *MergeLogStore {
	return &MergeLogStore{db: db}
}

// Append adds an entry to the log.
func (s *MergeLogStore) Append(ctx context.Context, entry cluster.MergeLogEntry) error {
	query := `
		INSERT INTO merge_log (
			id, decision, source_cluster_id, target_cluster_id,
			similarity, shared_cases, moved_cases, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now()
	}

	_, err := s.db.Exec(ctx, query,
		entry.ID, entry.Decision, entry.SourceClusterID, entry.TargetClusterID,
		entry.Similarity, entry.SharedCases, entry.MovedCases, entry.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append merge log entry: %w", err)
	}
	return nil
}
