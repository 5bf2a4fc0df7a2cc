// internal/domain/cluster/store.go

package cluster

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by stores. Services match on these rather
// than on storage driver errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("analysis date already processed")
	ErrConflict         = errors.New("status conflict")
)

// Store persists clusters and their denormalized per-case results
type Store interface {
	// SaveClusters appends cluster rows and their per-case result rows.
	// Re-inserting an existing (cluster_id, case_id) pair is a no-op so
	// a retried date converges instead of duplicating.
	SaveClusters(ctx context.Context, clusters []PersistedCluster) error

	// GetCluster returns a single cluster by ID, or ErrNotFound.
	GetCluster(ctx context.Context, id string) (PersistedCluster, error)

	// FindAccepted returns ACCEPTED clusters for the given algorithm
	// and syndrome with analysis input dates in [from, to].
	FindAccepted(ctx context.Context, algorithm Algorithm, syndrome string, from, to time.Time) ([]PersistedCluster, error)

	// FindByStatus returns clusters in any of the given statuses with
	// analysis input dates in [from, to]. Empty statuses means all.
	FindByStatus(ctx context.Context, statuses []AcceptStatus, from, to time.Time) ([]PersistedCluster, error)

	// UpdateStatus transitions a cluster from an expected prior status
	// to a new one. Returns ErrConflict when the row is no longer in
	// the expected status, ErrNotFound when it does not exist.
	UpdateStatus(ctx context.Context, id string, expected, next AcceptStatus) error

	// AutoAcceptBefore flips every PENDING_MERGE/PENDING_NEW cluster
	// with an analysis input date on or before the cutoff to ACCEPTED,
	// returning the IDs it transitioned.
	AutoAcceptBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// SetPendingMerge marks a cluster as awaiting manual merge review
	// against the given target.
	SetPendingMerge(ctx context.Context, id, targetID string, similarity float64) error

	// ClearPendingMerge removes the manual-merge marker.
	ClearPendingMerge(ctx context.Context, id string) error

	// AbsorbCluster moves the given case IDs from the source cluster
	// to the target cluster (cluster rows and result rows) and deletes
	// the source row. Case IDs already on the target are dropped.
	AbsorbCluster(ctx context.Context, sourceID, targetID string, moveCaseIDs []string) error

	// ResultsForDate returns the flat per-case rows for one analysis
	// input date.
	ResultsForDate(ctx context.Context, date time.Time) ([]CaseResult, error)
}

// ProcessingStore tracks which analysis dates have completed
type ProcessingStore interface {
	// IsProcessed reports whether the date already has a record.
	IsProcessed(ctx context.Context, date time.Time) (bool, error)

	// Record writes the completion marker for a date. Returns
	// ErrAlreadyProcessed when the date is already recorded.
	Record(ctx context.Context, rec ProcessingRecord) error

	// Summary returns all processing records, newest first.
	Summary(ctx context.Context) ([]ProcessingRecord, error)
}

// MergeLog is the append-only audit trail of merge decisions
type MergeLog interface {
	Append(ctx context.Context, entry MergeLogEntry) error
}
