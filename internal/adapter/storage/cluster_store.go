// internal/adapter/storage/cluster_store.go

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sentinel/internal/domain/cluster"
	"sentinel/internal/geo"
)

// ClusterStore implements cluster.Store using PostgreSQL
type ClusterStore struct {
	db *pgxpool.Pool
}

// NewClusterStore creates a new PostgreSQL cluster store
func NewClusterStore(db *pgxpool.Pool) *ClusterStore {
	return &ClusterStore{db: db}
}

const clusterColumns = `
	id, algorithm, syndrome,
	COALESCE(state, ''), COALESCE(district, ''),
	COALESCE(sub_district, ''), COALESCE(village, ''),
	case_ids, case_count,
	centroid_lat, centroid_lng, radius_meters,
	accept_status, analysis_input_date,
	COALESCE(matched_cluster_id, ''), match_distance_meters,
	match_confidence_score, candidate_clusters,
	COALESCE(pending_merge_target_id, ''), pending_merge_score,
	created_at, updated_at
`

// SaveClusters appends cluster rows and their per-case result rows in
// one transaction. Conflicting rows are left untouched so a retried
// analysis date converges.
func (s *ClusterStore) SaveClusters(ctx context.Context, clusters []cluster.PersistedCluster) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	clusterQuery := `
		INSERT INTO clusters (
			id, algorithm, syndrome,
			state, district, sub_district, village,
			case_ids, case_count,
			centroid_lat, centroid_lng, radius_meters,
			accept_status, analysis_input_date,
			matched_cluster_id, match_distance_meters,
			match_confidence_score, candidate_clusters,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW()
		)
		ON CONFLICT (id) DO NOTHING
	`
	resultQuery := `
		INSERT INTO cluster_case_results (
			cluster_id, case_id, algorithm, syndrome,
			accept_status, analysis_input_date,
			matched_cluster_id, match_distance_meters, match_confidence_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cluster_id, case_id) DO NOTHING
	`

	for _, c := range clusters {
		candidatesJSON, err := json.Marshal(c.Candidates)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate list: %w", err)
		}

		var lat, lng *float64
		if c.Centroid != nil {
			lat, lng = &c.Centroid.Latitude, &c.Centroid.Longitude
		}

		_, err = tx.Exec(ctx, clusterQuery,
			c.ID, c.Algorithm, c.Syndrome,
			nullable(c.Location.State), nullable(c.Location.District),
			nullable(c.Location.SubDistrict), nullable(c.Location.Village),
			c.CaseIDs, c.CaseCount,
			lat, lng, c.RadiusMeters,
			c.AcceptStatus, c.AnalysisInputDate,
			nullable(c.MatchedClusterID), c.MatchDistance,
			c.MatchConfidence, candidatesJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cluster %s: %w", c.ID, err)
		}

		for _, caseID := range c.CaseIDs {
			_, err = tx.Exec(ctx, resultQuery,
				c.ID, caseID, c.Algorithm, c.Syndrome,
				c.AcceptStatus, c.AnalysisInputDate,
				nullable(c.MatchedClusterID), c.MatchDistance, c.MatchConfidence,
			)
			if err != nil {
				return fmt.Errorf("failed to insert case result %s/%s: %w", c.ID, caseID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cluster batch: %w", err)
	}
	return nil
}

// GetCluster returns a cluster by ID.
func (s *ClusterStore) GetCluster(ctx context.Context, id string) (cluster.PersistedCluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE id = $1`

	c, err := scanCluster(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cluster.PersistedCluster{}, cluster.ErrNotFound
		}
		return cluster.PersistedCluster{}, fmt.Errorf("failed to get cluster: %w", err)
	}
	return c, nil
}

// FindAccepted returns ACCEPTED clusters for an algorithm and
// syndrome within [from, to].
func (s *ClusterStore) FindAccepted(ctx context.Context, algorithm cluster.Algorithm, syndrome string, from, to time.Time) ([]cluster.PersistedCluster, error) {
	query := `
		SELECT ` + clusterColumns + `
		FROM clusters
		WHERE accept_status = $1
			AND algorithm = $2
			AND syndrome = $3
			AND analysis_input_date BETWEEN $4 AND $5
		ORDER BY created_at, id
	`

	rows, err := s.db.Query(ctx, query, cluster.StatusAccepted, algorithm, syndrome, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query accepted clusters: %w", err)
	}
	defer rows.Close()

	return collectClusters(rows)
}

// FindByStatus returns clusters in any of the given statuses within
// [from, to]. Empty statuses means all.
func (s *ClusterStore) FindByStatus(ctx context.Context, statuses []cluster.AcceptStatus, from, to time.Time) ([]cluster.PersistedCluster, error) {
	query := `
		SELECT ` + clusterColumns + `
		FROM clusters
		WHERE analysis_input_date BETWEEN $1 AND $2
			AND ($3::text[] IS NULL OR accept_status = ANY($3))
		ORDER BY created_at, id
	`

	var filter []string
	for _, st := range statuses {
		filter = append(filter, string(st))
	}

	rows, err := s.db.Query(ctx, query, from, to, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters by status: %w", err)
	}
	defer rows.Close()

	return collectClusters(rows)
}

// UpdateStatus transitions a cluster between statuses, guarded by the
// expected prior status.
func (s *ClusterStore) UpdateStatus(ctx context.Context, id string, expected, next cluster.AcceptStatus) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE clusters
		SET accept_status = $1, updated_at = NOW()
		WHERE id = $2 AND accept_status = $3
	`
	tag, err := tx.Exec(ctx, query, next, id, expected)
	if err != nil {
		return fmt.Errorf("failed to update cluster status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM clusters WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check cluster existence: %w", err)
		}
		if !exists {
			return cluster.ErrNotFound
		}
		return cluster.ErrConflict
	}

	resultQuery := `UPDATE cluster_case_results SET accept_status = $1 WHERE cluster_id = $2`
	if _, err := tx.Exec(ctx, resultQuery, next, id); err != nil {
		return fmt.Errorf("failed to update case result status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

// AutoAcceptBefore flips pending clusters dated on or before the
// cutoff to ACCEPTED.
func (s *ClusterStore) AutoAcceptBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE clusters
		SET accept_status = $1, updated_at = NOW()
		WHERE accept_status IN ($2, $3) AND analysis_input_date <= $4
		RETURNING id
	`
	rows, err := tx.Query(ctx, query,
		cluster.StatusAccepted, cluster.StatusPendingMerge, cluster.StatusPendingNew, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-accept clusters: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan auto-accepted id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auto-accepted ids: %w", err)
	}

	if len(ids) > 0 {
		resultQuery := `UPDATE cluster_case_results SET accept_status = $1 WHERE cluster_id = ANY($2)`
		if _, err := tx.Exec(ctx, resultQuery, cluster.StatusAccepted, ids); err != nil {
			return nil, fmt.Errorf("failed to update case result statuses: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit auto-accept: %w", err)
	}
	return ids, nil
}

// SetPendingMerge marks a cluster as awaiting manual merge review.
func (s *ClusterStore) SetPendingMerge(ctx context.Context, id, targetID string, similarity float64) error {
	query := `
		UPDATE clusters
		SET pending_merge_target_id = $1, pending_merge_score = $2, updated_at = NOW()
		WHERE id = $3
	`
	tag, err := s.db.Exec(ctx, query, targetID, similarity, id)
	if err != nil {
		return fmt.Errorf("failed to set pending merge marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cluster.ErrNotFound
	}
	return nil
}

// ClearPendingMerge removes the manual-merge marker.
func (s *ClusterStore) ClearPendingMerge(ctx context.Context, id string) error {
	query := `
		UPDATE clusters
		SET pending_merge_target_id = NULL, pending_merge_score = 0, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear pending merge marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cluster.ErrNotFound
	}
	return nil
}

// AbsorbCluster moves the given case IDs from source to target and
// deletes the source row, all in one transaction.
func (s *ClusterStore) AbsorbCluster(ctx context.Context, sourceID, targetID string, moveCaseIDs []string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := scanCluster(tx.QueryRow(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, targetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cluster.ErrNotFound
		}
		return fmt.Errorf("failed to load merge target: %w", err)
	}

	onTarget := make(map[string]bool, len(target.CaseIDs))
	for _, caseID := range target.CaseIDs {
		onTarget[caseID] = true
	}
	caseIDs := target.CaseIDs
	for _, caseID := range moveCaseIDs {
		if !onTarget[caseID] {
			caseIDs = append(caseIDs, caseID)
			onTarget[caseID] = true
		}
	}

	updateQuery := `
		UPDATE clusters
		SET case_ids = $1, case_count = $2, updated_at = NOW()
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, updateQuery, caseIDs, len(caseIDs), targetID); err != nil {
		return fmt.Errorf("failed to grow merge target: %w", err)
	}

	resultQuery := `
		INSERT INTO cluster_case_results (
			cluster_id, case_id, algorithm, syndrome,
			accept_status, analysis_input_date,
			matched_cluster_id, match_distance_meters, match_confidence_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cluster_id, case_id) DO NOTHING
	`
	for _, caseID := range moveCaseIDs {
		_, err := tx.Exec(ctx, resultQuery,
			targetID, caseID, target.Algorithm, target.Syndrome,
			target.AcceptStatus, target.AnalysisInputDate,
			nullable(target.MatchedClusterID), target.MatchDistance, target.MatchConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to reassign case %s: %w", caseID, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cluster_case_results WHERE cluster_id = $1`, sourceID); err != nil {
		return fmt.Errorf("failed to delete absorbed case results: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM clusters WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete absorbed cluster: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cluster.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cluster absorption: %w", err)
	}
	return nil
}

// ResultsForDate returns the flat per-case rows for one analysis
// input date.
func (s *ClusterStore) ResultsForDate(ctx context.Context, date time.Time) ([]cluster.CaseResult, error) {
	query := `
		SELECT
			case_id, cluster_id, algorithm, syndrome,
			accept_status, analysis_input_date,
			COALESCE(matched_cluster_id, ''), match_distance_meters, match_confidence_score
		FROM cluster_case_results
		WHERE analysis_input_date = $1
		ORDER BY cluster_id, case_id
	`

	rows, err := s.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query case results: %w", err)
	}
	defer rows.Close()

	var results []cluster.CaseResult
	for rows.Next() {
		var r cluster.CaseResult
		if err := rows.Scan(
			&r.CaseID, &r.ClusterID, &r.Algorithm, &r.Syndrome,
			&r.AcceptStatus, &r.AnalysisInputDate,
			&r.MatchedClusterID, &r.MatchDistance, &r.MatchConfidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan case result row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case result rows: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCluster(row rowScanner) (cluster.PersistedCluster, error) {
	var c cluster.PersistedCluster
	var lat, lng *float64
	var candidatesJSON []byte

	err := row.Scan(
		&c.ID, &c.Algorithm, &c.Syndrome,
		&c.Location.State, &c.Location.District,
		&c.Location.SubDistrict, &c.Location.Village,
		&c.CaseIDs, &c.CaseCount,
		&lat, &lng, &c.RadiusMeters,
		&c.AcceptStatus, &c.AnalysisInputDate,
		&c.MatchedClusterID, &c.MatchDistance,
		&c.MatchConfidence, &candidatesJSON,
		&c.PendingMergeTargetID, &c.PendingMergeScore,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return cluster.PersistedCluster{}, err
	}

	if lat != nil && lng != nil {
		c.Centroid = &geo.Point{Latitude: *lat, Longitude: *lng}
	}
	if len(candidatesJSON) > 0 {
		if err := json.Unmarshal(candidatesJSON, &c.Candidates); err != nil {
			return cluster.PersistedCluster{}, fmt.Errorf("failed to unmarshal candidate list: %w", err)
		}
	}
	return c, nil
}

func collectClusters(rows pgx.Rows) ([]cluster.PersistedCluster, error) {
	var clusters []cluster.PersistedCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster rows: %w", err)
	}
	return clusters, nil
}

// nullable maps the empty string onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
