// internal/adapter/memory/cluster_store.go

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentinel/internal/domain/cluster"
)

// ClusterStore is an in-memory cluster.Store
type ClusterStore struct {
	mu       sync.RWMutex
	clusters map[string]cluster.PersistedCluster
	results  map[string]cluster.CaseResult // keyed by cluster_id + "/" + case_id
	now      func() time.Time
}

// NewClusterStore creates an empty in-memory cluster store
func NewClusterStore() *ClusterStore {
	return &ClusterStore{
		clusters: make(map[string]cluster.PersistedCluster),
		results:  make(map[string]cluster.CaseResult),
		now:      time.Now,
	}
}

// SaveClusters appends cluster rows and their per-case result rows.
func (s *ClusterStore) SaveClusters(_ context.Context, clusters []cluster.PersistedCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range clusters {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		c.UpdatedAt = c.CreatedAt
		if _, exists := s.clusters[c.ID]; !exists {
			s.clusters[c.ID] = c
		}
		for _, caseID := range c.CaseIDs {
			key := c.ID + "/" + caseID
			if _, exists := s.results[key]; exists {
				continue
			}
			s.results[key] = cluster.CaseResult{
				CaseID:            caseID,
				ClusterID:         c.ID,
				Algorithm:         c.Algorithm,
				Syndrome:          c.Syndrome,
				AcceptStatus:      c.AcceptStatus,
				AnalysisInputDate: c.AnalysisInputDate,
				MatchedClusterID:  c.MatchedClusterID,
				MatchDistance:     c.MatchDistance,
				MatchConfidence:   c.MatchConfidence,
				Candidates:        c.Candidates,
			}
		}
	}
	return nil
}

// GetCluster returns a cluster by ID.
func (s *ClusterStore) GetCluster(_ context.Context, id string) (cluster.PersistedCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clusters[id]
	if !ok {
		return cluster.PersistedCluster{}, cluster.ErrNotFound
	}
	return c, nil
}

// FindAccepted returns ACCEPTED clusters for an algorithm and syndrome
// within [from, to].
func (s *ClusterStore) FindAccepted(_ context.Context, algorithm cluster.Algorithm, syndrome string, from, to time.Time) ([]cluster.PersistedCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []cluster.PersistedCluster
	for _, c := range s.clusters {
		if c.AcceptStatus != cluster.StatusAccepted {
			continue
		}
		if c.Algorithm != algorithm || c.Syndrome != syndrome {
			continue
		}
		if c.AnalysisInputDate.Before(from) || c.AnalysisInputDate.After(to) {
			continue
		}
		out = append(out, c)
	}
	sortByCreated(out)
	return out, nil
}

// FindByStatus returns clusters in any of the given statuses within
// [from, to].
func (s *ClusterStore) FindByStatus(_ context.Context, statuses []cluster.AcceptStatus, from, to time.Time) ([]cluster.PersistedCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := func(st cluster.AcceptStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if st == want {
				return true
			}
		}
		return false
	}

	var out []cluster.PersistedCluster
	for _, c := range s.clusters {
		if !match(c.AcceptStatus) {
			continue
		}
		if c.AnalysisInputDate.Before(from) || c.AnalysisInputDate.After(to) {
			continue
		}
		out = append(out, c)
	}
	sortByCreated(out)
	return out, nil
}

// UpdateStatus transitions a cluster between statuses, guarded by the
// expected prior status.
func (s *ClusterStore) UpdateStatus(_ context.Context, id string, expected, next cluster.AcceptStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return cluster.ErrNotFound
	}
	if c.AcceptStatus != expected {
		return cluster.ErrConflict
	}
	c.AcceptStatus = next
	c.UpdatedAt = s.now()
	s.clusters[id] = c
	s.updateResultStatus(id, next)
	return nil
}

// AutoAcceptBefore flips pending clusters dated on or before the
// cutoff to ACCEPTED.
func (s *ClusterStore) AutoAcceptBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, c := range s.clusters {
		if !c.AcceptStatus.Pending() {
			continue
		}
		if c.AnalysisInputDate.After(cutoff) {
			continue
		}
		c.AcceptStatus = cluster.StatusAccepted
		c.UpdatedAt = s.now()
		s.clusters[id] = c
		s.updateResultStatus(id, cluster.StatusAccepted)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetPendingMerge marks a cluster as awaiting manual merge review.
func (s *ClusterStore) SetPendingMerge(_ context.Context, id, targetID string, similarity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return cluster.ErrNotFound
	}
	c.PendingMergeTargetID = targetID
	c.PendingMergeScore = similarity
	c.UpdatedAt = s.now()
	s.clusters[id] = c
	return nil
}

// ClearPendingMerge removes the manual-merge marker.
func (s *ClusterStore) ClearPendingMerge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return cluster.ErrNotFound
	}
	c.PendingMergeTargetID = ""
	c.PendingMergeScore = 0
	c.UpdatedAt = s.now()
	s.clusters[id] = c
	return nil
}

// AbsorbCluster moves cases from source to target and deletes source.
func (s *ClusterStore) AbsorbCluster(_ context.Context, sourceID, targetID string, moveCaseIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.clusters[sourceID]
	if !ok {
		return cluster.ErrNotFound
	}
	dst, ok := s.clusters[targetID]
	if !ok {
		return cluster.ErrNotFound
	}

	onTarget := make(map[string]bool, len(dst.CaseIDs))
	for _, id := range dst.CaseIDs {
		onTarget[id] = true
	}

	for _, caseID := range moveCaseIDs {
		if onTarget[caseID] {
			continue
		}
		dst.CaseIDs = append(dst.CaseIDs, caseID)
		onTarget[caseID] = true
		s.results[targetID+"/"+caseID] = cluster.CaseResult{
			CaseID:            caseID,
			ClusterID:         targetID,
			Algorithm:         dst.Algorithm,
			Syndrome:          dst.Syndrome,
			AcceptStatus:      dst.AcceptStatus,
			AnalysisInputDate: dst.AnalysisInputDate,
			MatchedClusterID:  dst.MatchedClusterID,
			MatchDistance:     dst.MatchDistance,
			MatchConfidence:   dst.MatchConfidence,
		}
	}
	dst.CaseCount = len(dst.CaseIDs)
	dst.UpdatedAt = s.now()
	s.clusters[targetID] = dst

	for _, caseID := range src.CaseIDs {
		delete(s.results, sourceID+"/"+caseID)
	}
	delete(s.clusters, sourceID)
	return nil
}

// ResultsForDate returns the flat per-case rows for one analysis date.
func (s *ClusterStore) ResultsForDate(_ context.Context, date time.Time) ([]cluster.CaseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []cluster.CaseResult
	for _, r := range s.results {
		if sameDay(r.AnalysisInputDate, date) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClusterID != out[j].ClusterID {
			return out[i].ClusterID < out[j].ClusterID
		}
		return out[i].CaseID < out[j].CaseID
	})
	return out, nil
}

func (s *ClusterStore) updateResultStatus(clusterID string, status cluster.AcceptStatus) {
	for key, r := range s.results {
		if r.ClusterID == clusterID {
			r.AcceptStatus = status
			s.results[key] = r
		}
	}
}

func sortByCreated(clusters []cluster.PersistedCluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		if !clusters[i].CreatedAt.Equal(clusters[j].CreatedAt) {
			return clusters[i].CreatedAt.Before(clusters[j].CreatedAt)
		}
		return clusters[i].ID < clusters[j].ID
	})
}
