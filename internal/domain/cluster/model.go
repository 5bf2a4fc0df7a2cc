// internal/domain/cluster/model.go

// Package cluster defines the outbreak cluster model, its acceptance
// lifecycle, and the store interfaces the services operate against.
package cluster

import (
	"time"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/geo"
)

// Algorithm identifies which clusterer produced a cluster
type Algorithm string

const (
	// AlgorithmABC is area-based clustering of rural cases by village.
	AlgorithmABC Algorithm = "ABC"
	// AlgorithmGIS is density-based spatial clustering of urban cases.
	AlgorithmGIS Algorithm = "GIS"
)

// AcceptStatus is the lifecycle state of a persisted cluster
type AcceptStatus string

const (
	StatusAccepted     AcceptStatus = "ACCEPTED"
	StatusPendingMerge AcceptStatus = "PENDING_MERGE"
	StatusPendingNew   AcceptStatus = "PENDING_NEW"
	StatusRejected     AcceptStatus = "REJECTED"
)

// Pending reports whether the status still awaits resolution.
func (s AcceptStatus) Pending() bool {
	return s == StatusPendingMerge || s == StatusPendingNew
}

// LocationTuple is the administrative hierarchy of a cluster. Empty
// strings mark missing levels.
type LocationTuple struct {
	State       string `json:"state"`
	District    string `json:"district"`
	SubDistrict string `json:"sub_district"`
	Village     string `json:"village"`
}

// Levels returns the hierarchy values in order, broadest first.
func (l LocationTuple) Levels() []string {
	return []string{l.State, l.District, l.SubDistrict, l.Village}
}

// RawCluster is a cluster as produced by a clusterer, before identity
// assignment and matching. Members preserve ingestion order.
type RawCluster struct {
	Algorithm    Algorithm
	Syndrome     string
	Location     LocationTuple
	Members      []caserecord.Case
	Centroid     *geo.Point
	RadiusMeters float64
}

// CaseCount returns the cluster size including non-geocoded members.
func (r RawCluster) CaseCount() int {
	return len(r.Members)
}

// MemberIDs returns the member case IDs in ingestion order.
func (r RawCluster) MemberIDs() []string {
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
	}
	return ids
}

// CandidateMatch is one historical cluster considered during matching,
// retained on the persisted row for review.
type CandidateMatch struct {
	ClusterID      string  `json:"cluster_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// MatchOutcome is the matcher's verdict for one new cluster.
type MatchOutcome struct {
	Status           AcceptStatus
	MatchedClusterID string
	DistanceMeters   *float64
	Confidence       float64
	Candidates       []CandidateMatch
}

// PersistedCluster is a cluster row as stored, carrying identity,
// lifecycle state and match metadata.
type PersistedCluster struct {
	ID                string
	Algorithm         Algorithm
	Syndrome          string
	Location          LocationTuple
	CaseIDs           []string
	CaseCount         int
	Centroid          *geo.Point
	RadiusMeters      float64
	AcceptStatus      AcceptStatus
	AnalysisInputDate time.Time
	MatchedClusterID  string
	MatchDistance     *float64
	MatchConfidence   float64
	Candidates        []CandidateMatch

	// Pending manual-merge marker, set by the merge engine.
	PendingMergeTargetID string
	PendingMergeScore    float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MergeLocationKey returns the location value merge candidates must
// share: village for area-based clusters, sub-district for spatial.
func (p PersistedCluster) MergeLocationKey() string {
	if p.Algorithm == AlgorithmABC {
		return p.Location.Village
	}
	return p.Location.SubDistrict
}

// CaseResult is one denormalized case-in-cluster row, the flat shape
// consumed by downstream reporting.
type CaseResult struct {
	CaseID            string           `json:"case_id"`
	ClusterID         string           `json:"cluster_id"`
	Algorithm         Algorithm        `json:"algorithm"`
	Syndrome          string           `json:"syndrome"`
	AcceptStatus      AcceptStatus     `json:"accept_status"`
	AnalysisInputDate time.Time        `json:"analysis_input_date"`
	MatchedClusterID  string           `json:"matched_cluster_id,omitempty"`
	MatchDistance     *float64         `json:"match_distance_meters,omitempty"`
	MatchConfidence   float64          `json:"match_confidence_score"`
	Candidates        []CandidateMatch `json:"candidate_clusters,omitempty"`
}

// ProcessingRecord marks an analysis date as fully processed. Its
// presence is the authoritative marker; rows are write-once.
type ProcessingRecord struct {
	AnalysisInputDate time.Time
	TotalClusters     int
	TotalCases        int
	ProcessedAt       time.Time
}

// MergeDecision is the outcome class of one merge evaluation
type MergeDecision string

const (
	MergeAutoMerged     MergeDecision = "AUTO_MERGE"
	MergePendingReview  MergeDecision = "PENDING_REVIEW"
	MergeManualApproved MergeDecision = "MANUAL_APPROVED"
	MergeManualDeclined MergeDecision = "MANUAL_DECLINED"
	MergeNoAction       MergeDecision = "NO_MERGE"
)

// MergeLogEntry is one append-only audit row for a merge evaluation or
// manual resolution.
type MergeLogEntry struct {
	ID              string
	Decision        MergeDecision
	SourceClusterID string
	TargetClusterID string
	Similarity      float64
	SharedCases     int
	MovedCases      int
	DecidedAt       time.Time
}

// RunStatus is the terminal status of an analysis invocation
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunBlocked RunStatus = "blocked"
	RunNoData  RunStatus = "no_data"
)

// AlgorithmSummary is the per-algorithm breakdown in a run result.
type AlgorithmSummary struct {
	Clusters       int                  `json:"clusters"`
	Cases          int                  `json:"cases"`
	CountsByStatus map[AcceptStatus]int `json:"counts_by_status"`
}

// RunResult is the outcome of one analysis invocation. Blocked and
// no-data outcomes are normal terminal states, not errors.
type RunResult struct {
	Status            RunStatus                      `json:"status"`
	AnalysisInputDate *time.Time                     `json:"analysis_input_date,omitempty"`
	BlockingDate      *time.Time                     `json:"blocking_date,omitempty"`
	TotalClusters     int                            `json:"total_clusters"`
	TotalCases        int                            `json:"total_cases"`
	Algorithms        map[Algorithm]AlgorithmSummary `json:"algorithms,omitempty"`
	Message           string                         `json:"message,omitempty"`
}

// MergeRunResult is the outcome of one merge-engine invocation.
type MergeRunResult struct {
	Status        RunStatus  `json:"status"`
	WindowEndDate *time.Time `json:"window_end_date,omitempty"`
	Evaluated     int        `json:"evaluated_pairs"`
	AutoMerged    int        `json:"auto_merged"`
	PendingReview int        `json:"pending_review"`
	Message       string     `json:"message,omitempty"`
}
