// internal/service/clustering/matcher.go

package clustering

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/domain/cluster"
	"sentinel/internal/geo"
)

const maxCandidates = 3

// Matcher compares new clusters against recent accepted history
type Matcher struct {
	store          cluster.Store
	lookbackDays   int
	acceptDistance float64
	mergeDistance  float64
	logger         *zap.Logger
}

// NewMatcher creates a cluster matcher
func NewMatcher(store cluster.Store, lookbackDays int, acceptDistance, mergeDistance float64, logger *zap.Logger) *Matcher {
	return &Matcher{
		store:          store,
		lookbackDays:   lookbackDays,
		acceptDistance: acceptDistance,
		mergeDistance:  mergeDistance,
		logger:         logger,
	}
}

// Match decides the initial accept status of a new cluster by ranking
// ACCEPTED clusters of the same algorithm and syndrome from the
// lookback window by centroid distance. Distance to the nearest
// candidate picks the band: within the accept distance the cluster is
// a continuation (ACCEPTED), within the merge distance it waits for
// review (PENDING_MERGE), otherwise it is new (PENDING_NEW). A cluster
// without a centroid can never match.
func (m *Matcher) Match(ctx context.Context, c cluster.RawCluster, analysisDate time.Time) (cluster.MatchOutcome, error) {
	noMatch := cluster.MatchOutcome{
		Status:     cluster.StatusPendingNew,
		Confidence: 5,
	}

	if c.Centroid == nil {
		return noMatch, nil
	}

	from := analysisDate.AddDate(0, 0, -m.lookbackDays)
	history, err := m.store.FindAccepted(ctx, c.Algorithm, c.Syndrome, from, analysisDate)
	if err != nil {
		return cluster.MatchOutcome{}, fmt.Errorf("loading accepted clusters for matching: %w", err)
	}

	var candidates []cluster.CandidateMatch
	for _, h := range history {
		if h.Centroid == nil {
			continue
		}
		candidates = append(candidates, cluster.CandidateMatch{
			ClusterID:      h.ID,
			DistanceMeters: geo.Distance(*c.Centroid, *h.Centroid),
		})
	}
	if len(candidates) == 0 {
		return noMatch, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceMeters < candidates[j].DistanceMeters
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	nearest := candidates[0]
	outcome := cluster.MatchOutcome{
		MatchedClusterID: nearest.ClusterID,
		DistanceMeters:   &nearest.DistanceMeters,
		Confidence:       m.confidence(nearest.DistanceMeters),
		Candidates:       candidates,
	}

	switch {
	case nearest.DistanceMeters <= m.acceptDistance:
		outcome.Status = cluster.StatusAccepted
	case nearest.DistanceMeters <= m.mergeDistance:
		outcome.Status = cluster.StatusPendingMerge
	default:
		outcome.Status = cluster.StatusPendingNew
		outcome.Confidence = 5
	}

	m.logger.Debug("matched cluster against history",
		zap.String("syndrome", c.Syndrome),
		zap.String("algorithm", string(c.Algorithm)),
		zap.String("nearest", nearest.ClusterID),
		zap.Float64("distance_meters", nearest.DistanceMeters),
		zap.String("status", string(outcome.Status)))

	return outcome, nil
}

// confidence maps the nearest-candidate distance onto a 0-100 score:
// 95 at 0 m falling linearly to 50 at the accept distance, then to 10
// at the merge distance, with a floor of 5 beyond it.
func (m *Matcher) confidence(distance float64) float64 {
	switch {
	case distance <= 0:
		return 95
	case distance <= m.acceptDistance:
		return 95 - (distance/m.acceptDistance)*45
	case distance <= m.mergeDistance:
		return 50 - (distance-m.acceptDistance)/(m.mergeDistance-m.acceptDistance)*40
	default:
		return 5
	}
}
