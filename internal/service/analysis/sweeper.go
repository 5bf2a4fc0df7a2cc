// internal/service/analysis/sweeper.go

// Package analysis drives the daily clustering run: date selection,
// the auto-accept sweep, the pending-cluster blocking gate, both
// clusterers, matching and persistence.
package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/domain/cluster"
)

// Sweeper auto-accepts pending clusters past their review timeout
type Sweeper struct {
	store       cluster.Store
	timeoutDays int
	logger      *zap.Logger
}

// NewSweeper creates an auto-accept sweeper
func NewSweeper(store cluster.Store, timeoutDays int, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:       store,
		timeoutDays: timeoutDays,
		logger:      logger,
	}
}

// Sweep promotes every PENDING_MERGE and PENDING_NEW cluster whose
// analysis input date is at least the timeout behind the given
// analysis date to ACCEPTED. A cluster exactly timeout days old
// transitions; one day younger does not. Returns the promoted IDs.
func (s *Sweeper) Sweep(ctx context.Context, analysisDate time.Time) ([]string, error) {
	cutoff := analysisDate.AddDate(0, 0, -s.timeoutDays)

	ids, err := s.store.AutoAcceptBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("auto-accepting expired clusters: %w", err)
	}

	if len(ids) > 0 {
		s.logger.Info("auto-accepted expired pending clusters",
			zap.String("analysis_date", analysisDate.Format("2006-01-02")),
			zap.String("cutoff", cutoff.Format("2006-01-02")),
			zap.Int("count", len(ids)),
			zap.Strings("cluster_ids", ids))
	}
	return ids, nil
}

// BlockingPending returns the earliest analysis input date inside the
// trailing timeout window that still carries a pending cluster, or
// ok=false when the window is clear. While any such date exists the
// run for analysisDate must not proceed.
func (s *Sweeper) BlockingPending(ctx context.Context, analysisDate time.Time) (time.Time, bool, error) {
	from := analysisDate.AddDate(0, 0, -s.timeoutDays)

	pending, err := s.store.FindByStatus(ctx,
		[]cluster.AcceptStatus{cluster.StatusPendingMerge, cluster.StatusPendingNew},
		from, analysisDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("checking for blocking pending clusters: %w", err)
	}
	if len(pending) == 0 {
		return time.Time{}, false, nil
	}

	earliest := pending[0].AnalysisInputDate
	for _, p := range pending[1:] {
		if p.AnalysisInputDate.Before(earliest) {
			earliest = p.AnalysisInputDate
		}
	}

	s.logger.Info("analysis blocked by pending clusters",
		zap.String("analysis_date", analysisDate.Format("2006-01-02")),
		zap.String("blocking_date", earliest.Format("2006-01-02")),
		zap.Int("pending", len(pending)))
	return earliest, true, nil
}
