// internal/service/dateselect/selector.go

// Package dateselect picks the next analysis input date by walking
// backwards from the most recent case date until it finds an
// unprocessed date with acceptable geocoding coverage.
package dateselect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
)

// Selector walks case dates backwards to find the next eligible one
type Selector struct {
	cases        caserecord.Store
	processing   cluster.ProcessingStore
	thresholdPct float64
	floorDays    int
	logger       *zap.Logger
}

// NewSelector creates a date selector
func NewSelector(cases caserecord.Store, processing cluster.ProcessingStore, thresholdPct float64, floorDays int, logger *zap.Logger) *Selector {
	return &Selector{
		cases:        cases,
		processing:   processing,
		thresholdPct: thresholdPct,
		floorDays:    floorDays,
		logger:       logger,
	}
}

// Next returns the next eligible analysis input date: the most recent
// unprocessed date whose geocoding coverage meets the threshold. The
// walk moves strictly backwards one day at a time and stops at
// max_date minus the floor; exhausting it returns ok=false, which is a
// normal outcome rather than an error.
func (s *Selector) Next(ctx context.Context) (time.Time, bool, error) {
	maxDate, ok, err := s.cases.MaxEntryDate(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("finding most recent case date: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}

	maxDate = truncateDay(maxDate)
	floor := maxDate.AddDate(0, 0, -s.floorDays)

	for date := maxDate; !date.Before(floor); date = date.AddDate(0, 0, -1) {
		processed, err := s.processing.IsProcessed(ctx, date)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("checking processing record for %s: %w", date.Format("2006-01-02"), err)
		}
		if processed {
			continue
		}

		cov, err := s.cases.CoverageForDate(ctx, date)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("checking geocoding coverage for %s: %w", date.Format("2006-01-02"), err)
		}

		if cov.Percent() >= s.thresholdPct {
			s.logger.Info("selected analysis input date",
				zap.String("date", date.Format("2006-01-02")),
				zap.Int("total_cases", cov.Total),
				zap.Float64("coverage_pct", cov.Percent()))
			return date, true, nil
		}

		s.logger.Debug("skipping date below coverage threshold",
			zap.String("date", date.Format("2006-01-02")),
			zap.Int("total_cases", cov.Total),
			zap.Float64("coverage_pct", cov.Percent()))
	}

	s.logger.Info("no eligible analysis date within floor",
		zap.String("max_date", maxDate.Format("2006-01-02")),
		zap.Int("floor_days", s.floorDays))
	return time.Time{}, false, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
