// internal/service/analysis/orchestrator.go

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/service/clustering"
	"sentinel/internal/service/dateselect"
)

// Clusterer produces raw clusters from a window of cases
type Clusterer interface {
	Cluster(cases []caserecord.Case) []cluster.RawCluster
}

// Orchestrator runs the end-to-end analysis for one eligible date
type Orchestrator struct {
	selector   *dateselect.Selector
	sweeper    *Sweeper
	area       Clusterer
	spatial    Clusterer
	matcher    *clustering.Matcher
	cases      caserecord.Store
	clusters   cluster.Store
	processing cluster.ProcessingStore
	eventBus   *nats.Conn
	topic      string
	windowDays int
	logger     *zap.Logger
}

// NewOrchestrator creates an analysis orchestrator. The NATS
// connection may be nil; events are then skipped.
func NewOrchestrator(
	selector *dateselect.Selector,
	sweeper *Sweeper,
	area, spatial Clusterer,
	matcher *clustering.Matcher,
	cases caserecord.Store,
	clusters cluster.Store,
	processing cluster.ProcessingStore,
	eventBus *nats.Conn,
	topic string,
	windowDays int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		selector:   selector,
		sweeper:    sweeper,
		area:       area,
		spatial:    spatial,
		matcher:    matcher,
		cases:      cases,
		clusters:   clusters,
		processing: processing,
		eventBus:   eventBus,
		topic:      topic,
		windowDays: windowDays,
		logger:     logger,
	}
}

// Run executes one analysis invocation: pick the eligible date, sweep
// expired pending clusters, check the blocking gate, run both
// clusterers over the trailing window, assign identities, match
// against history, and persist everything with the processing record
// written last. Blocked and no-data outcomes are normal results.
func (o *Orchestrator) Run(ctx context.Context) (cluster.RunResult, error) {
	date, ok, err := o.selector.Next(ctx)
	if err != nil {
		return cluster.RunResult{}, fmt.Errorf("selecting analysis date: %w", err)
	}
	if !ok {
		return cluster.RunResult{
			Status:  cluster.RunNoData,
			Message: "no eligible analysis date",
		}, nil
	}

	if _, err := o.sweeper.Sweep(ctx, date); err != nil {
		return cluster.RunResult{}, err
	}

	if blockingDate, blocked, err := o.sweeper.BlockingPending(ctx, date); err != nil {
		return cluster.RunResult{}, err
	} else if blocked {
		return cluster.RunResult{
			Status:            cluster.RunBlocked,
			AnalysisInputDate: &date,
			BlockingDate:      &blockingDate,
			Message:           fmt.Sprintf("pending clusters from %s await review", blockingDate.Format("2006-01-02")),
		}, nil
	}

	// The window trails the analysis date and excludes it.
	from := date.AddDate(0, 0, -o.windowDays)
	cases, err := o.cases.FindWindow(ctx, from, date)
	if err != nil {
		return cluster.RunResult{}, fmt.Errorf("loading case window: %w", err)
	}

	raw := append(o.area.Cluster(cases), o.spatial.Cluster(cases)...)
	ids := clustering.AssignIDs(raw, date)

	persisted := make([]cluster.PersistedCluster, 0, len(raw))
	for i, rc := range raw {
		outcome, err := o.matcher.Match(ctx, rc, date)
		if err != nil {
			return cluster.RunResult{}, err
		}
		persisted = append(persisted, cluster.PersistedCluster{
			ID:                ids[i],
			Algorithm:         rc.Algorithm,
			Syndrome:          rc.Syndrome,
			Location:          rc.Location,
			CaseIDs:           rc.MemberIDs(),
			CaseCount:         rc.CaseCount(),
			Centroid:          rc.Centroid,
			RadiusMeters:      rc.RadiusMeters,
			AcceptStatus:      outcome.Status,
			AnalysisInputDate: date,
			MatchedClusterID:  outcome.MatchedClusterID,
			MatchDistance:     outcome.DistanceMeters,
			MatchConfidence:   outcome.Confidence,
			Candidates:        outcome.Candidates,
		})
	}

	totalCases := 0
	for _, p := range persisted {
		totalCases += p.CaseCount
	}

	if err := o.clusters.SaveClusters(ctx, persisted); err != nil {
		return cluster.RunResult{}, fmt.Errorf("persisting clusters: %w", err)
	}

	// The processing record goes in last so a failed run leaves the
	// date retryable; re-inserted cluster rows converge on retry.
	rec := cluster.ProcessingRecord{
		AnalysisInputDate: date,
		TotalClusters:     len(persisted),
		TotalCases:        totalCases,
		ProcessedAt:       time.Now(),
	}
	if err := o.processing.Record(ctx, rec); err != nil {
		if errors.Is(err, cluster.ErrAlreadyProcessed) {
			o.logger.Warn("analysis date recorded concurrently", zap.String("date", date.Format("2006-01-02")))
		} else {
			return cluster.RunResult{}, fmt.Errorf("recording processed date: %w", err)
		}
	}

	for _, p := range persisted {
		o.publishClusterEvent("detected", p)
	}

	o.logger.Info("analysis run complete",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("clusters", len(persisted)),
		zap.Int("cases", totalCases))

	return cluster.RunResult{
		Status:            cluster.RunSuccess,
		AnalysisInputDate: &date,
		TotalClusters:     len(persisted),
		TotalCases:        totalCases,
		Algorithms:        summarize(persisted),
	}, nil
}

// Review applies a human accept/reject decision to a pending cluster.
func (o *Orchestrator) Review(ctx context.Context, id string, decision cluster.AcceptStatus) error {
	if decision != cluster.StatusAccepted && decision != cluster.StatusRejected {
		return fmt.Errorf("invalid review decision %q", decision)
	}

	c, err := o.clusters.GetCluster(ctx, id)
	if err != nil {
		return fmt.Errorf("loading cluster for review: %w", err)
	}
	if !c.AcceptStatus.Pending() {
		return cluster.ErrConflict
	}

	if err := o.clusters.UpdateStatus(ctx, id, c.AcceptStatus, decision); err != nil {
		return fmt.Errorf("applying review decision: %w", err)
	}

	o.logger.Info("cluster reviewed",
		zap.String("cluster_id", id),
		zap.String("decision", string(decision)))

	if decision == cluster.StatusAccepted {
		c.AcceptStatus = decision
		o.publishClusterEvent("accepted", c)
	}
	return nil
}

func (o *Orchestrator) publishClusterEvent(event string, c cluster.PersistedCluster) {
	if o.eventBus == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"cluster_id":          c.ID,
		"algorithm":           c.Algorithm,
		"syndrome":            c.Syndrome,
		"accept_status":       c.AcceptStatus,
		"case_count":          c.CaseCount,
		"analysis_input_date": c.AnalysisInputDate.Format("2006-01-02"),
	})
	if err != nil {
		o.logger.Error("failed to marshal cluster event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", o.topic, event)
	if err := o.eventBus.Publish(subject, payload); err != nil {
		o.logger.Error("failed to publish cluster event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func summarize(persisted []cluster.PersistedCluster) map[cluster.Algorithm]cluster.AlgorithmSummary {
	out := make(map[cluster.Algorithm]cluster.AlgorithmSummary)
	for _, p := range persisted {
		s := out[p.Algorithm]
		if s.CountsByStatus == nil {
			s.CountsByStatus = make(map[cluster.AcceptStatus]int)
		}
		s.Clusters++
		s.Cases += p.CaseCount
		s.CountsByStatus[p.AcceptStatus]++
		out[p.Algorithm] = s
	}
	return out
}
