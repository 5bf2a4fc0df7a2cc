// internal/service/merge/engine.go

// Package merge consolidates overlapping accepted clusters. It runs
// independently of the daily analysis, evaluating same-algorithm
// cluster pairs that share a location key by the Jaccard similarity of
// their member sets.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sentinel/internal/domain/cluster"
)

// Engine evaluates accepted clusters for consolidation
type Engine struct {
	clusters   cluster.Store
	processing cluster.ProcessingStore
	log        cluster.MergeLog
	eventBus   *nats.Conn
	topic      string

	windowDays      int
	lookbackDays    int
	walkDays        int
	maxPendingRatio float64
	autoThreshold   float64
	reviewThreshold float64

	logger *zap.Logger
}

// NewEngine creates a merge engine. The NATS connection may be nil;
// events are then skipped.
func NewEngine(
	clusters cluster.Store,
	processing cluster.ProcessingStore,
	log cluster.MergeLog,
	eventBus *nats.Conn,
	topic string,
	windowDays, lookbackDays, walkDays int,
	maxPendingRatio, autoThreshold, reviewThreshold float64,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		clusters:        clusters,
		processing:      processing,
		log:             log,
		eventBus:        eventBus,
		topic:           topic,
		windowDays:      windowDays,
		lookbackDays:    lookbackDays,
		walkDays:        walkDays,
		maxPendingRatio: maxPendingRatio,
		autoThreshold:   autoThreshold,
		reviewThreshold: reviewThreshold,
		logger:          logger,
	}
}

// Run executes one merge pass: find an eligible window end date, load
// the ACCEPTED clusters of the trailing window, and evaluate every
// same-algorithm pair sharing a location key. Pairs above the auto
// threshold merge immediately; pairs in the review band mark the later
// cluster for manual review against its best candidate; overlapping
// pairs below it are logged as no-merge.
func (e *Engine) Run(ctx context.Context) (cluster.MergeRunResult, error) {
	endDate, ok, err := e.eligibleEndDate(ctx)
	if err != nil {
		return cluster.MergeRunResult{}, err
	}
	if !ok {
		return cluster.MergeRunResult{
			Status:  cluster.RunNoData,
			Message: "no eligible merge window",
		}, nil
	}

	from := endDate.AddDate(0, 0, -e.windowDays)
	accepted, err := e.clusters.FindByStatus(ctx, []cluster.AcceptStatus{cluster.StatusAccepted}, from, endDate)
	if err != nil {
		return cluster.MergeRunResult{}, fmt.Errorf("loading accepted clusters for merge: %w", err)
	}

	result := cluster.MergeRunResult{
		Status:        cluster.RunSuccess,
		WindowEndDate: &endDate,
	}

	// Track the best review-band candidate per later cluster; only the
	// single best is retained as the pending target.
	type reviewCandidate struct {
		target     cluster.PersistedCluster
		similarity float64
	}
	pendingReview := make(map[string]reviewCandidate)
	merged := make(map[string]bool)

	for i := 0; i < len(accepted); i++ {
		for j := i + 1; j < len(accepted); j++ {
			a, b := accepted[i], accepted[j]
			if merged[a.ID] || merged[b.ID] {
				continue
			}
			if a.Algorithm != b.Algorithm {
				continue
			}
			if a.MergeLocationKey() == "" || a.MergeLocationKey() != b.MergeLocationKey() {
				continue
			}

			similarity, shared := jaccard(a.CaseIDs, b.CaseIDs)
			if shared == 0 {
				continue
			}
			result.Evaluated++

			// FindByStatus orders by creation, so a is the earlier
			// cluster and survives; b is absorbed or flagged.
			switch {
			case similarity > e.autoThreshold:
				if err := e.absorb(ctx, b, a, similarity, cluster.MergeAutoMerged); err != nil {
					return cluster.MergeRunResult{}, err
				}
				merged[b.ID] = true
				delete(pendingReview, b.ID)
				result.AutoMerged++

			case similarity >= e.reviewThreshold:
				best, seen := pendingReview[b.ID]
				if !seen || similarity > best.similarity {
					pendingReview[b.ID] = reviewCandidate{target: a, similarity: similarity}
				}

			default:
				if err := e.appendLog(ctx, cluster.MergeLogEntry{
					Decision:        cluster.MergeNoAction,
					SourceClusterID: b.ID,
					TargetClusterID: a.ID,
					Similarity:      similarity,
					SharedCases:     shared,
				}); err != nil {
					return cluster.MergeRunResult{}, err
				}
			}
		}
	}

	for id, candidate := range pendingReview {
		if merged[id] {
			continue
		}
		if err := e.clusters.SetPendingMerge(ctx, id, candidate.target.ID, candidate.similarity); err != nil {
			return cluster.MergeRunResult{}, fmt.Errorf("marking cluster %s for merge review: %w", id, err)
		}
		if err := e.appendLog(ctx, cluster.MergeLogEntry{
			Decision:        cluster.MergePendingReview,
			SourceClusterID: id,
			TargetClusterID: candidate.target.ID,
			Similarity:      candidate.similarity,
		}); err != nil {
			return cluster.MergeRunResult{}, err
		}
		result.PendingReview++
	}

	e.logger.Info("merge pass complete",
		zap.String("window_end", endDate.Format("2006-01-02")),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("auto_merged", result.AutoMerged),
		zap.Int("pending_review", result.PendingReview))

	return result, nil
}

// Approve resolves a pending manual merge by absorbing the flagged
// cluster into its recorded target, the same path auto-merge takes.
func (e *Engine) Approve(ctx context.Context, id string) error {
	c, err := e.clusters.GetCluster(ctx, id)
	if err != nil {
		return fmt.Errorf("loading cluster for merge approval: %w", err)
	}
	if c.PendingMergeTargetID == "" {
		return cluster.ErrConflict
	}

	target, err := e.clusters.GetCluster(ctx, c.PendingMergeTargetID)
	if err != nil {
		return fmt.Errorf("loading merge target %s: %w", c.PendingMergeTargetID, err)
	}

	return e.absorb(ctx, c, target, c.PendingMergeScore, cluster.MergeManualApproved)
}

// Decline resolves a pending manual merge by clearing the marker and
// leaving both clusters as they are.
func (e *Engine) Decline(ctx context.Context, id string) error {
	c, err := e.clusters.GetCluster(ctx, id)
	if err != nil {
		return fmt.Errorf("loading cluster for merge decline: %w", err)
	}
	if c.PendingMergeTargetID == "" {
		return cluster.ErrConflict
	}

	if err := e.clusters.ClearPendingMerge(ctx, id); err != nil {
		return fmt.Errorf("clearing merge marker on %s: %w", id, err)
	}

	return e.appendLog(ctx, cluster.MergeLogEntry{
		Decision:        cluster.MergeManualDeclined,
		SourceClusterID: id,
		TargetClusterID: c.PendingMergeTargetID,
		Similarity:      c.PendingMergeScore,
	})
}

// eligibleEndDate walks processed dates backwards looking for one
// where, over the trailing lookback, fewer than the allowed ratio of
// clusters are still pending. Merging against a mostly-unreviewed
// cohort would consolidate clusters a human may yet reject.
func (e *Engine) eligibleEndDate(ctx context.Context) (time.Time, bool, error) {
	records, err := e.processing.Summary(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading processing summary: %w", err)
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}

	limit := e.walkDays
	for i, rec := range records {
		if i >= limit {
			break
		}
		date := rec.AnalysisInputDate
		from := date.AddDate(0, 0, -e.lookbackDays)

		all, err := e.clusters.FindByStatus(ctx, nil, from, date)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("checking merge eligibility for %s: %w", date.Format("2006-01-02"), err)
		}
		if len(all) == 0 {
			return date, true, nil
		}

		pending := 0
		for _, c := range all {
			if c.AcceptStatus.Pending() {
				pending++
			}
		}
		if float64(pending)/float64(len(all)) < e.maxPendingRatio {
			return date, true, nil
		}

		e.logger.Debug("merge window end not yet eligible",
			zap.String("date", date.Format("2006-01-02")),
			zap.Int("pending", pending),
			zap.Int("total", len(all)))
	}
	return time.Time{}, false, nil
}

// absorb moves the non-overlapping members of source onto target,
// deletes the source cluster, logs the decision and publishes the
// merged event.
func (e *Engine) absorb(ctx context.Context, source, target cluster.PersistedCluster, similarity float64, decision cluster.MergeDecision) error {
	onTarget := make(map[string]bool, len(target.CaseIDs))
	for _, id := range target.CaseIDs {
		onTarget[id] = true
	}
	var move []string
	for _, id := range source.CaseIDs {
		if !onTarget[id] {
			move = append(move, id)
		}
	}

	if err := e.clusters.AbsorbCluster(ctx, source.ID, target.ID, move); err != nil {
		return fmt.Errorf("absorbing cluster %s into %s: %w", source.ID, target.ID, err)
	}

	if err := e.appendLog(ctx, cluster.MergeLogEntry{
		Decision:        decision,
		SourceClusterID: source.ID,
		TargetClusterID: target.ID,
		Similarity:      similarity,
		SharedCases:     len(source.CaseIDs) - len(move),
		MovedCases:      len(move),
	}); err != nil {
		return err
	}

	e.logger.Info("merged cluster",
		zap.String("absorbed", source.ID),
		zap.String("survivor", target.ID),
		zap.Float64("similarity", similarity),
		zap.String("decision", string(decision)))

	e.publishMergeEvent(source.ID, target.ID, similarity, decision)
	return nil
}

func (e *Engine) appendLog(ctx context.Context, entry cluster.MergeLogEntry) error {
	entry.ID = uuid.New().String()
	entry.DecidedAt = time.Now()
	if err := e.log.Append(ctx, entry); err != nil {
		return fmt.Errorf("appending merge log entry: %w", err)
	}
	return nil
}

func (e *Engine) publishMergeEvent(sourceID, targetID string, similarity float64, decision cluster.MergeDecision) {
	if e.eventBus == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"absorbed_cluster_id": sourceID,
		"survivor_cluster_id": targetID,
		"similarity":          similarity,
		"decision":            decision,
	})
	if err != nil {
		e.logger.Error("failed to marshal merge event", zap.Error(err))
		return
	}

	if err := e.eventBus.Publish(e.topic+".merged", payload); err != nil {
		e.logger.Error("failed to publish merge event", zap.Error(err))
	}
}

// jaccard returns |intersection| / |union| of two ID sets and the
// intersection size.
func jaccard(a, b []string) (float64, int) {
	setA := make(map[string]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}

	shared := 0
	seenB := make(map[string]bool, len(b))
	for _, id := range b {
		if seenB[id] {
			continue
		}
		seenB[id] = true
		if setA[id] {
			shared++
		}
	}

	union := len(setA) + len(seenB) - shared
	if union == 0 {
		return 0, 0
	}
	return float64(shared) / float64(union), shared
}
