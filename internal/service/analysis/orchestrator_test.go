// internal/service/analysis/orchestrator_test.go

package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/adapter/memory"
	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/service/clustering"
	"sentinel/internal/service/dateselect"
)

type fixture struct {
	cases      *memory.CaseStore
	clusters   *memory.ClusterStore
	processing *memory.ProcessingStore
	orch       *Orchestrator
}

func newFixture() *fixture {
	logger := zap.NewNop()
	cases := memory.NewCaseStore()
	clusters := memory.NewClusterStore()
	processing := memory.NewProcessingStore()

	selector := dateselect.NewSelector(cases, processing, 90.0, 15, logger)
	sweeper := NewSweeper(clusters, 3, logger)
	area := clustering.NewAreaClusterer(2, logger)
	spatial := clustering.NewSpatialClusterer(350, 2, logger)
	matcher := clustering.NewMatcher(clusters, 14, 50, 150, logger)

	orch := NewOrchestrator(selector, sweeper, area, spatial, matcher,
		cases, clusters, processing, nil, "cluster", 7, logger)

	return &fixture{cases: cases, clusters: clusters, processing: processing, orch: orch}
}

func entryCase(id, date, village, syndrome string, lat, lon float64) caserecord.Case {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return caserecord.Case{
		ID:          id,
		Syndrome:    syndrome,
		State:       "Gujarat",
		District:    "Anand",
		SubDistrict: "Petlad",
		Village:     village,
		AreaType:    caserecord.AreaRural,
		Latitude:    &lat,
		Longitude:   &lon,
		EntryDate:   d,
	}
}

func TestOrchestratorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("two village cases form one cluster", func(t *testing.T) {
		f := newFixture()
		// Window cases the day before the analysis date, plus a
		// geocoded case on the analysis date itself for eligibility.
		f.cases.Add(
			entryCase("c1", "2025-06-09", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-09", "Aloka", "Fever", 23.02, 72.52),
			entryCase("c3", "2025-06-10", "Beyla", "Fever", 23.50, 72.90),
		)

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, res.Status)
		assert.Equal(t, 1, res.TotalClusters)
		assert.Equal(t, 2, res.TotalCases)
		require.NotNil(t, res.AnalysisInputDate)
		assert.Equal(t, "2025-06-10", res.AnalysisInputDate.Format("2006-01-02"))

		abc := res.Algorithms[cluster.AlgorithmABC]
		assert.Equal(t, 1, abc.Clusters)
		assert.Equal(t, 1, abc.CountsByStatus[cluster.StatusPendingNew])
	})

	t.Run("analysis date itself is excluded from the window", func(t *testing.T) {
		f := newFixture()
		// Both clusterable cases sit on the analysis date; the window
		// is empty so no clusters form.
		f.cases.Add(
			entryCase("c1", "2025-06-10", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-10", "Aloka", "Fever", 23.02, 72.52),
		)

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, res.Status)
		assert.Equal(t, 0, res.TotalClusters)
	})

	t.Run("no eligible date yields no_data", func(t *testing.T) {
		f := newFixture()

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, cluster.RunNoData, res.Status)
	})

	t.Run("processed date is not rerun", func(t *testing.T) {
		f := newFixture()
		f.cases.Add(
			entryCase("c1", "2025-06-09", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-09", "Aloka", "Fever", 23.02, 72.52),
			entryCase("c3", "2025-06-10", "Beyla", "Fever", 23.50, 72.90),
		)

		first, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, first.Status)

		// The second run walks back to 2025-06-09 and analyzes it; the
		// 06-10 result is not recomputed.
		second, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, second.Status)
		require.NotNil(t, second.AnalysisInputDate)
		assert.Equal(t, "2025-06-09", second.AnalysisInputDate.Format("2006-01-02"))
	})

	t.Run("reprocessing later dates leaves earlier clusters intact", func(t *testing.T) {
		f := newFixture()
		f.cases.Add(
			entryCase("c1", "2025-06-08", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-08", "Aloka", "Fever", 23.02, 72.52),
			entryCase("c3", "2025-06-09", "Beyla", "Fever", 23.50, 72.90),
		)

		first, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, first.Status)
		require.Equal(t, 1, first.TotalClusters)

		firstResults, err := f.clusters.ResultsForDate(ctx, *first.AnalysisInputDate)
		require.NoError(t, err)
		firstID := firstResults[0].ClusterID

		// A third identical case arrives the next day; the next run
		// covers a different date and must not grow the first cluster.
		f.cases.Add(entryCase("c4", "2025-06-10", "Aloka", "Fever", 23.015, 72.515))

		_, err = f.orch.Run(ctx)
		require.NoError(t, err)

		got, err := f.clusters.GetCluster(ctx, firstID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.CaseCount)
	})

	t.Run("pending cluster in window blocks the run", func(t *testing.T) {
		f := newFixture()
		f.cases.Add(
			entryCase("c1", "2025-06-09", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-10", "Beyla", "Fever", 23.50, 72.90),
		)
		require.NoError(t, f.clusters.SaveClusters(ctx, []cluster.PersistedCluster{{
			ID:                "ABC_X_08JUN2025_FVR_001",
			Algorithm:         cluster.AlgorithmABC,
			Syndrome:          "Fever",
			AcceptStatus:      cluster.StatusPendingNew,
			AnalysisInputDate: time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC),
			CaseIDs:           []string{"x1"},
			CaseCount:         1,
		}}))

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunBlocked, res.Status)
		require.NotNil(t, res.BlockingDate)
		assert.Equal(t, "2025-06-08", res.BlockingDate.Format("2006-01-02"))
	})

	t.Run("sweep unblocks expired pending clusters", func(t *testing.T) {
		f := newFixture()
		f.cases.Add(
			entryCase("c1", "2025-06-09", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-09", "Aloka", "Fever", 23.02, 72.52),
			entryCase("c3", "2025-06-10", "Beyla", "Fever", 23.50, 72.90),
		)
		// Pending but already past the 3-day review timeout.
		require.NoError(t, f.clusters.SaveClusters(ctx, []cluster.PersistedCluster{{
			ID:                "ABC_X_07JUN2025_FVR_001",
			Algorithm:         cluster.AlgorithmABC,
			Syndrome:          "Fever",
			AcceptStatus:      cluster.StatusPendingMerge,
			AnalysisInputDate: time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC),
			CaseIDs:           []string{"x1"},
			CaseCount:         1,
		}}))

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, cluster.RunSuccess, res.Status)

		swept, err := f.clusters.GetCluster(ctx, "ABC_X_07JUN2025_FVR_001")
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusAccepted, swept.AcceptStatus)
	})

	t.Run("per-case results are persisted", func(t *testing.T) {
		f := newFixture()
		f.cases.Add(
			entryCase("c1", "2025-06-09", "Aloka", "Fever", 23.01, 72.51),
			entryCase("c2", "2025-06-09", "Aloka", "Fever", 23.02, 72.52),
			entryCase("c3", "2025-06-10", "Beyla", "Fever", 23.50, 72.90),
		)

		res, err := f.orch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, cluster.RunSuccess, res.Status)

		results, err := f.clusters.ResultsForDate(ctx, *res.AnalysisInputDate)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, results[0].ClusterID, results[1].ClusterID)
		assert.Equal(t, cluster.StatusPendingNew, results[0].AcceptStatus)
	})
}

func TestOrchestratorReview(t *testing.T) {
	ctx := context.Background()

	seed := func(f *fixture, status cluster.AcceptStatus) {
		require.NoError(t, f.clusters.SaveClusters(ctx, []cluster.PersistedCluster{{
			ID:                "ABC_GAPA_09JUN2025_FVR_001",
			Algorithm:         cluster.AlgorithmABC,
			Syndrome:          "Fever",
			AcceptStatus:      status,
			AnalysisInputDate: time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
			CaseIDs:           []string{"c1", "c2"},
			CaseCount:         2,
		}}))
	}

	t.Run("accept a pending cluster", func(t *testing.T) {
		f := newFixture()
		seed(f, cluster.StatusPendingNew)

		require.NoError(t, f.orch.Review(ctx, "ABC_GAPA_09JUN2025_FVR_001", cluster.StatusAccepted))

		got, err := f.clusters.GetCluster(ctx, "ABC_GAPA_09JUN2025_FVR_001")
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusAccepted, got.AcceptStatus)
	})

	t.Run("reject a pending cluster", func(t *testing.T) {
		f := newFixture()
		seed(f, cluster.StatusPendingMerge)

		require.NoError(t, f.orch.Review(ctx, "ABC_GAPA_09JUN2025_FVR_001", cluster.StatusRejected))

		got, err := f.clusters.GetCluster(ctx, "ABC_GAPA_09JUN2025_FVR_001")
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusRejected, got.AcceptStatus)
	})

	t.Run("non-pending cluster conflicts", func(t *testing.T) {
		f := newFixture()
		seed(f, cluster.StatusAccepted)

		err := f.orch.Review(ctx, "ABC_GAPA_09JUN2025_FVR_001", cluster.StatusRejected)
		assert.ErrorIs(t, err, cluster.ErrConflict)
	})

	t.Run("invalid decision rejected", func(t *testing.T) {
		f := newFixture()
		seed(f, cluster.StatusPendingNew)

		err := f.orch.Review(ctx, "ABC_GAPA_09JUN2025_FVR_001", cluster.StatusPendingMerge)
		assert.Error(t, err)
	})
}
