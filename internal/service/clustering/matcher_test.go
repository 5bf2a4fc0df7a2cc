// internal/service/clustering/matcher_test.go

package clustering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/adapter/memory"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/geo"
)

func TestMatcher(t *testing.T) {
	ctx := context.Background()
	analysisDate := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)

	base := geo.Point{Latitude: 23.0, Longitude: 72.5}

	// offsetMeters shifts a point north by approximately the given
	// number of meters.
	offsetMeters := func(p geo.Point, meters float64) geo.Point {
		return geo.Point{Latitude: p.Latitude + meters/111320.0, Longitude: p.Longitude}
	}

	accepted := func(id string, centroid geo.Point, daysAgo int) cluster.PersistedCluster {
		return cluster.PersistedCluster{
			ID:                id,
			Algorithm:         cluster.AlgorithmGIS,
			Syndrome:          "Fever",
			AcceptStatus:      cluster.StatusAccepted,
			AnalysisInputDate: analysisDate.AddDate(0, 0, -daysAgo),
			Centroid:          &centroid,
		}
	}

	newRaw := func(centroid geo.Point) cluster.RawCluster {
		return cluster.RawCluster{
			Algorithm: cluster.AlgorithmGIS,
			Syndrome:  "Fever",
			Centroid:  &centroid,
		}
	}

	newMatcher := func(store cluster.Store) *Matcher {
		return NewMatcher(store, 14, 50, 150, zap.NewNop())
	}

	t.Run("no history yields pending new", func(t *testing.T) {
		store := memory.NewClusterStore()
		outcome, err := newMatcher(store).Match(ctx, newRaw(base), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingNew, outcome.Status)
		assert.Empty(t, outcome.MatchedClusterID)
		assert.Equal(t, 5.0, outcome.Confidence)
	})

	t.Run("same centroid is accepted as continuation", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("h1", base, 3)}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(base), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusAccepted, outcome.Status)
		assert.Equal(t, "h1", outcome.MatchedClusterID)
		assert.Equal(t, 95.0, outcome.Confidence)
	})

	t.Run("mid-band distance is pending merge", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("h1", base, 3)}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(offsetMeters(base, 100)), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingMerge, outcome.Status)
		assert.Equal(t, "h1", outcome.MatchedClusterID)
		// 100 m sits halfway through the 50-150 band: 50 -> 10 gives 30.
		assert.InDelta(t, 30.0, outcome.Confidence, 1.0)
	})

	t.Run("distant candidate is pending new", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("h1", base, 3)}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(offsetMeters(base, 200)), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingNew, outcome.Status)
		assert.Equal(t, 5.0, outcome.Confidence)
		// The ranked candidate list is still retained for review.
		require.NotEmpty(t, outcome.Candidates)
		assert.Equal(t, "h1", outcome.Candidates[0].ClusterID)
	})

	t.Run("nearest candidate wins", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{
			accepted("far", offsetMeters(base, 120), 3),
			accepted("near", offsetMeters(base, 20), 5),
		}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(base), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, "near", outcome.MatchedClusterID)
		assert.Equal(t, cluster.StatusAccepted, outcome.Status)
		require.Len(t, outcome.Candidates, 2)
		assert.Equal(t, "near", outcome.Candidates[0].ClusterID)
	})

	t.Run("history outside lookback is ignored", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("old", base, 15)}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(base), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingNew, outcome.Status)
		assert.Empty(t, outcome.MatchedClusterID)
	})

	t.Run("different syndrome never matches", func(t *testing.T) {
		store := memory.NewClusterStore()
		h := accepted("h1", base, 3)
		h.Syndrome = "Cholera"
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{h}))

		outcome, err := newMatcher(store).Match(ctx, newRaw(base), analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingNew, outcome.Status)
		assert.Empty(t, outcome.MatchedClusterID)
	})

	t.Run("cluster without centroid cannot match", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("h1", base, 3)}))

		raw := cluster.RawCluster{Algorithm: cluster.AlgorithmGIS, Syndrome: "Fever"}
		outcome, err := newMatcher(store).Match(ctx, raw, analysisDate)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPendingNew, outcome.Status)
	})

	t.Run("confidence decreases with distance", func(t *testing.T) {
		store := memory.NewClusterStore()
		require.NoError(t, store.SaveClusters(ctx, []cluster.PersistedCluster{accepted("h1", base, 3)}))
		m := newMatcher(store)

		prev := 100.0
		for _, meters := range []float64{0, 25, 50, 100, 150, 300} {
			outcome, err := m.Match(ctx, newRaw(offsetMeters(base, meters)), analysisDate)
			require.NoError(t, err)
			assert.LessOrEqual(t, outcome.Confidence, prev, "distance %v", meters)
			prev = outcome.Confidence
		}
	})
}
