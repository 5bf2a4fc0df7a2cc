// internal/service/dateselect/selector_test.go

package dateselect

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
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func geocodedCase(id, date string) caserecord.Case {
	lat, lon := 23.02, 72.57
	return caserecord.Case{
		ID:        id,
		Syndrome:  "AES",
		EntryDate: day(date),
		Latitude:  &lat,
		Longitude: &lon,
	}
}

func rawCase(id, date string) caserecord.Case {
	return caserecord.Case{ID: id, Syndrome: "AES", EntryDate: day(date)}
}

func newSelector(cases *memory.CaseStore, processing *memory.ProcessingStore) *Selector {
	return NewSelector(cases, processing, 90.0, 15, zap.NewNop())
}

func TestSelectorNext(t *testing.T) {
	ctx := context.Background()

	t.Run("picks most recent unprocessed covered date", func(t *testing.T) {
		cases := memory.NewCaseStore()
		cases.Add(geocodedCase("c1", "2025-06-10"), geocodedCase("c2", "2025-06-10"))
		processing := memory.NewProcessingStore()

		date, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day("2025-06-10"), date)
	})

	t.Run("skips processed dates", func(t *testing.T) {
		cases := memory.NewCaseStore()
		cases.Add(geocodedCase("c1", "2025-06-10"), geocodedCase("c2", "2025-06-09"))
		processing := memory.NewProcessingStore()
		require.NoError(t, processing.Record(ctx, cluster.ProcessingRecord{AnalysisInputDate: day("2025-06-10")}))

		date, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day("2025-06-09"), date)
	})

	t.Run("skips dates below coverage threshold", func(t *testing.T) {
		cases := memory.NewCaseStore()
		// 2025-06-10: one of two geocoded, 50% coverage.
		cases.Add(geocodedCase("c1", "2025-06-10"), rawCase("c2", "2025-06-10"))
		cases.Add(geocodedCase("c3", "2025-06-09"))
		processing := memory.NewProcessingStore()

		date, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day("2025-06-09"), date)
	})

	t.Run("empty dates count as zero coverage", func(t *testing.T) {
		cases := memory.NewCaseStore()
		// Nothing on 2025-06-10; the most recent case is 2025-06-08.
		cases.Add(geocodedCase("c1", "2025-06-08"))
		processing := memory.NewProcessingStore()

		date, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day("2025-06-08"), date)
	})

	t.Run("stops at floor", func(t *testing.T) {
		cases := memory.NewCaseStore()
		// Only covered date is 16 days behind the max date, past the
		// 15-day floor.
		cases.Add(rawCase("c1", "2025-06-20"))
		cases.Add(geocodedCase("c2", "2025-06-04"))
		processing := memory.NewProcessingStore()

		_, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("floor date itself is still eligible", func(t *testing.T) {
		cases := memory.NewCaseStore()
		cases.Add(rawCase("c1", "2025-06-20"))
		cases.Add(geocodedCase("c2", "2025-06-05"))
		processing := memory.NewProcessingStore()

		date, ok, err := newSelector(cases, processing).Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day("2025-06-05"), date)
	})

	t.Run("no cases at all", func(t *testing.T) {
		_, ok, err := newSelector(memory.NewCaseStore(), memory.NewProcessingStore()).Next(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
