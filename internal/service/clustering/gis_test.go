// internal/service/clustering/gis_test.go

package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
)

func urbanCase(id, syndrome string, lat, lon float64) caserecord.Case {
	return caserecord.Case{
		ID:          id,
		Syndrome:    syndrome,
		State:       "Gujarat",
		District:    "Ahmedabad",
		SubDistrict: "City",
		Village:     "Navrangpura",
		AreaType:    caserecord.AreaUrban,
		Latitude:    &lat,
		Longitude:   &lon,
	}
}

func TestSpatialClusterer(t *testing.T) {
	// 350 m epsilon, minimum 2 points. One degree of latitude is about
	// 111 km, so 0.003 degrees is roughly 330 m and 0.03 is 3.3 km.
	clusterer := NewSpatialClusterer(350, 2, zap.NewNop())

	t.Run("dense points form one cluster", func(t *testing.T) {
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0020, 72.5000),
			urbanCase("c3", "Fever", 23.0040, 72.5000),
		})
		require.Len(t, out, 1)
		assert.Equal(t, cluster.AlgorithmGIS, out[0].Algorithm)
		assert.Equal(t, 3, out[0].CaseCount())
	})

	t.Run("chain connectivity joins points beyond epsilon", func(t *testing.T) {
		// c1 and c3 are ~660 m apart but both within epsilon of c2.
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0030, 72.5000),
			urbanCase("c3", "Fever", 23.0060, 72.5000),
		})
		require.Len(t, out, 1)
		assert.Equal(t, 3, out[0].CaseCount())
	})

	t.Run("isolated point is noise", func(t *testing.T) {
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0020, 72.5000),
			urbanCase("c3", "Fever", 23.0300, 72.5000),
		})
		require.Len(t, out, 1)
		assert.Equal(t, 2, out[0].CaseCount())
		assert.NotContains(t, out[0].MemberIDs(), "c3")
	})

	t.Run("far groups form separate clusters", func(t *testing.T) {
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0020, 72.5000),
			urbanCase("c3", "Fever", 23.0300, 72.5000),
			urbanCase("c4", "Fever", 23.0320, 72.5000),
		})
		assert.Len(t, out, 2)
	})

	t.Run("syndromes never mix", func(t *testing.T) {
		// Co-located cases of different syndromes cluster separately.
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0010, 72.5000),
			urbanCase("c3", "Cholera", 23.0000, 72.5000),
			urbanCase("c4", "Cholera", 23.0010, 72.5000),
		})
		require.Len(t, out, 2)
		assert.NotEqual(t, out[0].Syndrome, out[1].Syndrome)
	})

	t.Run("rural and non-geocoded cases are excluded", func(t *testing.T) {
		rural := urbanCase("c1", "Fever", 23.0000, 72.5000)
		rural.AreaType = caserecord.AreaRural
		noGeo := caserecord.Case{ID: "c2", Syndrome: "Fever", AreaType: caserecord.AreaUrban}

		out := clusterer.Cluster([]caserecord.Case{
			rural,
			noGeo,
			urbanCase("c3", "Fever", 23.0000, 72.5000),
		})
		assert.Empty(t, out)
	})

	t.Run("majority location with tie broken by ingestion order", func(t *testing.T) {
		a := urbanCase("c1", "Fever", 23.0000, 72.5000)
		a.Village = "Navrangpura"
		b := urbanCase("c2", "Fever", 23.0010, 72.5000)
		b.Village = "Paldi"
		c := urbanCase("c3", "Fever", 23.0020, 72.5000)
		c.Village = "Paldi"

		out := clusterer.Cluster([]caserecord.Case{a, b, c})
		require.Len(t, out, 1)
		assert.Equal(t, "Paldi", out[0].Location.Village)

		// With counts tied, the first member's value wins.
		out = clusterer.Cluster([]caserecord.Case{a, b})
		require.Len(t, out, 1)
		assert.Equal(t, "Navrangpura", out[0].Location.Village)
	})

	t.Run("centroid and radius are populated", func(t *testing.T) {
		out := clusterer.Cluster([]caserecord.Case{
			urbanCase("c1", "Fever", 23.0000, 72.5000),
			urbanCase("c2", "Fever", 23.0020, 72.5000),
		})
		require.Len(t, out, 1)
		require.NotNil(t, out[0].Centroid)
		assert.InDelta(t, 23.0010, out[0].Centroid.Latitude, 1e-4)
		assert.Greater(t, out[0].RadiusMeters, 0.0)
	})
}
