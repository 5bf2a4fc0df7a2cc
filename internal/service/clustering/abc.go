// internal/service/clustering/abc.go

package clustering

import (
	"sort"

	"go.uber.org/zap"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/geo"
)

// AreaClusterer groups rural cases by their administrative village
type AreaClusterer struct {
	minSize int
	logger  *zap.Logger
}

// NewAreaClusterer creates an area-based clusterer
func NewAreaClusterer(minSize int, logger *zap.Logger) *AreaClusterer {
	return &AreaClusterer{
		minSize: minSize,
		logger:  logger,
	}
}

// Cluster groups rural cases by (state, district, sub-district,
// village) and syndrome. Groups meeting the minimum size become raw
// clusters. Two villages are never mixed no matter how close their
// coordinates are; there is no distance ceiling within a village.
// Members without coordinates count toward cluster size but not the
// centroid.
func (a *AreaClusterer) Cluster(cases []caserecord.Case) []cluster.RawCluster {
	type groupKey struct {
		loc      cluster.LocationTuple
		syndrome string
	}

	groups := make(map[groupKey][]caserecord.Case)
	var order []groupKey

	for _, c := range cases {
		if c.AreaType != caserecord.AreaRural {
			continue
		}
		if c.Village == "" {
			a.logger.Debug("skipping rural case without village", zap.String("case_id", c.ID))
			continue
		}
		key := groupKey{
			loc: cluster.LocationTuple{
				State:       c.State,
				District:    c.District,
				SubDistrict: c.SubDistrict,
				Village:     c.Village,
			},
			syndrome: c.Syndrome,
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	// Deterministic output order regardless of map iteration.
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].loc != order[j].loc {
			return less(order[i].loc, order[j].loc)
		}
		return order[i].syndrome < order[j].syndrome
	})

	var out []cluster.RawCluster
	for _, key := range order {
		members := groups[key]
		if len(members) < a.minSize {
			continue
		}

		var points []geo.Point
		for _, m := range members {
			if !m.Geocoded() {
				continue
			}
			if !geo.Valid(*m.Latitude, *m.Longitude) {
				a.logger.Warn("excluding invalid coordinates from centroid",
					zap.String("case_id", m.ID),
					zap.Float64("latitude", *m.Latitude),
					zap.Float64("longitude", *m.Longitude))
				continue
			}
			points = append(points, geo.Point{Latitude: *m.Latitude, Longitude: *m.Longitude})
		}

		rc := cluster.RawCluster{
			Algorithm: cluster.AlgorithmABC,
			Syndrome:  key.syndrome,
			Location:  key.loc,
			Members:   members,
		}
		if centroid, ok := geo.Centroid(points); ok {
			rc.Centroid = &centroid
			rc.RadiusMeters = geo.RadiusPercentile(centroid, points, 95)
		}
		out = append(out, rc)
	}

	return out
}

func less(a, b cluster.LocationTuple) bool {
	if a.State != b.State {
		return a.State < b.State
	}
	if a.District != b.District {
		return a.District < b.District
	}
	if a.SubDistrict != b.SubDistrict {
		return a.SubDistrict < b.SubDistrict
	}
	return a.Village < b.Village
}
