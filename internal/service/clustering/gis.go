// internal/service/clustering/gis.go

package clustering

import (
	"sort"

	"go.uber.org/zap"

	"sentinel/internal/domain/caserecord"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/geo"
)

// SpatialClusterer performs density-based clustering of urban cases
type SpatialClusterer struct {
	epsilonMeters float64
	minPoints     int
	logger        *zap.Logger
}

// NewSpatialClusterer creates a density-based spatial clusterer
func NewSpatialClusterer(epsilonMeters float64, minPoints int, logger *zap.Logger) *SpatialClusterer {
	return &SpatialClusterer{
		epsilonMeters: epsilonMeters,
		minPoints:     minPoints,
		logger:        logger,
	}
}

// Cluster runs DBSCAN with a Haversine metric over the geocoded urban
// cases of each syndrome separately. A case is a core point when at
// least minPoints cases (itself included) lie within epsilon of it;
// clusters are the connected components of core points, with border
// points attached to their first core neighbor in ingestion order.
// Noise points and cases with invalid coordinates are excluded.
func (s *SpatialClusterer) Cluster(cases []caserecord.Case) []cluster.RawCluster {
	bySyndrome := make(map[string][]caserecord.Case)
	var syndromes []string

	for _, c := range cases {
		if c.AreaType != caserecord.AreaUrban {
			continue
		}
		if !c.Geocoded() {
			continue
		}
		if !geo.Valid(*c.Latitude, *c.Longitude) {
			s.logger.Warn("excluding urban case with invalid coordinates",
				zap.String("case_id", c.ID),
				zap.Float64("latitude", *c.Latitude),
				zap.Float64("longitude", *c.Longitude))
			continue
		}
		if _, seen := bySyndrome[c.Syndrome]; !seen {
			syndromes = append(syndromes, c.Syndrome)
		}
		bySyndrome[c.Syndrome] = append(bySyndrome[c.Syndrome], c)
	}

	sort.Strings(syndromes)

	var out []cluster.RawCluster
	for _, syndrome := range syndromes {
		out = append(out, s.clusterSyndrome(syndrome, bySyndrome[syndrome])...)
	}
	return out
}

func (s *SpatialClusterer) clusterSyndrome(syndrome string, cases []caserecord.Case) []cluster.RawCluster {
	n := len(cases)
	if n == 0 {
		return nil
	}

	points := make([]geo.Point, n)
	for i, c := range cases {
		points[i] = geo.Point{Latitude: *c.Latitude, Longitude: *c.Longitude}
	}

	// Neighbor graph over the epsilon radius. O(n^2) pairwise
	// distances; daily urban case volumes stay well within this.
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if geo.Distance(points[i], points[j]) <= s.epsilonMeters {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	core := make([]bool, n)
	for i := 0; i < n; i++ {
		// The point itself counts toward density.
		core[i] = len(neighbors[i])+1 >= s.minPoints
	}

	// Connected components over core points.
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for i := 0; i < n; i++ {
		if !core[i] || labels[i] != -1 {
			continue
		}
		labels[i] = next
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range neighbors[cur] {
				if core[nb] && labels[nb] == -1 {
					labels[nb] = next
					queue = append(queue, nb)
				}
			}
		}
		next++
	}

	// Border points join the cluster of their first core neighbor in
	// ingestion order; points with no core neighbor stay noise.
	for i := 0; i < n; i++ {
		if core[i] || labels[i] != -1 {
			continue
		}
		for _, nb := range neighbors[i] {
			if core[nb] {
				labels[i] = labels[nb]
				break
			}
		}
	}

	grouped := make([][]int, next)
	for i := 0; i < n; i++ {
		if labels[i] >= 0 {
			grouped[labels[i]] = append(grouped[labels[i]], i)
		}
	}

	var out []cluster.RawCluster
	for _, idxs := range grouped {
		if len(idxs) < s.minPoints {
			continue
		}

		members := make([]caserecord.Case, len(idxs))
		memberPoints := make([]geo.Point, len(idxs))
		for i, idx := range idxs {
			members[i] = cases[idx]
			memberPoints[i] = points[idx]
		}

		rc := cluster.RawCluster{
			Algorithm: cluster.AlgorithmGIS,
			Syndrome:  syndrome,
			Location:  majorityLocation(members),
			Members:   members,
		}
		if centroid, ok := geo.Centroid(memberPoints); ok {
			rc.Centroid = &centroid
			rc.RadiusMeters = geo.RadiusPercentile(centroid, memberPoints, 95)
		}
		out = append(out, rc)
	}
	return out
}

// majorityLocation derives a cluster's administrative tuple from its
// members: the most frequent value per level, ties going to the value
// seen first in ingestion order.
func majorityLocation(members []caserecord.Case) cluster.LocationTuple {
	pick := func(values []string) string {
		counts := make(map[string]int)
		var order []string
		for _, v := range values {
			if v == "" {
				continue
			}
			if counts[v] == 0 {
				order = append(order, v)
			}
			counts[v]++
		}
		best := ""
		bestCount := 0
		for _, v := range order {
			if counts[v] > bestCount {
				best = v
				bestCount = counts[v]
			}
		}
		return best
	}

	states := make([]string, len(members))
	districts := make([]string, len(members))
	subDistricts := make([]string, len(members))
	villages := make([]string, len(members))
	for i, m := range members {
		states[i] = m.State
		districts[i] = m.District
		subDistricts[i] = m.SubDistrict
		villages[i] = m.Village
	}

	return cluster.LocationTuple{
		State:       pick(states),
		District:    pick(districts),
		SubDistrict: pick(subDistricts),
		Village:     pick(villages),
	}
}
