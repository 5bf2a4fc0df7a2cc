// internal/geo/geo.go

// Package geo provides the geodesic primitives used by the clustering
// algorithms: great-circle distance, spherical centroid and coordinate
// validation.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance calculates the Haversine great-circle distance between two
// points, in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Centroid calculates the geodesic centroid of a set of points by
// averaging their 3-D unit vectors. This stays correct near the
// antimeridian where a naive lat/lon mean would not. Returns false when
// the set is empty.
func Centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}

	var x, y, z float64
	for _, p := range points {
		lat := p.Latitude * math.Pi / 180
		lon := p.Longitude * math.Pi / 180
		x += math.Cos(lat) * math.Cos(lon)
		y += math.Cos(lat) * math.Sin(lon)
		z += math.Sin(lat)
	}

	n := float64(len(points))
	x /= n
	y /= n
	z /= n

	lon := math.Atan2(y, x)
	hyp := math.Sqrt(x*x + y*y)
	lat := math.Atan2(z, hyp)

	return Point{
		Latitude:  lat * 180 / math.Pi,
		Longitude: lon * 180 / math.Pi,
	}, true
}

// Valid reports whether a coordinate pair is usable: latitude within
// [-90, 90], longitude within [-180, 180], and not the 0/0 null-island
// placeholder emitted by failed geocoding.
func Valid(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// RadiusPercentile returns the p-th percentile (0-100) of member
// distances from the centroid, in meters. Used as the reported radius
// of a spatial cluster so a single outlier does not inflate it.
func RadiusPercentile(centroid Point, points []Point, p float64) float64 {
	if len(points) == 0 {
		return 0
	}

	distances := make([]float64, len(points))
	for i, pt := range points {
		distances[i] = Distance(centroid, pt)
	}
	sort.Float64s(distances)

	if p <= 0 {
		return distances[0]
	}
	if p >= 100 {
		return distances[len(distances)-1]
	}

	rank := p / 100 * float64(len(distances)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return distances[lower]
	}
	frac := rank - float64(lower)
	return distances[lower] + frac*(distances[upper]-distances[lower])
}
