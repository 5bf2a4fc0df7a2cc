// internal/geo/geo_test.go

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		p := Point{Latitude: 23.0225, Longitude: 72.5714}
		assert.Equal(t, 0.0, Distance(p, p))
	})

	t.Run("known distance between cities", func(t *testing.T) {
		// Ahmedabad to Gandhinagar, roughly 25 km.
		a := Point{Latitude: 23.0225, Longitude: 72.5714}
		b := Point{Latitude: 23.2156, Longitude: 72.6369}
		d := Distance(a, b)
		assert.InDelta(t, 22400, d, 1500)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Point{Latitude: 12.9716, Longitude: 77.5946}
		b := Point{Latitude: 13.0827, Longitude: 80.2707}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	})

	t.Run("small offsets resolve to meters", func(t *testing.T) {
		// ~0.0005 degrees of latitude is about 55 m.
		a := Point{Latitude: 23.0000, Longitude: 72.5000}
		b := Point{Latitude: 23.0005, Longitude: 72.5000}
		assert.InDelta(t, 55.6, Distance(a, b), 1.0)
	})
}

func TestCentroid(t *testing.T) {
	t.Run("empty set", func(t *testing.T) {
		_, ok := Centroid(nil)
		assert.False(t, ok)
	})

	t.Run("single point", func(t *testing.T) {
		c, ok := Centroid([]Point{{Latitude: 23.5, Longitude: 72.5}})
		require.True(t, ok)
		assert.InDelta(t, 23.5, c.Latitude, 1e-9)
		assert.InDelta(t, 72.5, c.Longitude, 1e-9)
	})

	t.Run("midpoint of close pair", func(t *testing.T) {
		c, ok := Centroid([]Point{
			{Latitude: 23.00, Longitude: 72.50},
			{Latitude: 23.02, Longitude: 72.52},
		})
		require.True(t, ok)
		assert.InDelta(t, 23.01, c.Latitude, 1e-4)
		assert.InDelta(t, 72.51, c.Longitude, 1e-4)
	})

	t.Run("antimeridian pair does not average to zero", func(t *testing.T) {
		c, ok := Centroid([]Point{
			{Latitude: 0, Longitude: 179.9},
			{Latitude: 0, Longitude: -179.9},
		})
		require.True(t, ok)
		// Geodesic centroid sits on the antimeridian, not at lon 0.
		assert.Greater(t, math.Abs(c.Longitude), 179.0)
	})
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(23.02, 72.57))
	assert.True(t, Valid(-89.9, 179.9))
	assert.False(t, Valid(0, 0))
	assert.False(t, Valid(91, 10))
	assert.False(t, Valid(-91, 10))
	assert.False(t, Valid(10, 181))
	assert.False(t, Valid(10, -181))
	assert.False(t, Valid(math.NaN(), 10))
}

func TestRadiusPercentile(t *testing.T) {
	centroid := Point{Latitude: 23.0, Longitude: 72.5}

	t.Run("empty set", func(t *testing.T) {
		assert.Equal(t, 0.0, RadiusPercentile(centroid, nil, 95))
	})

	t.Run("percentile excludes extreme outlier", func(t *testing.T) {
		points := make([]Point, 0, 21)
		for i := 0; i < 20; i++ {
			// All within ~55 m of the centroid.
			points = append(points, Point{Latitude: 23.0 + float64(i)*0.000025, Longitude: 72.5})
		}
		// One outlier roughly 11 km out.
		points = append(points, Point{Latitude: 23.1, Longitude: 72.5})

		p95 := RadiusPercentile(centroid, points, 95)
		max := RadiusPercentile(centroid, points, 100)
		assert.Less(t, p95, 1000.0)
		assert.Greater(t, max, 10000.0)
	})
}
