package geospatial

import (
	"github.com/golang/geo/s2"

	"github.com/doteapp/dote/internal/core/domain"
)

// EarthRadiusKm is the mean Earth radius used for all distances.
const EarthRadiusKm = 6371.0

// HaversineDistanceKm returns the great-circle distance between two
// coordinates in kilometres.
func HaversineDistanceKm(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// PathLengthKm sums the haversine legs of an ordered path.
func PathLengthKm(points []domain.Coordinate) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineDistanceKm(points[i-1], points[i])
	}
	return total
}
