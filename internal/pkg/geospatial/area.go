package geospatial

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/doteapp/dote/internal/core/domain"
)

// LatDegKm is the length of one degree of latitude in kilometres.
const LatDegKm = 111.32

// PlanarPolygonAreaKm2 approximates the area of a small polygon.
//
// The shoelace formula runs on (longitude, latitude) degrees and the result
// is scaled by LatDegKm for latitude and LatDegKm*cos(meanLat) for longitude,
// meanLat being the arithmetic mean latitude of the vertices. The
// approximation only holds for city-block to few-km polygons; it breaks down
// near the poles and for polygons spanning large longitude ranges.
func PlanarPolygonAreaKm2(p domain.Polygon) float64 {
	if len(p) < 3 {
		return 0
	}
	pts := make([]orb.Point, len(p))
	for i, c := range p {
		pts[i] = orb.Point{c.Longitude, c.Latitude}
	}
	signed, meanLat := shoelace(pts)
	return math.Abs(signed) * degreeAreaKm2(meanLat)
}

// RingAreaKm2 is PlanarPolygonAreaKm2 for a closed orb ring.
func RingAreaKm2(r orb.Ring) float64 {
	pts := openRing(r)
	if len(pts) < 3 {
		return 0
	}
	signed, meanLat := shoelace(pts)
	return math.Abs(signed) * degreeAreaKm2(meanLat)
}

// TerritoryAreaKm2 is the canonical territory size: for each polygon the
// shell area minus its holes, all rings scaled with the shell's mean
// latitude.
func TerritoryAreaKm2(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		total += polygonAreaKm2(poly)
	}
	return total
}

func polygonAreaKm2(poly orb.Polygon) float64 {
	if len(poly) == 0 {
		return 0
	}
	shell := openRing(poly[0])
	if len(shell) < 3 {
		return 0
	}
	signed, meanLat := shoelace(shell)
	deg2 := math.Abs(signed)
	for _, hole := range poly[1:] {
		pts := openRing(hole)
		if len(pts) < 3 {
			continue
		}
		h, _ := shoelace(pts)
		deg2 -= math.Abs(h)
	}
	if deg2 < 0 {
		deg2 = 0
	}
	return deg2 * degreeAreaKm2(meanLat)
}

// shoelace returns the signed area in square degrees (positive when
// counter-clockwise) and the mean latitude of an open point list.
// Coordinates are shifted to the first vertex to keep precision on
// small polygons far from the origin.
func shoelace(pts []orb.Point) (float64, float64) {
	o := pts[0]
	var sum, sumLat float64
	for i := range pts {
		j := (i + 1) % len(pts)
		xi, yi := pts[i][0]-o[0], pts[i][1]-o[1]
		xj, yj := pts[j][0]-o[0], pts[j][1]-o[1]
		sum += xi*yj - xj*yi
		sumLat += pts[i][1]
	}
	return sum / 2, sumLat / float64(len(pts))
}

func degreeAreaKm2(meanLat float64) float64 {
	return LatDegKm * LatDegKm * math.Cos(toRad(meanLat))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
