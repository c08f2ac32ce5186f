package geospatial

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/doteapp/dote/internal/core/domain"
)

// BuildConvexHull returns the convex hull of points using Andrew's monotone
// chain on (longitude, latitude). The hull is counter-clockwise, starts at
// the lowest-longitude (then lowest-latitude) vertex and has no colinear
// vertices, so the result does not depend on input order. Nil is returned
// for fewer than 3 distinct points or when all points are colinear.
func BuildConvexHull(points []domain.Coordinate) domain.Polygon {
	if len(points) < 3 {
		return nil
	}

	pts := make([]orb.Point, 0, len(points))
	for _, c := range points {
		pts = append(pts, toPoint(c))
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	uniq := pts[:1]
	for _, p := range pts[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return nil
	}

	hull := make([]orb.Point, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]

	if len(hull) < 3 {
		return nil
	}

	poly := make(domain.Polygon, len(hull))
	for i, p := range hull {
		poly[i] = fromPoint(p)
	}
	return poly
}

// cross is the z component of (a->b) x (a->c). Positive means c lies to the
// left of a->b.
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
