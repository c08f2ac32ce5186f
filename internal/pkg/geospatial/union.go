package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/doteapp/dote/internal/core/domain"
)

const (
	// snapEps is the distance in degrees under which two points are the
	// same vertex (about 1 cm at the equator).
	snapEps = 1e-10
	// colinearSin is the sine of the turn angle under which a vertex is
	// considered to lie on a straight edge.
	colinearSin = 1e-9
)

// Union returns the union of a territory and one polygon.
//
// Polygons of existing whose bounds do not touch p are passed through
// untouched; the rest go through the simplefeatures overlay together with
// p. Operands the overlay rejects as invalid and results whose area is
// inconsistent with the operands are reported as domain.ErrMergeFailed.
// Shells come out counter-clockwise and holes clockwise.
func Union(existing orb.MultiPolygon, p orb.Polygon) (orb.MultiPolygon, error) {
	add := normalizePolygon(p)
	if len(add) == 0 {
		return nil, fmt.Errorf("%w: polygon has no usable shell", domain.ErrMergeFailed)
	}

	bound := add.Bound().Pad(snapEps)
	var keep, touched orb.MultiPolygon
	for _, poly := range existing {
		if len(poly) == 0 {
			continue
		}
		if poly.Bound().Intersects(bound) {
			touched = append(touched, poly)
			continue
		}
		keep = append(keep, poly)
	}

	if len(touched) == 0 {
		return append(keep, add), nil
	}

	merged, err := unionRegions(touched, add)
	if err != nil {
		return nil, err
	}
	return append(keep, merged...), nil
}

func unionRegions(a orb.MultiPolygon, b orb.Polygon) (orb.MultiPolygon, error) {
	ga, err := toGeom(a)
	if err != nil {
		return nil, fmt.Errorf("%w: territory: %v", domain.ErrMergeFailed, err)
	}
	gb, err := toGeom(b)
	if err != nil {
		return nil, fmt.Errorf("%w: walk polygon: %v", domain.ErrMergeFailed, err)
	}

	gu, err := geom.Union(ga, gb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMergeFailed, err)
	}
	out, err := fromGeom(gu)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMergeFailed, err)
	}

	areaA, areaB, areaU := regionDeg2(a), regionDeg2(orb.MultiPolygon{b}), regionDeg2(out)
	tol := 1e-9*(areaA+areaB) + 1e-18
	if areaU < math.Max(areaA, areaB)-tol || areaU > areaA+areaB+tol {
		return nil, fmt.Errorf("%w: inconsistent union area %.6g (operands %.6g, %.6g)",
			domain.ErrMergeFailed, areaU, areaA, areaB)
	}
	return out, nil
}

// normalizePolygon returns a copy with the shell counter-clockwise and the
// holes clockwise. Rings with fewer than 3 vertices are dropped.
func normalizePolygon(poly orb.Polygon) orb.Polygon {
	if len(poly) == 0 || len(openRing(poly[0])) < 3 {
		return nil
	}
	out := make(orb.Polygon, 0, len(poly))
	for i, r := range poly {
		pts := openRing(r)
		if len(pts) < 3 {
			continue
		}
		ring := closeRing(pts)
		signed, _ := shoelace(pts)
		if (i == 0) != (signed > 0) {
			ring.Reverse()
		}
		out = append(out, ring)
	}
	return out
}

// simplifyRing removes repeated vertices, spikes and vertices lying on a
// straight edge.
func simplifyRing(pts []orb.Point) []orb.Point {
	out := append([]orb.Point(nil), pts...)
	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			prev := out[(i-1+len(out))%len(out)]
			next := out[(i+1)%len(out)]
			if nearPoint(prev, out[i]) || colinear(prev, out[i], next) {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return out
}

func colinear(a, b, c orb.Point) bool {
	l1 := math.Hypot(b[0]-a[0], b[1]-a[1])
	l2 := math.Hypot(c[0]-b[0], c[1]-b[1])
	if l1 == 0 || l2 == 0 {
		return true
	}
	return math.Abs(cross(a, b, c)) <= colinearSin*l1*l2
}

// regionDeg2 is the area of a multipolygon in square degrees.
func regionDeg2(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for i, r := range poly {
			pts := openRing(r)
			if len(pts) < 3 {
				continue
			}
			a, _ := shoelace(pts)
			if i == 0 {
				total += math.Abs(a)
			} else {
				total -= math.Abs(a)
			}
		}
	}
	return total
}

func nearPoint(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= snapEps && math.Abs(a[1]-b[1]) <= snapEps
}
