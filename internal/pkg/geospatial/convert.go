package geospatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/doteapp/dote/internal/core/domain"
)

// Coordinates are mapped to planar points as x = longitude, y = latitude.

func toPoint(c domain.Coordinate) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

func fromPoint(p orb.Point) domain.Coordinate {
	return domain.Coordinate{Latitude: p[1], Longitude: p[0]}
}

// ToRing converts an open polygon to a closed orb ring.
func ToRing(p domain.Polygon) orb.Ring {
	if len(p) == 0 {
		return nil
	}
	r := make(orb.Ring, 0, len(p)+1)
	for _, c := range p {
		r = append(r, toPoint(c))
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// FromRing converts a closed orb ring back to an open polygon.
func FromRing(r orb.Ring) domain.Polygon {
	pts := openRing(r)
	if len(pts) == 0 {
		return nil
	}
	p := make(domain.Polygon, len(pts))
	for i, pt := range pts {
		p[i] = fromPoint(pt)
	}
	return p
}

// openRing returns the ring's vertices without the closing duplicate.
func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

func closeRing(pts []orb.Point) orb.Ring {
	r := make(orb.Ring, 0, len(pts)+1)
	r = append(r, pts...)
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// toGeom converts an orb geometry into a validated simplefeatures one.
func toGeom(g orb.Geometry) (geom.Geometry, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("encode wkb: %w", err)
	}
	return geom.UnmarshalWKB(data)
}

// fromGeom converts an overlay result back to a cleaned multipolygon.
// Lower-dimensional parts of a collection are dropped.
func fromGeom(g geom.Geometry) (orb.MultiPolygon, error) {
	if g.IsEmpty() {
		return nil, fmt.Errorf("empty union")
	}
	decoded, err := wkb.Unmarshal(g.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}

	var polys []orb.Polygon
	var collect func(orb.Geometry)
	collect = func(og orb.Geometry) {
		switch v := og.(type) {
		case orb.Polygon:
			polys = append(polys, v)
		case orb.MultiPolygon:
			polys = append(polys, v...)
		case orb.Collection:
			for _, part := range v {
				collect(part)
			}
		}
	}
	collect(decoded)

	out := make(orb.MultiPolygon, 0, len(polys))
	for _, poly := range polys {
		cleaned := make(orb.Polygon, 0, len(poly))
		for i, r := range poly {
			pts := simplifyRing(openRing(r))
			if len(pts) < 3 {
				if i == 0 {
					break
				}
				continue
			}
			cleaned = append(cleaned, closeRing(pts))
		}
		if n := normalizePolygon(cleaned); len(n) > 0 {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("union has no polygons")
	}
	return out, nil
}
