package geospatial

import (
	"fmt"
	"math"

	"github.com/doteapp/dote/internal/core/domain"
)

// Validator gates hulls before they are shown as previews or merged.
type Validator struct {
	MinAreaKm2         float64
	MaxAreaKm2         float64
	VertexToleranceDeg float64
}

// DefaultValidator rejects hulls under ~100 m² and over 50 km².
func DefaultValidator() Validator {
	return Validator{
		MinAreaKm2:         1e-4,
		MaxAreaKm2:         50,
		VertexToleranceDeg: 1e-7,
	}
}

// IsValidPolygon reports whether p may become territory.
func (v Validator) IsValidPolygon(p domain.Polygon) bool {
	return v.Validate(p) == nil
}

// Validate returns nil for an acceptable polygon, or an error wrapping
// domain.ErrGeometryDegenerate naming the first failed check.
func (v Validator) Validate(p domain.Polygon) error {
	if len(p) < 3 {
		return fmt.Errorf("%w: %d vertices", domain.ErrGeometryDegenerate, len(p))
	}
	for i, c := range p {
		if !c.Valid() {
			return fmt.Errorf("%w: vertex %d out of range", domain.ErrGeometryDegenerate, i)
		}
		next := p[(i+1)%len(p)]
		if v.sameVertex(c, next) {
			return fmt.Errorf("%w: duplicate consecutive vertex at %d", domain.ErrGeometryDegenerate, i)
		}
	}

	area := PlanarPolygonAreaKm2(p)
	if area <= v.MinAreaKm2 {
		return fmt.Errorf("%w: area %.6g km² below minimum %.6g", domain.ErrGeometryDegenerate, area, v.MinAreaKm2)
	}
	if v.MaxAreaKm2 > 0 && area > v.MaxAreaKm2 {
		return fmt.Errorf("%w: area %.6g km² above maximum %.6g", domain.ErrGeometryDegenerate, area, v.MaxAreaKm2)
	}
	return nil
}

func (v Validator) sameVertex(a, b domain.Coordinate) bool {
	return math.Abs(a.Latitude-b.Latitude) <= v.VertexToleranceDeg &&
		math.Abs(a.Longitude-b.Longitude) <= v.VertexToleranceDeg
}
