package geospatial

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/doteapp/dote/internal/core/domain"
)

// minGainKm2 is the gain under which a merge counts as no change.
const minGainKm2 = 1e-9

// MergeResult is the outcome of merging one walk polygon into a territory.
type MergeResult struct {
	Merged             orb.MultiPolygon
	AreaKm2            float64
	IncrementalAreaKm2 float64
	Changed            bool
}

// Delta is the walk's contribution as a TerritoryDelta.
func (r MergeResult) Delta(p domain.Polygon) domain.TerritoryDelta {
	return domain.TerritoryDelta{NewPolygon: p, IncrementalAreaKm2: r.IncrementalAreaKm2}
}

// MergeTerritory unions p into the existing territory.
//
// The result never shrinks the territory. When the union fails the existing
// shape is returned with zero gain together with an error wrapping
// domain.ErrMergeFailed; callers treat that as recoverable.
func MergeTerritory(existing *domain.Territory, p domain.Polygon) (MergeResult, error) {
	if len(p) < 3 {
		unchanged := MergeResult{}
		if !existing.Empty() {
			unchanged = MergeResult{Merged: existing.Shape, AreaKm2: TerritoryAreaKm2(existing.Shape)}
		}
		return unchanged, fmt.Errorf("%w: %d vertices", domain.ErrGeometryDegenerate, len(p))
	}

	ring := ToRing(p)
	if existing.Empty() {
		area := PlanarPolygonAreaKm2(p)
		return MergeResult{
			Merged:             orb.MultiPolygon{normalizePolygon(orb.Polygon{ring})},
			AreaKm2:            area,
			IncrementalAreaKm2: area,
			Changed:            area > 0,
		}, nil
	}

	before := TerritoryAreaKm2(existing.Shape)
	unchanged := MergeResult{Merged: existing.Shape, AreaKm2: before}

	merged, err := Union(existing.Shape, orb.Polygon{ring})
	if err != nil {
		return unchanged, err
	}

	after := TerritoryAreaKm2(merged)
	gain := after - before
	if gain < minGainKm2 {
		return unchanged, nil
	}
	return MergeResult{
		Merged:             merged,
		AreaKm2:            after,
		IncrementalAreaKm2: gain,
		Changed:            true,
	}, nil
}

// RebuildTerritory merges hulls one after another from scratch. Hulls that
// fail to merge are skipped and counted.
func RebuildTerritory(dogID string, hulls []domain.Polygon) (*domain.Territory, int) {
	t := &domain.Territory{DogID: dogID}
	var failed int
	for _, h := range hulls {
		res, err := MergeTerritory(t, h)
		if err != nil {
			failed++
			continue
		}
		t.Shape = res.Merged
		t.AreaKm2 = res.AreaKm2
	}
	return t, failed
}
