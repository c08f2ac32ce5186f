package geospatial

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	kml "github.com/twpayne/go-kml"
	"github.com/twpayne/go-polyline"

	"github.com/doteapp/dote/internal/core/domain"
)

// TerritoryFeature wraps a territory shape as a GeoJSON feature carrying
// the dog id and area as properties.
func TerritoryFeature(t *domain.Territory) *geojson.Feature {
	var shape orb.Geometry = orb.MultiPolygon{}
	if !t.Empty() {
		shape = t.Shape
	}
	f := geojson.NewFeature(shape)
	if t != nil {
		f.Properties["dog_id"] = t.DogID
		f.Properties["area_km2"] = t.AreaKm2
		f.Properties["version"] = t.Version
	}
	return f
}

// PolygonFeature wraps an open polygon (a hull preview) as a GeoJSON
// feature.
func PolygonFeature(p domain.Polygon) *geojson.Feature {
	return geojson.NewFeature(orb.Polygon{ToRing(p)})
}

// WriteTerritoryKML writes the territory as a KML document with one
// placemark per polygon.
func WriteTerritoryKML(w io.Writer, t *domain.Territory) error {
	name := "territory"
	if t != nil {
		name = "territory " + t.DogID
	}
	elements := []kml.Element{kml.Name(name)}
	if !t.Empty() {
		for i, poly := range t.Shape {
			elements = append(elements, kml.Placemark(
				kml.Name(fmt.Sprintf("area %d", i+1)),
				kml.Description(fmt.Sprintf("%.6f km²", polygonAreaKm2(poly))),
				kmlPolygon(poly),
			))
		}
	}

	doc := kml.KML(kml.Document(elements...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("write kml: %w", err)
	}
	return nil
}

func kmlPolygon(poly orb.Polygon) kml.Element {
	children := make([]kml.Element, 0, len(poly))
	for i, r := range poly {
		coords := make([]kml.Coordinate, len(r))
		for j, p := range r {
			coords[j] = kml.Coordinate{Lon: p[0], Lat: p[1]}
		}
		ring := kml.LinearRing(kml.Coordinates(coords...))
		if i == 0 {
			children = append(children, kml.OuterBoundaryIs(ring))
		} else {
			children = append(children, kml.InnerBoundaryIs(ring))
		}
	}
	return kml.Polygon(children...)
}

// EncodePath encodes a walk path as a Google encoded polyline.
func EncodePath(points []domain.Coordinate) string {
	coords := make([][]float64, len(points))
	for i, c := range points {
		coords[i] = []float64{c.Latitude, c.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePath reverses EncodePath.
func DecodePath(encoded string) ([]domain.Coordinate, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	out := make([]domain.Coordinate, len(coords))
	for i, c := range coords {
		out[i] = domain.Coordinate{Latitude: c[0], Longitude: c[1]}
	}
	return out, nil
}
