// Package proximity finds the geographically nearest reference feature for a
// query point.
package proximity

import (
	"math"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is the IUGG mean Earth radius used for great-circle
// distances.
const EarthRadiusMeters = 6371008.8

// DistanceModel selects how the distance between two coordinates is measured.
type DistanceModel string

const (
	// Planar is Euclidean distance on raw coordinate deltas, in coordinate units.
	Planar DistanceModel = "planar"
	// Geodesic is great-circle distance between lon/lat coordinates, in metres.
	Geodesic DistanceModel = "geodesic"
)

// ParseDistanceModel converts a configuration string into a DistanceModel.
// The empty string selects Planar.
func ParseDistanceModel(s string) (DistanceModel, error) {
	switch DistanceModel(strings.ToLower(strings.TrimSpace(s))) {
	case "", Planar:
		return Planar, nil
	case Geodesic:
		return Geodesic, nil
	default:
		return "", eris.Errorf("proximity: unknown distance model %q", s)
	}
}

// Distance measures a to b. Coordinates are read as (x, y), which for the
// geodesic model means (longitude, latitude) in degrees.
func (m DistanceModel) Distance(a, b geom.Coord) float64 {
	if m == Geodesic {
		return greatCircle(a[0], a[1], b[0], b[1])
	}
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

func greatCircle(lon1, lat1, lon2, lat2 float64) float64 {
	p := s2.LatLngFromDegrees(lat1, lon1)
	q := s2.LatLngFromDegrees(lat2, lon2)
	return p.Distance(q).Radians() * EarthRadiusMeters
}
