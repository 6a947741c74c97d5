// Package geometry reduces feature geometries to a single representative
// coordinate so that heterogeneous datasets can be compared point to point.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ErrInvalidGeometry is returned when a geometry is empty or malformed.
var ErrInvalidGeometry = eris.New("geometry: invalid geometry")

// Kind is the closed set of geometry variants the reducer dispatches on.
type Kind int

// Geometry kinds.
const (
	KindOther Kind = iota
	KindPoint
	KindPolygon
	KindMultiPolygon
	KindLineString
)

// String returns the GeoJSON type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	case KindLineString:
		return "LineString"
	default:
		return "Other"
	}
}

// KindOf classifies g. Anything outside the four named variants is KindOther.
func KindOf(g geom.T) Kind {
	switch g.(type) {
	case *geom.Point:
		return KindPoint
	case *geom.Polygon:
		return KindPolygon
	case *geom.MultiPolygon:
		return KindMultiPolygon
	case *geom.LineString:
		return KindLineString
	default:
		return KindOther
	}
}

// Reduce returns a single XY point standing in for g.
//
// Points are returned unchanged. Polygons and multi-polygons reduce to their
// area centroid unless the centroid falls outside the shape, in which case
// the interior point is used instead. Every other kind reduces to a point
// that lies on the geometry.
func Reduce(g geom.T) (*geom.Point, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	var c geom.Coord
	switch KindOf(g) {
	case KindPoint:
		p := g.(*geom.Point)
		return geom.NewPointFlat(geom.XY, []float64{p.X(), p.Y()}), nil

	case KindPolygon, KindMultiPolygon:
		centroid, err := xy.Centroid(g)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidGeometry, "centroid: %v", err)
		}
		if len(centroid) >= 2 && finite(centroid[:2]) && Contains(g, centroid) {
			c = centroid
			break
		}
		c, err = InteriorPoint(g)
		if err != nil {
			return nil, err
		}

	default:
		var err error
		c, err = InteriorPoint(g)
		if err != nil {
			return nil, err
		}
	}

	return geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}), nil
}

// Contains reports whether c lies inside the areal geometry g using the
// even-odd rule. Holes are excluded. Non-areal geometries contain nothing.
func Contains(g geom.T, c geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, c[0], c[1])
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), c[0], c[1]) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, x, y float64) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !ringContains(p.LinearRing(0), x, y) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if ringContains(p.LinearRing(i), x, y) {
			return false
		}
	}
	return true
}

func ringContains(r *geom.LinearRing, x, y float64) bool {
	flat, stride := r.FlatCoords(), r.Stride()
	n := len(flat) / stride
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[i*stride], flat[i*stride+1]
		xj, yj := flat[j*stride], flat[j*stride+1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func finite(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
