package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Validate checks that g is non-empty and structurally sound: coordinates
// are finite, line strings span two distinct positions, polygon rings are
// closed with at least four coordinates and shells enclose a non-zero area.
func Validate(g geom.T) error {
	switch t := g.(type) {
	case nil:
		return eris.Wrap(ErrInvalidGeometry, "nil geometry")

	case *geom.Point:
		if t == nil || len(t.FlatCoords()) < 2 {
			return eris.Wrap(ErrInvalidGeometry, "empty point")
		}
		return checkFinite(t.FlatCoords())

	case *geom.MultiPoint:
		if t == nil || t.NumPoints() == 0 || len(t.FlatCoords()) == 0 {
			return eris.Wrap(ErrInvalidGeometry, "empty multipoint")
		}
		return checkFinite(t.FlatCoords())

	case *geom.LineString:
		if t == nil {
			return eris.Wrap(ErrInvalidGeometry, "empty linestring")
		}
		return validateLine(t.FlatCoords(), t.Stride())

	case *geom.LinearRing:
		if t == nil {
			return eris.Wrap(ErrInvalidGeometry, "empty linear ring")
		}
		return validateRing(t, 0)

	case *geom.MultiLineString:
		if t == nil || t.NumLineStrings() == 0 {
			return eris.Wrap(ErrInvalidGeometry, "empty multilinestring")
		}
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			if err := validateLine(ls.FlatCoords(), ls.Stride()); err != nil {
				return eris.Wrapf(err, "linestring %d", i)
			}
		}
		return nil

	case *geom.Polygon:
		if t == nil {
			return eris.Wrap(ErrInvalidGeometry, "empty polygon")
		}
		return validatePolygon(t)

	case *geom.MultiPolygon:
		if t == nil || t.NumPolygons() == 0 {
			return eris.Wrap(ErrInvalidGeometry, "empty multipolygon")
		}
		for i := 0; i < t.NumPolygons(); i++ {
			if err := validatePolygon(t.Polygon(i)); err != nil {
				return eris.Wrapf(err, "polygon %d", i)
			}
		}
		return nil

	case *geom.GeometryCollection:
		if t == nil || t.NumGeoms() == 0 {
			return eris.Wrap(ErrInvalidGeometry, "empty geometry collection")
		}
		for i, member := range t.Geoms() {
			if err := Validate(member); err != nil {
				return eris.Wrapf(err, "member %d", i)
			}
		}
		return nil

	default:
		return eris.Wrapf(ErrInvalidGeometry, "unsupported geometry %T", g)
	}
}

func validateLine(flat []float64, stride int) error {
	if err := checkFinite(flat); err != nil {
		return err
	}
	if len(flat) < 2*stride {
		return eris.Wrap(ErrInvalidGeometry, "linestring needs at least two coordinates")
	}
	for i := stride; i < len(flat); i += stride {
		if flat[i] != flat[0] || flat[i+1] != flat[1] {
			return nil
		}
	}
	return eris.Wrap(ErrInvalidGeometry, "linestring has no length")
}

func validatePolygon(p *geom.Polygon) error {
	if p.NumLinearRings() == 0 {
		return eris.Wrap(ErrInvalidGeometry, "empty polygon")
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		if err := validateRing(p.LinearRing(i), i); err != nil {
			return err
		}
	}
	if p.LinearRing(0).Area() == 0 {
		return eris.Wrap(ErrInvalidGeometry, "polygon shell has zero area")
	}
	return nil
}

func validateRing(r *geom.LinearRing, idx int) error {
	flat, stride := r.FlatCoords(), r.Stride()
	if err := checkFinite(flat); err != nil {
		return err
	}
	n := len(flat) / stride
	if n < 4 {
		return eris.Wrapf(ErrInvalidGeometry, "ring %d has %d coordinates, need 4", idx, n)
	}
	last := (n - 1) * stride
	if flat[0] != flat[last] || flat[1] != flat[last+1] {
		return eris.Wrapf(ErrInvalidGeometry, "ring %d is not closed", idx)
	}
	return nil
}

func checkFinite(flat []float64) error {
	if !finite(flat) {
		return eris.Wrap(ErrInvalidGeometry, "non-finite coordinate")
	}
	return nil
}
