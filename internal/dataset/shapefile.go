package dataset

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ReadShapefile reads a shapefile and its DBF attributes as GeoJSON features.
// Records whose shape cannot be converted are returned with a nil geometry.
func ReadShapefile(shpPath string) ([]*geojson.Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []*geojson.Feature
	var unsupported int
	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				props[name] = nil
				continue
			}
			if fields[i].Fieldtype == 'N' || fields[i].Fieldtype == 'F' {
				if n, err := strconv.ParseFloat(val, 64); err == nil {
					props[name] = n
					continue
				}
			}
			props[name] = val
		}

		g := ShapeToGeom(shape)
		if g == nil {
			unsupported++
		}
		features = append(features, &geojson.Feature{Geometry: g, Properties: props})
	}

	if unsupported > 0 {
		zap.L().Debug("shapefile: records without usable shape",
			zap.String("path", shpPath),
			zap.Int("records", unsupported),
		)
	}
	return features, nil
}

// ShapeToGeom converts a go-shp shape to a go-geom geometry. Returns nil for
// unsupported or empty shapes.
func ShapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineToGeom(s)
	case *shp.Polygon:
		return polygonToGeom(s)
	default:
		return nil
	}
}

// partCoords returns the flat coordinates of each part.
func partCoords(numParts int32, parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToGeom(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	parts := partCoords(pl.NumParts, pl.Parts, pl.Points)
	if len(parts) == 1 {
		return geom.NewLineStringFlat(geom.XY, parts[0])
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range parts {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("shapefile: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToGeom groups shapefile rings into polygons. Shells are stored
// clockwise and holes counter-clockwise; each hole belongs to the shell that
// precedes it.
func polygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i, flat := range partCoords(p.NumParts, p.Parts, p.Points) {
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if signedArea(flat) > 0 && len(polys) > 0 {
			if err := polys[len(polys)-1].Push(ring); err != nil {
				zap.L().Debug("shapefile: skipping malformed hole", zap.Int("part", i), zap.Error(err))
			}
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		polys = append(polys, poly)
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
