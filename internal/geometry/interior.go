package geometry

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// InteriorPoint returns a coordinate guaranteed to lie on or within g.
// Collections are reduced using their highest-dimension members only.
func InteriorPoint(g geom.T) (geom.Coord, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	var parts components
	parts.collect(g)

	switch {
	case len(parts.polygons) > 0:
		return areaInteriorPoint(parts.polygons), nil
	case len(parts.lines) > 0:
		return lineInteriorPoint(parts.lines)
	case len(parts.points) > 0:
		return pointInteriorPoint(parts.points), nil
	}
	return nil, eris.Wrap(ErrInvalidGeometry, "no components")
}

type components struct {
	points   []geom.Coord
	lines    []*geom.LineString
	polygons []*geom.Polygon
}

func (c *components) collect(g geom.T) {
	switch t := g.(type) {
	case *geom.Point:
		c.points = append(c.points, geom.Coord{t.X(), t.Y()})
	case *geom.MultiPoint:
		for i := 0; i < t.NumPoints(); i++ {
			p := t.Point(i)
			if len(p.FlatCoords()) >= 2 {
				c.points = append(c.points, geom.Coord{p.X(), p.Y()})
			}
		}
	case *geom.LineString:
		c.lines = append(c.lines, t)
	case *geom.LinearRing:
		c.lines = append(c.lines, geom.NewLineStringFlat(t.Layout(), t.FlatCoords()))
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			c.lines = append(c.lines, t.LineString(i))
		}
	case *geom.Polygon:
		c.polygons = append(c.polygons, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			c.polygons = append(c.polygons, t.Polygon(i))
		}
	case *geom.GeometryCollection:
		for _, member := range t.Geoms() {
			c.collect(member)
		}
	}
}

// areaInteriorPoint scans a horizontal line through each polygon at a Y that
// avoids every vertex and returns the midpoint of the widest inside interval.
func areaInteriorPoint(polys []*geom.Polygon) geom.Coord {
	var best geom.Coord
	bestWidth := -1.0
	for _, p := range polys {
		y := bisectorY(p)
		xs := crossings(p, y)
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			if w := xs[i+1] - xs[i]; w > bestWidth {
				bestWidth = w
				best = geom.Coord{(xs[i] + xs[i+1]) / 2, y}
			}
		}
	}
	if best == nil {
		flat := polys[0].FlatCoords()
		best = geom.Coord{flat[0], flat[1]}
	}
	return best
}

func bisectorY(p *geom.Polygon) float64 {
	b := p.Bounds()
	centre := (b.Min(1) + b.Max(1)) / 2
	lo, hi := b.Min(1), b.Max(1)
	flat, stride := p.FlatCoords(), p.Stride()
	for i := 1; i < len(flat); i += stride {
		y := flat[i]
		if y <= centre {
			if y > lo {
				lo = y
			}
		} else if y < hi {
			hi = y
		}
	}
	return (lo + hi) / 2
}

func crossings(p *geom.Polygon, y float64) []float64 {
	var xs []float64
	for r := 0; r < p.NumLinearRings(); r++ {
		ring := p.LinearRing(r)
		flat, stride := ring.FlatCoords(), ring.Stride()
		for i := 0; i+2*stride <= len(flat); i += stride {
			x0, y0 := flat[i], flat[i+1]
			x1, y1 := flat[i+stride], flat[i+stride+1]
			if (y0 > y) != (y1 > y) {
				xs = append(xs, x0+(y-y0)*(x1-x0)/(y1-y0))
			}
		}
	}
	return xs
}

// lineInteriorPoint picks the interior vertex closest to the centroid of all
// lines, falling back to the closest endpoint when no line has an interior
// vertex.
func lineInteriorPoint(lines []*geom.LineString) (geom.Coord, error) {
	centroid, err := linesCentroid(lines)
	if err != nil {
		return nil, err
	}

	var best geom.Coord
	bestDist := -1.0
	consider := func(c geom.Coord) {
		if d := sqDist(c, centroid); bestDist < 0 || d < bestDist {
			bestDist = d
			best = geom.Coord{c[0], c[1]}
		}
	}

	for _, ls := range lines {
		for i := 1; i < ls.NumCoords()-1; i++ {
			consider(ls.Coord(i))
		}
	}
	if best != nil {
		return best, nil
	}
	for _, ls := range lines {
		consider(ls.Coord(0))
		consider(ls.Coord(ls.NumCoords() - 1))
	}
	return best, nil
}

func linesCentroid(lines []*geom.LineString) (geom.Coord, error) {
	if len(lines) == 1 {
		c, err := xy.Centroid(lines[0])
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidGeometry, "line centroid: %v", err)
		}
		return c, nil
	}
	mls := geom.NewMultiLineString(lines[0].Layout())
	for i, ls := range lines {
		if err := mls.Push(ls); err != nil {
			return nil, eris.Wrapf(ErrInvalidGeometry, "line %d: %v", i, err)
		}
	}
	c, err := xy.Centroid(mls)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidGeometry, "line centroid: %v", err)
	}
	return c, nil
}

func pointInteriorPoint(points []geom.Coord) geom.Coord {
	var cx, cy float64
	for _, p := range points {
		cx += p[0]
		cy += p[1]
	}
	centroid := geom.Coord{cx / float64(len(points)), cy / float64(len(points))}

	best := points[0]
	bestDist := sqDist(best, centroid)
	for _, p := range points[1:] {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

func sqDist(a, b geom.Coord) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}
