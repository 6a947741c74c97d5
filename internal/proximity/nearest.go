package proximity

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/geometry"
)

// Candidate pairs a feature with the point that represents it.
type Candidate struct {
	Point   *geom.Point
	Feature *geojson.Feature
}

// Match is the nearest candidate for a query.
type Match struct {
	Candidate
	Distance float64
	Index    int
}

// BuildPool reduces every feature to its representative point. Features with
// empty or invalid geometry are dropped and counted; input order is kept.
func BuildPool(features []*geojson.Feature) ([]Candidate, int) {
	pool := make([]Candidate, 0, len(features))
	dropped := 0
	for i, f := range features {
		if f == nil {
			dropped++
			continue
		}
		pt, err := geometry.Reduce(f.Geometry)
		if err != nil {
			dropped++
			zap.L().Debug("proximity: dropping candidate",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		pool = append(pool, Candidate{Point: pt, Feature: f})
	}
	return pool, dropped
}

// Nearest scans candidates linearly and returns the closest one to query.
// Ties keep the earliest candidate. The boolean is false only when there are
// no candidates; no distance cutoff is applied here.
func Nearest(query *geom.Point, candidates []Candidate, model DistanceModel) (Match, bool) {
	if query == nil || len(candidates) == 0 {
		return Match{}, false
	}

	q := query.Coords()
	best := Match{Index: -1}
	for i, c := range candidates {
		d := model.Distance(q, c.Point.Coords())
		if best.Index < 0 || d < best.Distance {
			best = Match{Candidate: c, Distance: d, Index: i}
		}
	}
	return best, true
}
