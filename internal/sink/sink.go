// Package sink persists the output of a linkage run.
package sink

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/geometry"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
)

// Sink receives the output of a run.
type Sink interface {
	Write(ctx context.Context, runID string, out *linkage.Output) error
}

// Multi writes to every sink in order and stops at the first failure.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, runID string, out *linkage.Output) error {
	for _, s := range m {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "sink: context cancelled")
		}
		if err := s.Write(ctx, runID, out); err != nil {
			return err
		}
	}
	return nil
}

// record is the tabular form of one flat output feature.
type record struct {
	Seq         int
	Feature     []byte
	Matched     bool
	GeoDistance *float64
	MatchScore  *float64
	// Point is the representative point of the feature's geometry, nil when
	// the geometry cannot be reduced.
	Point *geom.Point
}

func records(out *linkage.Output) ([]record, error) {
	recs := make([]record, 0, len(out.Flat))
	for i, f := range out.Flat {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, eris.Wrapf(err, "sink: marshal feature %d", i)
		}
		r := record{Seq: i, Feature: data}

		// Paired counterparts come from Geo_Match unless only names are matched.
		key := linkage.KeyGeoMatch
		if out.Mode == linkage.ModeFuzzy {
			key = linkage.KeyFuzzyMatch
		}
		_, r.Matched = f.Properties[key]
		r.GeoDistance = floatProp(f, linkage.KeyGeoDistance)
		r.MatchScore = floatProp(f, linkage.KeyMatchScore)

		if pt, err := geometry.Reduce(f.Geometry); err == nil {
			r.Point = pt
		} else {
			zap.L().Debug("sink: feature without representative point", zap.Int("seq", i), zap.Error(err))
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func floatProp(f *geojson.Feature, key string) *float64 {
	switch v := f.Properties[key].(type) {
	case float64:
		return &v
	case int:
		x := float64(v)
		return &x
	default:
		return nil
	}
}
