// Package linkage links records of a historical feature collection to a
// contemporary one by proximity of their representative points and, when
// configured, by name similarity.
package linkage

import (
	"context"
	"fmt"
	"maps"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/fuzzy"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/geometry"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/proximity"
)

// Property keys written onto query features.
const (
	KeyGeoMatch    = "Geo_Match"
	KeyGeoDistance = "Geo_Distance"
	KeyFuzzyMatch  = "Fuzzy_Match"
	KeyMatchScore  = "Match_Score"
)

// ErrEmptyCandidatePool is returned when no reference feature can serve as a
// candidate, so no query could possibly match.
var ErrEmptyCandidatePool = eris.New("linkage: empty candidate pool")

// Stats summarizes a run.
type Stats struct {
	Total       int  `json:"total" yaml:"total"`
	Unresolved  int  `json:"unresolved" yaml:"unresolved"`
	Candidates  int  `json:"candidates" yaml:"candidates"`
	Dropped     int  `json:"dropped" yaml:"dropped"`
	Matched     int  `json:"matched" yaml:"matched"`
	Unmatched   int  `json:"unmatched" yaml:"unmatched"`
	NameMatched int  `json:"name_matched" yaml:"name_matched"`
	Rejected    int  `json:"rejected" yaml:"rejected"`
	Failed      int  `json:"failed" yaml:"failed"`
	Partial     bool `json:"partial" yaml:"partial"`
}

// Output holds both result views of a run.
type Output struct {
	// Flat lists every processed query feature, matched or not.
	Flat []*geojson.Feature
	// Paired alternates each query feature with its counterpart; unmatched
	// queries appear alone.
	Paired *geojson.FeatureCollection
	Stats  Stats
	// Mode is the mode the run used. It decides which annotation marks a
	// query as matched.
	Mode Mode
}

// Linker runs the linkage pipeline.
type Linker struct {
	cfg Config
}

// New validates cfg and returns a Linker.
func New(cfg Config) (*Linker, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.NameFields = append([]string(nil), cfg.NameFields...)
	return &Linker{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (l *Linker) Config() Config {
	return l.cfg
}

// Unresolved returns the features that carry no Match_Score marker, in order.
func Unresolved(features []*geojson.Feature) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		if _, ok := f.Properties[KeyMatchScore]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

type result struct {
	done     bool
	geo      proximity.Match
	geoOK    bool
	rejected bool
	name     fuzzy.Match
	nameOK   bool
	err      error
}

// Run links the unresolved features of sourceA to features of sourceB.
// Matched queries gain Geo_Match and Geo_Distance (and Fuzzy_Match with
// Match_Score when name matching is enabled). sourceB features are never
// modified. If ctx is cancelled the remaining queries are abandoned and the
// partial output is returned with Stats.Partial set.
func (l *Linker) Run(ctx context.Context, sourceA, sourceB []*geojson.Feature) (*Output, error) {
	log := zap.L().With(zap.String("mode", string(l.cfg.Mode)))

	queries := Unresolved(sourceA)
	stats := Stats{Total: len(sourceA), Unresolved: len(queries)}
	log.Info("linkage: unresolved features", zap.Int("unresolved", len(queries)), zap.Int("total", len(sourceA)))

	var pool []proximity.Candidate
	if l.cfg.Mode != ModeFuzzy {
		pool, stats.Dropped = proximity.BuildPool(sourceB)
		stats.Candidates = len(pool)
		if stats.Dropped > 0 {
			log.Info("linkage: dropped reference features without usable geometry", zap.Int("dropped", stats.Dropped))
		}
		if len(pool) == 0 {
			return nil, eris.Wrapf(ErrEmptyCandidatePool, "%d reference features, %d dropped", len(sourceB), stats.Dropped)
		}
	}

	var named []*geojson.Feature
	if l.cfg.Mode != ModeProximity {
		named = withField(sourceB, l.cfg.KeyField)
		if l.cfg.Mode == ModeFuzzy {
			stats.Candidates = len(named)
			stats.Dropped = len(sourceB) - len(named)
			if len(named) == 0 {
				return nil, eris.Wrapf(ErrEmptyCandidatePool, "no reference feature has %q", l.cfg.KeyField)
			}
		}
	}

	results := l.matchAll(ctx, queries, pool, named)
	out := l.assemble(queries, results, stats)
	stats = out.Stats

	if stats.Partial {
		log.Warn("linkage: run cancelled, returning partial output", zap.Error(ctx.Err()))
	}
	log.Info("linkage: run complete",
		zap.Int("unresolved", stats.Unresolved),
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("dropped", stats.Dropped),
	)
	return out, nil
}

// matchAll computes a result per query. Matching only reads shared state, so
// queries fan out across the configured number of workers.
func (l *Linker) matchAll(ctx context.Context, queries []*geojson.Feature, pool []proximity.Candidate, named []*geojson.Feature) []result {
	results := make([]result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for i, q := range queries {
		i, q := i, q
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = l.matchOne(q, pool, named)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (l *Linker) matchOne(q *geojson.Feature, pool []proximity.Candidate, named []*geojson.Feature) result {
	r := result{done: true}

	if l.cfg.Mode != ModeFuzzy {
		pt, err := geometry.Reduce(q.Geometry)
		if err != nil {
			r.err = err
		} else {
			r.geo, r.geoOK = proximity.Nearest(pt, pool, l.cfg.DistanceModel)
			if r.geoOK && l.cfg.MaxDistance > 0 && r.geo.Distance > l.cfg.MaxDistance {
				r.geoOK = false
				r.rejected = true
			}
		}
	}

	if l.cfg.Mode != ModeProximity {
		names := fuzzy.QueryNames(q, l.cfg.NameFields)
		r.name, r.nameOK = fuzzy.BestMatch(names, named, l.cfg.KeyField, l.cfg.Scorer, l.cfg.Threshold)
	}

	return r
}

// assemble annotates queries in input order, builds both output views and
// completes stats with the per-query outcomes.
func (l *Linker) assemble(queries []*geojson.Feature, results []result, stats Stats) *Output {
	out := &Output{
		Mode:   l.cfg.Mode,
		Flat:   make([]*geojson.Feature, 0, len(queries)),
		Paired: &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, 2*len(queries))},
	}

	for i, q := range queries {
		r := results[i]
		if !r.done {
			stats.Partial = true
			continue
		}
		if q.Properties == nil {
			q.Properties = make(map[string]any)
		}

		if r.nameOK {
			q.Properties[KeyFuzzyMatch] = cloneProperties(r.name.Feature)
			q.Properties[KeyMatchScore] = r.name.Score
			stats.NameMatched++
		}

		var counterpart *geojson.Feature
		if l.cfg.Mode == ModeFuzzy {
			if r.nameOK {
				counterpart = r.name.Feature
			}
		} else if r.geoOK {
			q.Properties[KeyGeoMatch] = cloneProperties(r.geo.Feature)
			q.Properties[KeyGeoDistance] = r.geo.Distance
			counterpart = r.geo.Feature
		}

		out.Flat = append(out.Flat, q)
		out.Paired.Features = append(out.Paired.Features, q)
		if counterpart != nil {
			out.Paired.Features = append(out.Paired.Features, counterpart)
			stats.Matched++
			continue
		}

		stats.Unmatched++
		fields := []zap.Field{zap.String("key", l.featureKey(q))}
		switch {
		case r.err != nil:
			stats.Failed++
			fields = append(fields, zap.String("reason", "unusable geometry"), zap.Error(r.err))
		case r.rejected:
			stats.Rejected++
			fields = append(fields, zap.String("reason", "beyond max distance"), zap.Float64("distance", r.geo.Distance))
		default:
			fields = append(fields, zap.String("reason", "no candidate"))
		}
		zap.L().Info("linkage: no match found", fields...)
	}

	out.Stats = stats
	return out
}

func (l *Linker) featureKey(f *geojson.Feature) string {
	if v, ok := f.Properties[l.cfg.IDField]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return "Unknown"
}

func withField(features []*geojson.Feature, key string) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		if _, err := fuzzy.FieldValue(f, key); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func cloneProperties(f *geojson.Feature) map[string]any {
	if f.Properties == nil {
		return make(map[string]any)
	}
	return maps.Clone(f.Properties)
}
