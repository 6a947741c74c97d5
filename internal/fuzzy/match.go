package fuzzy

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ErrMissingField is returned when a feature has no usable value for a key.
var ErrMissingField = eris.New("fuzzy: missing field")

// Match is the best scoring candidate for a set of query names.
type Match struct {
	Score   float64
	Feature *geojson.Feature
	Index   int
	Query   string
	Value   string
}

// FieldValue returns the string form of a feature property. Absent, null and
// blank values yield ErrMissingField.
func FieldValue(f *geojson.Feature, key string) (string, error) {
	if f == nil || f.Properties == nil {
		return "", eris.Wrapf(ErrMissingField, "%q", key)
	}
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", eris.Wrapf(ErrMissingField, "%q", key)
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64, int, int64, bool:
		s = fmt.Sprint(t)
	default:
		return "", eris.Wrapf(ErrMissingField, "%q is not a scalar", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", eris.Wrapf(ErrMissingField, "%q is blank", key)
	}
	return s, nil
}

// QueryNames gathers the usable values of fields from f, in field order,
// without duplicates.
func QueryNames(f *geojson.Feature, fields []string) []string {
	var names []string
	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		v, err := FieldValue(f, field)
		if err != nil || seen[v] {
			continue
		}
		seen[v] = true
		names = append(names, v)
	}
	return names
}

// BestMatch scores every query name against every candidate's keyField and
// returns the highest scoring candidate. Candidates without a usable keyField
// are skipped rather than scored. The first maximum encountered wins ties.
// The boolean is false when nothing scored or the best score is below
// threshold.
func BestMatch(queryNames []string, candidates []*geojson.Feature, keyField string, scorer Scorer, threshold float64) (Match, bool) {
	best := Match{Index: -1}
	for i, c := range candidates {
		value, err := FieldValue(c, keyField)
		if err != nil {
			continue
		}
		for _, q := range queryNames {
			if strings.TrimSpace(q) == "" {
				continue
			}
			score := scorer.Score(q, value)
			if best.Index < 0 || score > best.Score {
				best = Match{Score: score, Feature: c, Index: i, Query: q, Value: value}
			}
		}
	}
	if best.Index < 0 || best.Score < threshold {
		return Match{}, false
	}
	return best, true
}
