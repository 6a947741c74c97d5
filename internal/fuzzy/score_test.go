package fuzzy

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Castel Sant'Angelo", "castel sant angelo"},
		{"  Piazza   Navona ", "piazza navona"},
		{"Basilica di San Pietro (Vaticano)", "basilica di san pietro vaticano"},
		{"Santa María in Cosmedín", "santa maria in cosmedin"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("roma", "roma"))
	assert.Equal(t, 0.0, Ratio("", "roma"))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
	// LCS "castel sant angelo" (18) of 18+23 runes.
	assert.InDelta(t, 100*36.0/41.0, Ratio("castel sant angelo", "castello di sant angelo"), 1e-9)
	assert.Equal(t, Ratio("abcd", "abce"), Ratio("abce", "abcd"))
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100.0, PartialRatio("navona", "piazza navona"))
	assert.Equal(t, 100.0, PartialRatio("piazza navona", "navona"))
	assert.Equal(t, 0.0, PartialRatio("", "navona"))

	whole := Ratio("castel sant angelo", "castello di sant angelo")
	assert.GreaterOrEqual(t, PartialRatio("castel sant angelo", "castello di sant angelo"), whole)
}

func TestTokenSortRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSortRatio("navona piazza", "piazza navona"))
	assert.Less(t, Ratio("navona piazza", "piazza navona"), 100.0)
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("piazza navona", "navona piazza navona"))
	assert.InDelta(t, 100*36.0/41.0, TokenSetRatio("castel sant angelo", "castello di sant angelo"), 1e-9)
	assert.Equal(t, 0.0, TokenSetRatio("", "x"))
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 100.0, JaroWinkler("pantheon", "pantheon"), 1e-9)
	assert.Greater(t, JaroWinkler("pantheon", "panteon"), 90.0)
	assert.Equal(t, 0.0, JaroWinkler("", "pantheon"))
}

func TestScorer_ScoreNormalizes(t *testing.T) {
	assert.Equal(t, 100.0, ScorerRatio.Score("Sant'Angelo", "sant angelo"))
	assert.Equal(t, 100.0, ScorerTokenSort.Score("Navona, Piazza", "piazza navona"))
	assert.Equal(t, 0.0, Scorer("bogus").Score("a", "a"))
}

func TestParseScorer(t *testing.T) {
	tests := []struct {
		in   string
		want Scorer
	}{
		{"ratio", ScorerRatio},
		{"PARTIAL_RATIO", ScorerPartialRatio},
		{"token_sort", ScorerTokenSort},
		{"token_sort_ratio", ScorerTokenSort},
		{"token_set_ratio", ScorerTokenSet},
		{"jaro_winkler", ScorerJaroWinkler},
	}
	for _, tt := range tests {
		got, err := ParseScorer(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseScorer("soundex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scorer")
}

func named(props map[string]any) *geojson.Feature {
	return &geojson.Feature{Properties: props}
}

func TestBestMatch_CastelSantAngelo(t *testing.T) {
	candidates := []*geojson.Feature{
		named(map[string]any{"name": "Piazza Navona"}),
		named(map[string]any{"name": "Castello di Sant'Angelo"}),
		named(map[string]any{"name": "Pantheon"}),
	}

	m, ok := BestMatch([]string{"Castel Sant'Angelo"}, candidates, "name", ScorerPartialRatio, 85)
	require.True(t, ok)
	assert.Equal(t, 1, m.Index)
	assert.GreaterOrEqual(t, m.Score, 85.0)
	assert.Equal(t, "Castello di Sant'Angelo", m.Value)
	assert.Equal(t, "Castel Sant'Angelo", m.Query)

	_, ok = BestMatch([]string{"Castel Sant'Angelo"}, candidates, "name", ScorerPartialRatio, 99)
	assert.False(t, ok)
}

func TestBestMatch_SkipsMissingField(t *testing.T) {
	candidates := []*geojson.Feature{
		named(map[string]any{"other": "Pantheon"}),
		named(map[string]any{"name": nil}),
		named(map[string]any{"name": "   "}),
		nil,
		named(map[string]any{"name": "Zzz"}),
	}
	m, ok := BestMatch([]string{"Pantheon"}, candidates, "name", ScorerRatio, 0)
	require.True(t, ok)
	assert.Equal(t, 4, m.Index)
	assert.Equal(t, 0.0, m.Score)
}

func TestBestMatch_NoUsableCandidates(t *testing.T) {
	candidates := []*geojson.Feature{named(map[string]any{"other": "Pantheon"})}
	_, ok := BestMatch([]string{"Pantheon"}, candidates, "name", ScorerRatio, 0)
	assert.False(t, ok)

	_, ok = BestMatch([]string{"Pantheon"}, nil, "name", ScorerRatio, 0)
	assert.False(t, ok)
}

func TestBestMatch_TieKeepsFirstCandidate(t *testing.T) {
	candidates := []*geojson.Feature{
		named(map[string]any{"name": "Pantheon", "id": 1}),
		named(map[string]any{"name": "Pantheon", "id": 2}),
	}
	m, ok := BestMatch([]string{"Pantheon"}, candidates, "name", ScorerRatio, 50)
	require.True(t, ok)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, 100.0, m.Score)
}

func TestBestMatch_UsesEveryQueryName(t *testing.T) {
	candidates := []*geojson.Feature{named(map[string]any{"name": "Castel Sant'Angelo"})}
	names := []string{"Mole Adriana", "Castel Sant'Angelo"}
	m, ok := BestMatch(names, candidates, "name", ScorerRatio, 90)
	require.True(t, ok)
	assert.Equal(t, "Castel Sant'Angelo", m.Query)
	assert.Equal(t, 100.0, m.Score)
}

func TestFieldValue(t *testing.T) {
	f := named(map[string]any{"name": "Pantheon", "Nolli Number": float64(1319), "list": []any{"a"}})

	v, err := FieldValue(f, "name")
	require.NoError(t, err)
	assert.Equal(t, "Pantheon", v)

	v, err = FieldValue(f, "Nolli Number")
	require.NoError(t, err)
	assert.Equal(t, "1319", v)

	for _, key := range []string{"missing", "list"} {
		_, err = FieldValue(f, key)
		require.Error(t, err, key)
		assert.True(t, eris.Is(err, ErrMissingField), key)
	}
}

func TestQueryNames(t *testing.T) {
	f := named(map[string]any{
		"Nolli Name":      "Mole Adriana, or Castel S. Angelo",
		"Unravelled Name": "Castel Sant'Angelo",
		"Modern Name":     "Castel Sant'Angelo",
	})
	got := QueryNames(f, []string{"Nolli Name", "Unravelled Name", "Modern Name", "Missing"})
	assert.Equal(t, []string{"Mole Adriana, or Castel S. Angelo", "Castel Sant'Angelo"}, got)
}
