package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/fuzzy"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/proximity"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no geomatch.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Nolli_Features.geojson", cfg.Input.Historical)
	assert.Equal(t, "OSM_Features.geojson", cfg.Input.Reference)
	assert.Empty(t, cfg.Input.Archive)
	assert.Equal(t, "proximity", cfg.Match.Mode)
	assert.Equal(t, "planar", cfg.Match.DistanceModel)
	assert.Zero(t, cfg.Match.MaxDistance)
	assert.Equal(t, "partial_ratio", cfg.Match.Scorer)
	assert.InDelta(t, 85, cfg.Match.Threshold, 0.001)
	assert.Equal(t, "name", cfg.Match.KeyField)
	assert.Equal(t, []string{"Nolli Name", "Unravelled Name", "Modern Name"}, cfg.Match.NameFields)
	assert.Equal(t, "Nolli Number", cfg.Match.IDField)
	assert.Equal(t, 1, cfg.Match.Workers)
	assert.Equal(t, "unmatched.json", cfg.Output.JSON)
	assert.Equal(t, "matched.geojson", cfg.Output.GeoJSON)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Burst)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("match"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
input:
  archive: nolli.zip
match:
  mode: combined
  distance_model: geodesic
  max_distance: 250
  scorer: token_set
  threshold: 90
  workers: 4
store:
  driver: sqlite
  dsn: matches.db
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geomatch.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nolli.zip", cfg.Input.Archive)
	assert.Equal(t, "combined", cfg.Match.Mode)
	assert.Equal(t, "geodesic", cfg.Match.DistanceModel)
	assert.InDelta(t, 250, cfg.Match.MaxDistance, 0.001)
	assert.Equal(t, 4, cfg.Match.Workers)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "name", cfg.Match.KeyField)
	assert.NoError(t, cfg.Validate("match"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
match:
  mode: fuzzy
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geomatch.yaml"), []byte(yaml), 0644))

	t.Setenv("GEOMATCH_MATCH_MODE", "proximity")
	t.Setenv("GEOMATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "proximity", cfg.Match.Mode)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GEOMATCH_SERVER_PORT", "3000")
	t.Setenv("GEOMATCH_MATCH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Match.Workers)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geomatch.yaml"), []byte("match: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zapcore.WarnLevel))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Input: InputConfig{Historical: "nolli.geojson", Reference: "osm.geojson"},
		Match: MatchConfig{
			Mode:          "proximity",
			DistanceModel: "planar",
			Scorer:        "partial_ratio",
			Threshold:     85,
			KeyField:      "name",
			NameFields:    []string{"Nolli Name"},
			IDField:       "Nolli Number",
			Workers:       1,
		},
		Store:  StoreConfig{Driver: "none"},
		Server: ServerConfig{Port: 8080, RateLimit: 5, Burst: 10, MaxBodyMB: 64},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

func TestLinkage(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.Mode = "fuzzy"
	cfg.Match.MaxDistance = 12.5

	lc := cfg.Linkage()
	assert.Equal(t, linkage.ModeFuzzy, lc.Mode)
	assert.Equal(t, proximity.Planar, lc.DistanceModel)
	assert.Equal(t, fuzzy.ScorerPartialRatio, lc.Scorer)
	assert.InDelta(t, 12.5, lc.MaxDistance, 1e-9)
	assert.Equal(t, []string{"Nolli Name"}, lc.NameFields)

	lc.NameFields[0] = "changed"
	assert.Equal(t, "Nolli Name", cfg.Match.NameFields[0])
}

func TestValidateMatch_MissingInputs(t *testing.T) {
	cfg := validDefaults()
	cfg.Input = InputConfig{}

	err := cfg.Validate("match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.historical is required")
	assert.Contains(t, err.Error(), "input.reference is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_RateLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.RateLimit = 0
	cfg.Server.Burst = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.rate_limit must be > 0")
	assert.Contains(t, err.Error(), "server.burst must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Match.Workers = 0
	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.workers must be between 1 and 64")

	cfg.Match.Workers = 65
	assert.Error(t, cfg.Validate("match"))

	cfg.Match.Workers = 64
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateStore(t *testing.T) {
	tests := []struct {
		driver, dsn string
		errMsg      string
	}{
		{"", "", ""},
		{"none", "", ""},
		{"sqlite", "geomatch.db", ""},
		{"sqlite", "", "store.dsn is required"},
		{"postgres", "", "store.dsn is required"},
		{"mongo", "x", "store.driver must be one of"},
	}
	for _, tt := range tests {
		cfg := validDefaults()
		cfg.Store = StoreConfig{Driver: tt.driver, DSN: tt.dsn}
		err := cfg.Validate("match")
		if tt.errMsg == "" {
			assert.NoError(t, err, tt.driver)
			continue
		}
		require.Error(t, err, tt.driver)
		assert.Contains(t, err.Error(), tt.errMsg)
	}
}

func TestValidateMatchSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.Mode = "combined"
	cfg.Match.Threshold = 120

	err := cfg.Validate("match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold must be within 0-100")

	cfg = validDefaults()
	cfg.Match.DistanceModel = "manhattan"
	err = cfg.Validate("match")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown distance model")
}
