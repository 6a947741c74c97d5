package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/fuzzy"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/proximity"
)

// Config holds the full application configuration.
type Config struct {
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Match  MatchConfig  `yaml:"match" mapstructure:"match"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the historical and reference datasets. When Archive is
// set, Historical and Reference name members of the archive.
type InputConfig struct {
	Historical string `yaml:"historical" mapstructure:"historical"`
	Reference  string `yaml:"reference" mapstructure:"reference"`
	Archive    string `yaml:"archive" mapstructure:"archive"`
	ExtractDir string `yaml:"extract_dir" mapstructure:"extract_dir"`
}

// MatchConfig controls the linkage run.
type MatchConfig struct {
	Mode          string   `yaml:"mode" mapstructure:"mode"`
	DistanceModel string   `yaml:"distance_model" mapstructure:"distance_model"`
	MaxDistance   float64  `yaml:"max_distance" mapstructure:"max_distance"`
	Scorer        string   `yaml:"scorer" mapstructure:"scorer"`
	Threshold     float64  `yaml:"threshold" mapstructure:"threshold"`
	KeyField      string   `yaml:"key_field" mapstructure:"key_field"`
	NameFields    []string `yaml:"name_fields" mapstructure:"name_fields"`
	IDField       string   `yaml:"id_field" mapstructure:"id_field"`
	Workers       int      `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig lists the files written after a run. Empty paths are skipped.
type OutputConfig struct {
	JSON    string `yaml:"json" mapstructure:"json"`
	GeoJSON string `yaml:"geojson" mapstructure:"geojson"`
	XLSX    string `yaml:"xlsx" mapstructure:"xlsx"`
	Report  string `yaml:"report" mapstructure:"report"`
}

// StoreConfig selects an optional database sink.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
	Table  string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyMB      int      `yaml:"max_body_mb" mapstructure:"max_body_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("geomatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.historical", "Nolli_Features.geojson")
	v.SetDefault("input.reference", "OSM_Features.geojson")
	v.SetDefault("input.extract_dir", "data")
	v.SetDefault("match.mode", string(linkage.ModeProximity))
	v.SetDefault("match.distance_model", string(proximity.Planar))
	v.SetDefault("match.max_distance", 0)
	v.SetDefault("match.scorer", string(fuzzy.ScorerPartialRatio))
	v.SetDefault("match.threshold", 85)
	v.SetDefault("match.key_field", "name")
	v.SetDefault("match.name_fields", []string{"Nolli Name", "Unravelled Name", "Modern Name"})
	v.SetDefault("match.id_field", "Nolli Number")
	v.SetDefault("match.workers", 1)
	v.SetDefault("output.json", "unmatched.json")
	v.SetDefault("output.geojson", "matched.geojson")
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.table", "matches")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_mb", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Linkage converts the match section into a linkage configuration.
func (c *Config) Linkage() linkage.Config {
	return linkage.Config{
		Mode:          linkage.Mode(c.Match.Mode),
		DistanceModel: proximity.DistanceModel(c.Match.DistanceModel),
		MaxDistance:   c.Match.MaxDistance,
		Scorer:        fuzzy.Scorer(c.Match.Scorer),
		Threshold:     c.Match.Threshold,
		KeyField:      c.Match.KeyField,
		NameFields:    append([]string(nil), c.Match.NameFields...),
		IDField:       c.Match.IDField,
		Workers:       c.Match.Workers,
	}
}

// Validate checks the settings needed by the given command mode ("match" or
// "serve").
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "match":
		if c.Input.Historical == "" {
			problems = append(problems, "input.historical is required")
		}
		if c.Input.Reference == "" {
			problems = append(problems, "input.reference is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			problems = append(problems, "server.rate_limit must be > 0")
		}
		if c.Server.Burst < 1 {
			problems = append(problems, "server.burst must be >= 1")
		}
		if c.Server.MaxBodyMB < 1 {
			problems = append(problems, "server.max_body_mb must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Match.Workers < 1 || c.Match.Workers > linkage.MaxWorkers {
		problems = append(problems, fmt.Sprintf("match.workers must be between 1 and %d", linkage.MaxWorkers))
	}

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required for store.driver "+c.Store.Driver)
		}
	default:
		problems = append(problems, "store.driver must be one of none, sqlite, postgres")
	}

	if _, err := linkage.New(c.Linkage()); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger installs the global zap logger. Sampling is disabled because a
// run logs one outcome per unmatched feature and every line is needed to
// audit the linkage.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Sampling = nil
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger.With(zap.String("app", "geomatch")))
	return nil
}
