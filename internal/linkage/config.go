package linkage

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/fuzzy"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/proximity"
)

// Mode selects which matchers a run drives.
type Mode string

const (
	// ModeProximity links each query to its nearest reference feature.
	ModeProximity Mode = "proximity"
	// ModeFuzzy links each query by name similarity only and records the
	// score under Match_Score, marking the query resolved for later runs.
	ModeFuzzy Mode = "fuzzy"
	// ModeCombined runs proximity linking and also records the best name
	// match. Pairing follows the proximity match.
	ModeCombined Mode = "combined"
)

// ParseMode converts a configuration string into a Mode. The empty string
// selects ModeProximity.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeProximity, nil
	case ModeProximity, ModeFuzzy, ModeCombined:
		return m, nil
	default:
		return "", eris.Errorf("linkage: unknown mode %q", s)
	}
}

// Config controls a linkage run.
type Config struct {
	Mode          Mode
	DistanceModel proximity.DistanceModel
	// MaxDistance rejects proximity matches farther than this, in the
	// distance model's units. Zero accepts any nearest candidate.
	MaxDistance float64
	Scorer      fuzzy.Scorer
	// Threshold is the minimum acceptable fuzzy score (0-100).
	Threshold float64
	// KeyField is the reference property compared against query names.
	KeyField string
	// NameFields are the query properties holding candidate names.
	NameFields []string
	// IDField is the query property used to identify features in logs.
	IDField string
	Workers int
}

// MaxWorkers bounds Config.Workers.
const MaxWorkers = 64

// DefaultConfig mirrors the reference Nolli/OSM run.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeProximity,
		DistanceModel: proximity.Planar,
		Scorer:        fuzzy.ScorerPartialRatio,
		Threshold:     85,
		KeyField:      "name",
		NameFields:    []string{"Nolli Name", "Unravelled Name", "Modern Name"},
		IDField:       "Nolli Number",
		Workers:       1,
	}
}

func (c *Config) normalize() error {
	mode, err := ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	c.Mode = mode

	dm, err := proximity.ParseDistanceModel(string(c.DistanceModel))
	if err != nil {
		return eris.Wrap(err, "linkage: config")
	}
	c.DistanceModel = dm

	if c.MaxDistance < 0 {
		return eris.Errorf("linkage: max distance must not be negative, got %v", c.MaxDistance)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Workers > MaxWorkers {
		return eris.Errorf("linkage: workers must not exceed %d, got %d", MaxWorkers, c.Workers)
	}

	if c.Mode == ModeProximity {
		return nil
	}
	if c.Scorer == "" {
		c.Scorer = fuzzy.ScorerPartialRatio
	}
	sc, err := fuzzy.ParseScorer(string(c.Scorer))
	if err != nil {
		return eris.Wrap(err, "linkage: config")
	}
	c.Scorer = sc
	if c.Threshold < 0 || c.Threshold > 100 {
		return eris.Errorf("linkage: threshold must be within 0-100, got %v", c.Threshold)
	}
	if c.KeyField == "" {
		return eris.New("linkage: key field is required for name matching")
	}
	if len(c.NameFields) == 0 {
		return eris.New("linkage: at least one name field is required for name matching")
	}
	return nil
}
