package sink

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
)

// Report summarizes a run for humans.
type Report struct {
	RunID      string            `yaml:"run_id"`
	StartedAt  time.Time         `yaml:"started_at"`
	Duration   string            `yaml:"duration"`
	Mode       string            `yaml:"mode"`
	Distance   string            `yaml:"distance_model"`
	Historical string            `yaml:"historical,omitempty"`
	Reference  string            `yaml:"reference,omitempty"`
	Outputs    map[string]string `yaml:"outputs,omitempty"`
	Stats      linkage.Stats     `yaml:"stats"`
}

// WriteReport writes r to path as YAML.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "report: marshal")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create parent directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "report: unmarshal")
	}
	return &r, nil
}
