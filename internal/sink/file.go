package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
)

// JSONFile writes the flat list of processed features as a JSON array. The
// file can be loaded again as the historical input of a later run.
type JSONFile struct {
	Path string
}

// Write implements Sink.
func (s JSONFile) Write(_ context.Context, runID string, out *linkage.Output) error {
	if err := writeJSON(s.Path, out.Flat); err != nil {
		return err
	}
	zap.L().Info("sink: wrote flat features", zap.String("run_id", runID), zap.String("path", s.Path), zap.Int("features", len(out.Flat)))
	return nil
}

// GeoJSONFile writes the paired FeatureCollection.
type GeoJSONFile struct {
	Path string
}

// Write implements Sink.
func (s GeoJSONFile) Write(_ context.Context, runID string, out *linkage.Output) error {
	if err := writeJSON(s.Path, out.Paired); err != nil {
		return err
	}
	zap.L().Info("sink: wrote paired features", zap.String("run_id", runID), zap.String("path", s.Path), zap.Int("features", len(out.Paired.Features)))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "sink: encode %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "sink: create parent directory")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "sink: write %s", path)
	}
	return nil
}
