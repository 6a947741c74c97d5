// Package dataset reads feature collections from GeoJSON, JSON and
// shapefile inputs, optionally extracting them from a ZIP archive first.
package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Dataset is a loaded feature collection.
type Dataset struct {
	Path     string
	Features []*geojson.Feature
	// Excluded counts features dropped because they had no geometry.
	Excluded int
}

// Load reads the features stored at path. The format follows the file
// extension: .geojson and .json are GeoJSON documents, .shp is a shapefile.
// Features without geometry are excluded.
func Load(ctx context.Context, path string) (*Dataset, error) {
	var (
		features []*geojson.Feature
		err      error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		features, err = loadJSON(ctx, path)
	case ".shp":
		features, err = ReadShapefile(path)
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: load %s", path)
	}

	ds := &Dataset{Path: path}
	ds.Features, ds.Excluded = WithGeometry(features)

	zap.L().Info("dataset: loaded",
		zap.String("path", path),
		zap.Int("features", len(ds.Features)),
		zap.Int("excluded", ds.Excluded),
	)
	return ds, nil
}

// WithGeometry returns the features that carry a geometry, in order, and the
// number of features left out.
func WithGeometry(features []*geojson.Feature) ([]*geojson.Feature, int) {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		out = append(out, f)
	}
	return out, len(features) - len(out)
}

func loadJSON(ctx context.Context, path string) ([]*geojson.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open")
	}
	defer f.Close() //nolint:errcheck
	return DecodeFeatures(ctx, f)
}

// LoadFromArchive extracts the named members of a ZIP archive into destDir
// and loads each of them. Shapefile members should be listed with their
// sidecar files (.shx, .dbf) so the reader can find them.
func LoadFromArchive(ctx context.Context, zipPath string, members []string, destDir string) (map[string]*Dataset, error) {
	paths, err := ExtractFiles(zipPath, members, destDir)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: extract archive")
	}

	out := make(map[string]*Dataset)
	for i, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".geojson", ".json", ".shp":
		default:
			continue
		}
		ds, err := Load(ctx, p)
		if err != nil {
			return nil, err
		}
		out[members[i]] = ds
	}
	return out, nil
}
