package dataset

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ExtractFiles extracts the named members of a ZIP archive into destDir and
// returns their paths in the order requested. Every name must be present.
func ExtractFiles(zipPath string, names []string, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return paths, eris.Errorf("zip: file %q not found in archive %s", name, zipPath)
		}
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return paths, err
		}
		zap.L().Debug("zip: extracted", zap.String("member", name), zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

// ExtractZIPFile extracts a single file from a ZIP archive by name.
func ExtractZIPFile(zipPath, fileName, destDir string) (string, error) {
	paths, err := ExtractFiles(zipPath, []string{fileName}, destDir)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// extractZIPEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path. Directory entries are an error.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		return "", eris.Errorf("zip: %q is a directory", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
