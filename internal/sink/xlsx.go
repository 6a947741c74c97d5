package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
)

// XLSXFile writes the flat list as a spreadsheet with one row per feature and
// one column per property key. Nested values are written as JSON text.
type XLSXFile struct {
	Path  string
	Sheet string
}

// Write implements Sink.
func (s XLSXFile) Write(_ context.Context, runID string, out *linkage.Output) error {
	sheetName := s.Sheet
	if sheetName == "" {
		sheetName = "matches"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	columns := propertyColumns(out)
	header := sheet.AddRow()
	for _, c := range append([]string{"x", "y"}, columns...) {
		header.AddCell().SetString(c)
	}

	recs, err := records(out)
	if err != nil {
		return err
	}
	for i, feat := range out.Flat {
		row := sheet.AddRow()
		if pt := recs[i].Point; pt != nil {
			row.AddCell().SetFloat(pt.X())
			row.AddCell().SetFloat(pt.Y())
		} else {
			row.AddCell()
			row.AddCell()
		}
		for _, c := range columns {
			if err := setCell(row.AddCell(), feat.Properties[c]); err != nil {
				return eris.Wrapf(err, "xlsx: column %q", c)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return eris.Wrap(err, "xlsx: create parent directory")
	}
	if err := f.Save(s.Path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", s.Path)
	}
	zap.L().Info("sink: wrote spreadsheet", zap.String("run_id", runID), zap.String("path", s.Path), zap.Int("rows", len(out.Flat)))
	return nil
}

func propertyColumns(out *linkage.Output) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, f := range out.Flat {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	return cols
}

func setCell(cell *xlsx.Cell, v any) error {
	switch t := v.(type) {
	case nil:
		cell.SetString("")
	case string:
		cell.SetString(t)
	case float64:
		cell.SetFloat(t)
	case int:
		cell.SetInt(t)
	case bool:
		cell.SetString(fmt.Sprint(t))
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		cell.SetString(string(data))
	}
	return nil
}
