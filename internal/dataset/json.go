package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// decodeArray streams the elements of a JSON array to a channel.
// Both channels are closed when processing completes.
func decodeArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// DecodeFeatures reads GeoJSON features from r. The document may be a
// FeatureCollection, a single Feature, or a bare array of features such as
// the flat output of an earlier run.
func DecodeFeatures(ctx context.Context, r io.Reader) ([]*geojson.Feature, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, err
	}

	if first == '[' {
		ch, errCh := decodeArray[*geojson.Feature](ctx, br)
		var features []*geojson.Feature
		for f := range ch {
			features = append(features, f)
		}
		for err := range errCh {
			return nil, err
		}
		return features, nil
	}

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, eris.Wrap(err, "json: read document")
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}

	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(raw, &fc); err != nil {
			return nil, eris.Wrap(err, "json: decode feature collection")
		}
		return fc.Features, nil
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, eris.Wrap(err, "json: decode feature")
		}
		return []*geojson.Feature{&f}, nil
	default:
		return nil, eris.Errorf("json: unsupported GeoJSON type %q", head.Type)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, eris.New("json: empty document")
			}
			return 0, eris.Wrap(err, "json: read document")
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, eris.Wrap(err, "json: read document")
		}
		return b, nil
	}
}
