// Package source loads datasets from files, object stores and PostgreSQL.
package source

import (
	"context"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/formats/columnar"
	"github.com/ajitpratap0/prepdash/pkg/storage"
)

// Loader resolves a source URI into a dataset.
//
// File and object locations are decoded by extension: .csv as CSV with a
// header row, .json as a split document, .parquet, .arrow and .avro through
// the columnar readers. A trailing compression extension
// (.gz, .zst, .lz4, .sz, .s2) is unwrapped first. postgres:// and
// postgresql:// URIs run a table scan or query; see LoadPostgres.
type Loader struct {
	storage *storage.Client
	maxRows int
	logger  *zap.Logger
}

// NewLoader creates a loader. maxRows caps database reads; zero means no cap.
func NewLoader(st *storage.Client, maxRows int, logger *zap.Logger) *Loader {
	return &Loader{storage: st, maxRows: maxRows, logger: logger.With(zap.String("component", "source"))}
}

// Load reads the dataset at uri.
func (l *Loader) Load(ctx context.Context, uri string) (*dataset.Dataset, error) {
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		return l.LoadPostgres(ctx, uri)
	}

	name, alg := splitCompression(uri)
	rc, err := l.storage.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := compression.NewReader(rc, alg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "failed to open compressed source").WithDetail("source", uri)
	}
	defer r.Close()

	ds, err := Decode(r, path.Ext(name))
	if err != nil {
		return nil, err
	}
	rows, cols := ds.Shape()
	l.logger.Info("dataset loaded", zap.String("source", uri), zap.Int("rows", rows), zap.Int("columns", cols))
	return ds, nil
}

// Decode reads a dataset in the format named by ext.
func Decode(r io.Reader, ext string) (*dataset.Dataset, error) {
	switch strings.ToLower(ext) {
	case ".csv", ".txt", "":
		return codec.DecodeCSV(r)
	case ".json":
		return codec.DecodeSplit(r)
	}
	format, ok := columnar.ParseFormat(ext)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported source format %q", ext)
	}
	ds, err := columnar.Read(r, format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "failed to read "+string(format)+" source")
	}
	return ds, nil
}

// splitCompression strips a known compression extension from uri.
func splitCompression(uri string) (string, compression.Algorithm) {
	ext := strings.TrimPrefix(path.Ext(uri), ".")
	for _, alg := range compression.Algorithms {
		if alg != compression.None && alg.Extension() == ext {
			return strings.TrimSuffix(uri, "."+ext), alg
		}
	}
	return uri, compression.None
}
