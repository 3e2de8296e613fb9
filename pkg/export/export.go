// Package export writes processed datasets as downloadable files.
//
// CSV is the default and mirrors the dashboard download: a header row, no
// index column, empty fields for missing cells. JSON uses the split document;
// Parquet and Avro go through pkg/formats/columnar; XLSX is written with
// excelize. Any format may be wrapped in a compression stream.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/formats/columnar"
	"github.com/ajitpratap0/prepdash/pkg/logger"
	"github.com/ajitpratap0/prepdash/pkg/storage"
)

// BaseName is the stem of every exported file name.
const BaseName = "processed_dataset"

// Format is an export file format.
type Format string

const (
	CSV     Format = "csv"
	JSON    Format = "json"
	Parquet Format = "parquet"
	Avro    Format = "avro"
	XLSX    Format = "xlsx"
)

// Formats lists the supported export formats.
var Formats = []Format{CSV, JSON, Parquet, Avro, XLSX}

// ParseFormat resolves a format name; the empty string means CSV.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CSV, nil
	}
	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeValidation, "unsupported export format: %s", name).
		WithDetail("format", name)
}

// ContentType returns the MIME type of an uncompressed file in this format.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case JSON:
		return "application/json"
	case Parquet:
		return "application/vnd.apache.parquet"
	case Avro:
		return "application/avro"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Options selects the file format and outer compression.
type Options struct {
	Format      Format                `yaml:"format" json:"format"`
	Compression compression.Algorithm `yaml:"compression" json:"compression"`
	Level       compression.Level     `yaml:"level" json:"level"`
}

// DefaultOptions returns uncompressed CSV.
func DefaultOptions() Options {
	return Options{Format: CSV, Compression: compression.None, Level: compression.Default}
}

func (o Options) normalized() (Options, error) {
	f, err := ParseFormat(string(o.Format))
	if err != nil {
		return o, err
	}
	alg, err := compression.ParseAlgorithm(string(o.Compression))
	if err != nil {
		return o, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported export compression").
			WithDetail("compression", string(o.Compression))
	}
	o.Format, o.Compression = f, alg
	if o.Level == 0 {
		o.Level = compression.Default
	}
	return o, nil
}

// FileName returns processed_dataset.<format>[.<compression>].
func FileName(opts Options) string {
	opts, err := opts.normalized()
	if err != nil {
		return BaseName
	}
	name := BaseName + "." + string(opts.Format)
	if ext := opts.Compression.Extension(); ext != "" {
		name += "." + ext
	}
	return name
}

// ContentType returns the MIME type of the file Export produces.
func ContentType(opts Options) string {
	opts, err := opts.normalized()
	if err != nil {
		return "application/octet-stream"
	}
	switch opts.Compression {
	case compression.None:
		return opts.Format.ContentType()
	case compression.Gzip:
		return "application/gzip"
	case compression.Zstd:
		return "application/zstd"
	}
	return "application/octet-stream"
}

// Export encodes ds to w.
func Export(ctx context.Context, w io.Writer, ds *dataset.Dataset, opts Options) error {
	opts, err := opts.normalized()
	if err != nil {
		return err
	}
	cw, err := compression.NewWriter(w, opts.Compression, opts.Level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create compressor")
	}

	switch opts.Format {
	case CSV:
		err = WriteCSV(cw, ds)
	case JSON:
		err = codec.EncodeSplit(cw, ds)
	case Parquet:
		err = columnar.Write(cw, ds, &columnar.WriterConfig{Format: columnar.Parquet, Compression: "snappy"})
	case Avro:
		err = columnar.Write(cw, ds, &columnar.WriterConfig{Format: columnar.Avro, Compression: "null"})
	case XLSX:
		err = WriteXLSX(cw, ds)
	}
	if err != nil {
		cw.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to write %s export", opts.Format))
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush export")
	}

	rows, cols := ds.Shape()
	logger.WithContext(ctx).Debug("dataset exported",
		zap.String("format", string(opts.Format)),
		zap.String("compression", string(opts.Compression)),
		zap.Int("rows", rows),
		zap.Int("columns", cols))
	return nil
}

// Save exports ds to a file path or object store URI. When uri ends in "/"
// the default file name is appended. It returns the final destination.
func Save(ctx context.Context, st *storage.Client, uri string, ds *dataset.Dataset, opts Options) (string, error) {
	if strings.HasSuffix(uri, "/") {
		uri += FileName(opts)
	}
	wc, err := st.Create(ctx, uri, ContentType(opts))
	if err != nil {
		return "", err
	}
	if err := Export(ctx, wc, ds, opts); err != nil {
		wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to finish export").WithDetail("destination", uri)
	}
	return uri, nil
}
