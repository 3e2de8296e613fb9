// Package columnar reads and writes datasets in columnar file formats:
// Apache Parquet, Apache Arrow IPC files and Avro object container files.
package columnar

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Avro is Apache Avro object container format
	Avro Format = "avro"
)

// typeKey marks the original column type in format metadata so categories
// survive a round trip through formats that only know strings.
const typeKey = "prepdash.type"

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format Format
	// Compression is the format's internal codec: snappy, zstd, gzip or
	// none for Parquet; snappy, deflate or null for Avro. Arrow ignores it.
	Compression string
	// BatchSize is the number of rows per Parquet row group or Arrow
	// record batch.
	BatchSize int
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: "snappy",
		BatchSize:   64 * 1024,
	}
}

// Write encodes ds to w in the configured format.
func Write(w io.Writer, ds *dataset.Dataset, config *WriterConfig) error {
	if config == nil {
		config = DefaultWriterConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWriterConfig().BatchSize
	}
	switch config.Format {
	case Parquet:
		return writeParquet(w, ds, config)
	case Arrow:
		return writeArrow(w, ds, config)
	case Avro:
		return writeAvro(w, ds, config)
	default:
		return fmt.Errorf("unsupported columnar format: %s", config.Format)
	}
}

// Read decodes a dataset written in format.
func Read(r io.Reader, format Format) (*dataset.Dataset, error) {
	switch format {
	case Parquet:
		return readParquet(r)
	case Arrow:
		return readArrow(r)
	case Avro:
		return readAvro(r)
	default:
		return nil, fmt.Errorf("unsupported columnar format: %s", format)
	}
}

// ParseFormat resolves a format name or file extension.
func ParseFormat(name string) (Format, bool) {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "parquet", "pq":
		return Parquet, true
	case "arrow", "feather", "ipc":
		return Arrow, true
	case "avro":
		return Avro, true
	}
	return "", false
}
