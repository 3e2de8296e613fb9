package columnar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

func writeParquet(w io.Writer, ds *dataset.Dataset, config *WriterConfig) error {
	pool := memory.NewGoAllocator()
	schema := arrowSchema(ds)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(parquetCompression(config.Compression)),
		parquet.WithMaxRowGroupLength(int64(config.BatchSize)),
		parquet.WithAllocator(pool),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	for _, rec := range records(ds, schema, config.BatchSize) {
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Close()
			return fmt.Errorf("failed to write row group: %w", err)
		}
	}
	return fw.Close()
}

func readParquet(r io.Reader) (*dataset.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet data: %w", err)
	}
	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet reader: %w", err)
	}
	defer fr.Close()

	pool := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}
	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet table: %w", err)
	}
	defer table.Release()

	schema := table.Schema()
	chunks := make([][]arrow.Array, len(schema.Fields()))
	for j := range chunks {
		chunks[j] = table.Column(j).Data().Chunks()
	}
	return columnsFromArrow(schema, chunks)
}

func parquetCompression(name string) compress.Compression {
	switch strings.ToLower(name) {
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "brotli":
		return compress.Codecs.Brotli
	default:
		return compress.Codecs.Snappy
	}
}
