package export

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/formats/columnar"
	"github.com/ajitpratap0/prepdash/pkg/storage"
)

func processed() *dataset.Dataset {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return dataset.MustNew(
		dataset.MustColumn("price", dataset.Float, 10.0, nil, 0.5),
		dataset.MustColumn("qty", dataset.Integer, int64(3), int64(1), nil),
		dataset.MustColumn("note", dataset.String, "plain", "has,comma", nil),
		dataset.MustColumn("ok", dataset.Boolean, true, nil, false),
		dataset.MustColumn("day", dataset.Datetime, day, day.AddDate(0, 0, 1), nil),
	)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, processed()))
	want := "price,qty,note,ok,day\n" +
		"10.0,3,plain,True,2024-05-01\n" +
		",1,\"has,comma\",,2024-05-02\n" +
		"0.5,,,False,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVKeepsClockWhenNotMidnight(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	ds := dataset.MustNew(dataset.MustColumn("at", dataset.Datetime, ts, ts.Add(-8*time.Hour-30*time.Minute)))
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.Equal(t, "at\n2024-05-01 08:30:00\n2024-05-01 00:00:00\n", buf.String())
}

func TestExportJSONWithCompression(t *testing.T) {
	ds := processed()
	var buf bytes.Buffer
	opts := Options{Format: JSON, Compression: compression.Zstd}
	require.NoError(t, Export(context.Background(), &buf, ds, opts))

	r, err := compression.NewReader(&buf, compression.Zstd)
	require.NoError(t, err)
	defer r.Close()
	got, err := codec.DecodeSplit(r)
	require.NoError(t, err)
	assert.True(t, ds.Equal(got))
}

func TestExportParquetAndAvro(t *testing.T) {
	ds := processed()
	for _, f := range []Format{Parquet, Avro} {
		var buf bytes.Buffer
		require.NoError(t, Export(context.Background(), &buf, ds, Options{Format: f}))
		cf, ok := columnar.ParseFormat(string(f))
		require.True(t, ok)
		got, err := columnar.Read(&buf, cf)
		require.NoError(t, err, f)
		assert.True(t, ds.Equal(got), f)
	}
}

func TestExportXLSX(t *testing.T) {
	ds := dataset.MustNew(
		dataset.MustColumn("name", dataset.String, "a", nil),
		dataset.MustColumn("score", dataset.Float, 1.5, math.Inf(1)),
	)
	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), &buf, ds, Options{Format: XLSX}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "score"}, rows[0])
	assert.Equal(t, []string{"a", "1.5"}, rows[1])
	assert.Equal(t, []string{"", "inf"}, rows[2])
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	err := Export(context.Background(), io.Discard, processed(), Options{Format: "orc"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = Export(context.Background(), io.Discard, processed(), Options{Compression: "rar"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestFileNameAndContentType(t *testing.T) {
	assert.Equal(t, "processed_dataset.csv", FileName(Options{}))
	assert.Equal(t, "processed_dataset.csv.gz", FileName(Options{Compression: compression.Gzip}))
	assert.Equal(t, "processed_dataset.parquet.zst", FileName(Options{Format: Parquet, Compression: compression.Zstd}))

	assert.Equal(t, "text/csv; charset=utf-8", ContentType(DefaultOptions()))
	assert.Equal(t, "application/gzip", ContentType(Options{Compression: compression.Gzip}))
	assert.Equal(t, "application/octet-stream", ContentType(Options{Compression: compression.LZ4}))
}

func TestSaveToDirectory(t *testing.T) {
	dir := t.TempDir()
	st := storage.NewClient(storage.Config{}, zaptest.NewLogger(t))
	defer st.Close()

	dest, err := Save(context.Background(), st, dir+"/", processed(), Options{Compression: compression.Gzip})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "processed_dataset.csv.gz"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	r, err := compression.NewReader(bytes.NewReader(data), compression.Gzip)
	require.NoError(t, err)
	text, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(text), "price,qty,note,ok,day\n")
}
