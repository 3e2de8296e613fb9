package columnar

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

func sampleDataset() *dataset.Dataset {
	t0 := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return dataset.MustNew(
		dataset.MustColumn("id", dataset.Integer, int64(1), int64(2), nil, int64(4)),
		dataset.MustColumn("score", dataset.Float, 1.5, nil, math.Inf(1), -2.25),
		dataset.MustColumn("city name", dataset.String, "Oslo", "Lima", nil, "Pune"),
		dataset.MustColumn("grade", dataset.Category, "A", "B", "A", nil),
		dataset.MustColumn("active", dataset.Boolean, true, false, nil, true),
		dataset.MustColumn("seen", dataset.Datetime, t0, nil, t0.Add(48*time.Hour), t0.Add(time.Second)),
	)
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{Parquet, Arrow, Avro} {
		t.Run(string(format), func(t *testing.T) {
			ds := sampleDataset()
			var buf bytes.Buffer
			cfg := DefaultWriterConfig()
			cfg.Format = format
			cfg.BatchSize = 3
			require.NoError(t, Write(&buf, ds, cfg))

			got, err := Read(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, ds.Names(), got.Names())
			for _, col := range ds.Columns() {
				other, ok := got.Column(col.Name())
				require.True(t, ok)
				assert.Equal(t, col.Type(), other.Type(), col.Name())
				assert.True(t, col.Equal(other), "column %s differs", col.Name())
			}
		})
	}
}

func TestRoundTripEmptyDataset(t *testing.T) {
	ds := dataset.MustNew(dataset.MustColumn("x", dataset.Float))
	for _, format := range []Format{Parquet, Arrow, Avro} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, ds, &WriterConfig{Format: format}))
		got, err := Read(&buf, format)
		require.NoError(t, err, format)
		assert.Equal(t, 0, got.NumRows())
		assert.Equal(t, []string{"x"}, got.Names())
	}
}

func TestParquetCompressionCodecs(t *testing.T) {
	for _, codec := range []string{"none", "gzip", "zstd", "snappy"} {
		var buf bytes.Buffer
		cfg := &WriterConfig{Format: Parquet, Compression: codec}
		require.NoError(t, Write(&buf, sampleDataset(), cfg), codec)
		got, err := Read(&buf, Parquet)
		require.NoError(t, err, codec)
		assert.Equal(t, 4, got.NumRows())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, sampleDataset(), &WriterConfig{Format: "orc"})
	assert.Error(t, err)
	_, err = Read(bytes.NewReader(nil), "orc")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat(".PARQUET")
	assert.True(t, ok)
	assert.Equal(t, Parquet, f)
	f, ok = ParseFormat("feather")
	assert.True(t, ok)
	assert.Equal(t, Arrow, f)
	_, ok = ParseFormat("csv")
	assert.False(t, ok)
}
