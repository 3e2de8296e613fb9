package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		uri  string
		want Location
	}{
		{"data/raw.csv", Location{Scheme: SchemeFile, Path: "data/raw.csv"}},
		{"file:///tmp/x.csv", Location{Scheme: SchemeFile, Path: "/tmp/x.csv"}},
		{"s3://bucket/exports/out.csv", Location{Scheme: SchemeS3, Bucket: "bucket", Path: "exports/out.csv"}},
		{"gs://bucket/a/b.parquet", Location{Scheme: SchemeGCS, Bucket: "bucket", Path: "a/b.parquet"}},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseLocation(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "s3://bucket", "ftp://host/x"} {
		_, err := ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestFileRoundTrip(t *testing.T) {
	c := NewClient(Config{}, zaptest.NewLogger(t))
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	w, err := c.Create(context.Background(), path, "text/csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "a,b\n1,2\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := c.Open(context.Background(), "file://"+path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = c.Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
