package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("price,category\n10.0,A\n20.0,B\n", 200))

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)

			packed, err := comp.Compress(data)
			require.NoError(t, err)
			if alg != None {
				assert.Less(t, len(packed), len(data))
			}

			unpacked, err := comp.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, data, unpacked)
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, LZ4, Best)
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello, lz4")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(&buf, LZ4)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello, lz4", string(out))
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	a, err = ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, "zst", a.Extension())

	_, err = ParseAlgorithm("brotli")
	require.Error(t, err)
}
