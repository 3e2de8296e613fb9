package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderKeepsLargeIntegers(t *testing.T) {
	var v []interface{}
	require.NoError(t, NewDecoder(bytes.NewReader([]byte(`[9007199254740993, 1.5]`))).Decode(&v))
	require.Len(t, v, 2)

	n, ok := v[0].(Number)
	require.True(t, ok)
	i, err := n.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), i)
}

func TestEncodeLeavesHTMLUnescaped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, map[string]string{"m": "a<b"}))
	assert.Equal(t, "{\"m\":\"a<b\"}\n", buf.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}
