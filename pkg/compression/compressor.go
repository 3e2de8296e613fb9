// Package compression wraps the compression codecs prepdash uses for
// exported files and for datasets held in the Redis store.
//
// Every algorithm is exposed the same way: NewWriter wraps a destination,
// NewReader wraps a source, and a Compressor built by NewCompressor handles
// whole buffers.
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Default,
//	})
//	packed, err := comp.Compress(data)
//	original, err := comp.Decompress(packed)
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip/Deflate
// Compression ratio (best to worst): Zstd > Gzip/Deflate > Snappy/S2 > LZ4
package compression

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate}

// ParseAlgorithm resolves an algorithm name; the empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for _, a := range Algorithms {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", name)
}

// Extension returns the conventional file suffix, without the dot, or ""
// for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return "gz"
	case Snappy:
		return "sz"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zst"
	case S2:
		return "s2"
	case Deflate:
		return "deflate"
	}
	return ""
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`
	Level     Level     `yaml:"level" json:"level"`
}

// DefaultConfig returns the configuration used for store snapshots.
func DefaultConfig() *Config {
	return &Config{Algorithm: Zstd, Level: Default}
}

// NewWriter wraps w so that bytes written are compressed. Close flushes the
// compressor but does not close w.
func NewWriter(w io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, mapGzipLevel(level))
	case Deflate:
		return flate.NewWriter(w, mapGzipLevel(level))
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		opts := []s2.WriterOption{}
		if level >= Better {
			opts = append(opts, s2.WriterBetterCompression())
		}
		return s2.NewWriter(w, opts...), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewReader wraps r so that reads return decompressed bytes.
func NewReader(r io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Deflate:
		return flate.NewReader(r), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// Compressor compresses and decompresses whole buffers.
// Implementations are safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
	Level() Level
}

// NewCompressor creates a compressor; a nil config uses DefaultConfig.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if _, err := ParseAlgorithm(string(config.Algorithm)); err != nil {
		return nil, err
	}
	level := config.Level
	if level == 0 {
		level = Default
	}
	return &streamCompressor{algorithm: config.Algorithm, level: level}, nil
}

type streamCompressor struct {
	algorithm Algorithm
	level     Level
}

func (c *streamCompressor) Algorithm() Algorithm { return c.algorithm }
func (c *streamCompressor) Level() Level         { return c.level }

func (c *streamCompressor) Compress(data []byte) ([]byte, error) {
	if c.algorithm == None {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, c.algorithm, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *streamCompressor) Decompress(data []byte) ([]byte, error) {
	if c.algorithm == None {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), c.algorithm)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Better:
		return 7
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Better:
		return lz4.Level6
	case Best:
		return lz4.Level9
	default:
		return lz4.Level4
	}
}
