// Package testutil provides testing utilities and dataset fixtures for
// prepdash packages.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout, cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// WriteFile writes content under a fresh temp dir and returns its path.
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// SalesCSV is a small upload with one missing price, a category column and
// an integer quantity.
const SalesCSV = "price,city,qty\n10.0,Oslo,1\n,Lima,2\n30.0,Oslo,3\n"

// Sales is SalesCSV as a typed dataset.
func Sales() *dataset.Dataset {
	return dataset.MustNew(
		dataset.MustColumn("price", dataset.Float, 10.0, nil, 30.0),
		dataset.MustColumn("city", dataset.String, "Oslo", "Lima", "Oslo"),
		dataset.MustColumn("qty", dataset.Integer, int64(1), int64(2), int64(3)),
	)
}

// Numbered returns n rows with an integer feature x = 0..n-1 and a label
// y alternating "a" and "b".
func Numbered(n int) *dataset.Dataset {
	xs := make([]any, n)
	ys := make([]any, n)
	for i := range xs {
		xs[i] = int64(i)
		if i%2 == 0 {
			ys[i] = "a"
		} else {
			ys[i] = "b"
		}
	}
	return dataset.MustNew(
		dataset.MustColumn("x", dataset.Integer, xs...),
		dataset.MustColumn("y", dataset.String, ys...),
	)
}
