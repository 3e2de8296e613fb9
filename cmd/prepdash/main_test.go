package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/prepdash/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "prepdash v"+version)
}

func TestRunCommand(t *testing.T) {
	input := testutil.WriteFile(t, "sales.csv", []byte(testutil.SalesCSV))
	recipe := testutil.WriteFile(t, "recipe.yaml", []byte(`name: sales
steps:
  - step: missing
    params: {column: price, method: mean}
  - step: normalize
    params: {columns: [qty]}
`))
	outDir := t.TempDir() + "/"

	out, err := execute(t, "run", "--input", input, "--recipe", recipe, "--output", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Filled missing price with mean.")
	assert.Contains(t, out, "Applied min-max normalization to: qty.")
	assert.Contains(t, out, "Shape: 3 rows, 3 columns")

	data, err := os.ReadFile(filepath.Join(outDir, "processed_dataset.csv"))
	require.NoError(t, err)
	assert.Equal(t, "price,city,qty\n10.0,Oslo,0.0\n20.0,Lima,0.5\n30.0,Oslo,1.0\n", string(data))
}

func TestRunCommandStopsAtFailure(t *testing.T) {
	input := testutil.WriteFile(t, "sales.csv", []byte(testutil.SalesCSV))
	recipe := testutil.WriteFile(t, "recipe.yaml", []byte(`steps:
  - step: missing
    params: {column: city, method: median}
`))
	outDir := t.TempDir() + "/"

	out, err := execute(t, "run", "--input", input, "--recipe", recipe, "--output", outDir)
	require.Error(t, err)
	assert.Contains(t, out, "Error: ")
	_, statErr := os.Stat(filepath.Join(outDir, "processed_dataset.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCommandUnknownStep(t *testing.T) {
	input := testutil.WriteFile(t, "sales.csv", []byte(testutil.SalesCSV))
	recipe := testutil.WriteFile(t, "recipe.yaml", []byte("steps:\n  - step: shuffle\n"))

	_, err := execute(t, "run", "--input", input, "--recipe", recipe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shuffle")
}

func TestDescribeCommand(t *testing.T) {
	input := testutil.WriteFile(t, "sales.csv", []byte(testutil.SalesCSV))

	out, err := execute(t, "describe", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Rows: 3 | Columns: 3 | Total missing values: 1")
	assert.Contains(t, out, "Oslo (2)")

	out, err = execute(t, "describe", input, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_missing": 1`)
}

func TestLoadConfigPrecedence(t *testing.T) {
	file := testutil.WriteFile(t, "prepdash.yaml", []byte(`server:
  addr: ":9000"
  read_timeout: 45s
store:
  session_ttl: 30m
`))
	t.Setenv("PREPDASH_STORE_SWEEP_INTERVAL", "5s")
	t.Setenv("PREPDASH_EXPORT_FORMAT", "parquet")

	cmd := newServeCommand(&globalFlags{})
	require.NoError(t, cmd.Flags().Set("store", "memory"))
	require.NoError(t, cmd.Flags().Set("addr", ":9100"))

	cfg, err := loadConfig(&globalFlags{configFile: file, logLevel: "debug"}, cmd.Flags(), map[string]string{
		"server.addr":   "addr",
		"store.backend": "store",
	})
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr, "flags beat the file")
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Store.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.Store.SweepInterval)
	assert.Equal(t, "parquet", cfg.Export.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout, "defaults survive")
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("PREPDASH_STORE_BACKEND", "etcd")
	_, err := loadConfig(&globalFlags{}, newRunCommand(&globalFlags{}).Flags(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}
