package pipeline

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/export"
	"github.com/ajitpratap0/prepdash/pkg/store"
	"github.com/ajitpratap0/prepdash/pkg/testutil"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

func setup(t *testing.T, ds *dataset.Dataset) (*Controller, *Session) {
	t.Helper()
	ctrl := NewController(store.NewMemoryStore(), testutil.TestLogger(t))
	sess, err := ctrl.NewSession(testutil.TestContext(t), ds, nil)
	require.NoError(t, err)
	return ctrl, sess
}

func build(t *testing.T, name string, p transform.Params) transform.Step {
	t.Helper()
	step, err := transform.NewRegistry(transform.Options{}).Build(name, p)
	require.NoError(t, err)
	return step
}

func TestApplyCommitsStep(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	ctx := testutil.TestContext(t)
	_, before, err := ctrl.Dataset(ctx, sess, Working)
	require.NoError(t, err)

	out := ctrl.Apply(ctx, sess, build(t, "missing", transform.Params{"column": "price", "method": "mean"}))
	require.NoError(t, out.Err)
	assert.True(t, out.Committed)
	assert.Equal(t, "Filled missing price with mean.", out.Message)
	assert.Equal(t, 3, out.Rows)
	assert.Equal(t, 3, out.Columns)
	assert.NotEqual(t, before, out.Version)
	assert.Equal(t, 1, sess.Steps())

	ds, err := ctrl.Working(ctx, sess)
	require.NoError(t, err)
	price, _ := ds.Column("price")
	assert.Equal(t, []any{10.0, 20.0, 30.0}, price.Values())

	base, err := ctrl.Baseline(ctx, sess)
	require.NoError(t, err)
	assert.True(t, base.Equal(testutil.Sales()), "steps never touch the baseline")
}

func TestStepsCompose(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	ctx := testutil.TestContext(t)

	outs := ctrl.Run(ctx, sess, []transform.Step{
		build(t, "missing", transform.Params{"column": "price", "method": "mean"}),
		build(t, "normalize", transform.Params{"columns": []any{"price"}}),
		build(t, "encode", transform.Params{"columns": []any{"city"}, "method": "label"}),
	})
	require.Len(t, outs, 3)
	for _, o := range outs {
		require.NoError(t, o.Err, o.Step)
	}

	ds, err := ctrl.Working(ctx, sess)
	require.NoError(t, err)
	price, _ := ds.Column("price")
	assert.Equal(t, []any{0.0, 0.5, 1.0}, price.Values())
	city, _ := ds.Column("city")
	assert.Equal(t, []any{int64(0), int64(1), int64(0)}, city.Values())
	assert.Equal(t, 3, sess.Steps())
}

func TestFailedStepLeavesDatasetUntouched(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	ctx := testutil.TestContext(t)
	_, before, err := ctrl.Dataset(ctx, sess, Working)
	require.NoError(t, err)

	outs := ctrl.Run(ctx, sess, []transform.Step{
		build(t, "missing", transform.Params{"column": "city", "method": "mean"}),
		build(t, "missing", transform.Params{"column": "price", "method": "drop"}),
	})
	require.Len(t, outs, 1, "run stops at the first failure")
	out := outs[0]
	require.Error(t, out.Err)
	assert.True(t, errors.IsType(out.Err, errors.ErrorTypeValidation))
	assert.False(t, out.Committed)
	assert.True(t, strings.HasPrefix(out.Message, "Error: "), out.Message)
	assert.Equal(t, 0, sess.Steps())

	_, after, err := ctrl.Dataset(ctx, sess, Working)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

type panicStep struct{}

func (panicStep) Name() string                     { return "explode" }
func (panicStep) Validate(*dataset.Dataset) error { return nil }
func (panicStep) Apply(context.Context, *dataset.Dataset) (*transform.Result, error) {
	panic("index out of range")
}

func TestApplyRecoversPanics(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	out := ctrl.Apply(testutil.TestContext(t), sess, panicStep{})
	require.Error(t, out.Err)
	assert.True(t, errors.IsType(out.Err, errors.ErrorTypeInternal))
	assert.Contains(t, out.Message, "index out of range")
	assert.False(t, out.Committed)

	ds, err := ctrl.Working(testutil.TestContext(t), sess)
	require.NoError(t, err)
	assert.True(t, ds.Equal(testutil.Sales()))
}

func TestSplitProducesArtifactWithoutCommit(t *testing.T) {
	ctrl, sess := setup(t, testutil.Numbered(10))
	ctx := testutil.TestContext(t)

	out := ctrl.Apply(ctx, sess, build(t, "split", transform.Params{"target": "y", "train_size": 0.7}))
	require.NoError(t, out.Err)
	assert.False(t, out.Committed)
	summary, ok := out.Artifact.(*transform.SplitSummary)
	require.True(t, ok, "artifact is %T", out.Artifact)
	assert.Len(t, summary.TrainRows, 7)
	assert.Len(t, summary.TestRows, 3)
	assert.Contains(t, out.Message, "X_train: (7, 1)")
	assert.Equal(t, 0, sess.Steps())
}

// incrementStep replaces the single value in column n with n+1.
type incrementStep struct{}

func (incrementStep) Name() string                     { return "increment" }
func (incrementStep) Validate(*dataset.Dataset) error { return nil }
func (incrementStep) Apply(_ context.Context, ds *dataset.Dataset) (*transform.Result, error) {
	col, _ := ds.Column("n")
	next := dataset.MustColumn("n", dataset.Integer, col.Value(0).(int64)+1)
	out, err := ds.ReplaceColumn(next)
	if err != nil {
		return nil, err
	}
	return &transform.Result{Dataset: out, Message: "incremented"}, nil
}

func TestApplySerializesPerSession(t *testing.T) {
	ctrl, sess := setup(t, dataset.MustNew(dataset.MustColumn("n", dataset.Integer, int64(0))))
	ctx := testutil.TestContext(t)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := ctrl.Apply(ctx, sess, incrementStep{})
			assert.NoError(t, out.Err)
		}()
	}
	wg.Wait()

	ds, err := ctrl.Working(ctx, sess)
	require.NoError(t, err)
	n, _ := ds.Column("n")
	assert.Equal(t, int64(workers), n.Value(0))
	assert.Equal(t, workers, sess.Steps())
}

func TestUpload(t *testing.T) {
	ctrl, sess := setup(t, testutil.Numbered(4))
	ctx := testutil.TestContext(t)
	require.True(t, ctrl.Apply(ctx, sess, build(t, "normalize", transform.Params{"columns": "x"})).Committed)

	out := ctrl.Upload(ctx, sess, "sales.csv", []byte(testutil.SalesCSV))
	require.NoError(t, out.Err)
	assert.Equal(t, "Uploaded file: sales.csv | Shape: 3 rows, 3 columns", out.Message)
	assert.Equal(t, 0, sess.Steps())

	for _, which := range []Which{Working, Baseline} {
		ds, _, err := ctrl.Dataset(ctx, sess, which)
		require.NoError(t, err)
		assert.True(t, ds.Equal(testutil.Sales()), which)
	}
}

func TestUploadRejectsBadCSV(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	ctx := testutil.TestContext(t)

	for name, content := range map[string][]byte{
		"not utf-8": {0xff, 0xfe, 0x41},
		"ragged":    []byte("a,b\n1,2,3\n"),
		"empty":     nil,
	} {
		out := ctrl.Upload(ctx, sess, "bad.csv", content)
		require.Error(t, out.Err, name)
		assert.Equal(t, UploadErrorMessage, out.Message, name)
		assert.False(t, out.Committed, name)
	}

	ds, err := ctrl.Working(ctx, sess)
	require.NoError(t, err)
	assert.True(t, ds.Equal(testutil.Sales()))
}

func TestExport(t *testing.T) {
	ctrl, sess := setup(t, testutil.Sales())
	var buf bytes.Buffer
	require.NoError(t, ctrl.Export(testutil.TestContext(t), sess, &buf, export.DefaultOptions()))
	assert.Equal(t, "price,city,qty\n10.0,Oslo,1\n,Lima,2\n30.0,Oslo,3\n", buf.String())
}

func TestCloseDeletesDatasets(t *testing.T) {
	st := store.NewMemoryStore()
	ctrl := NewController(st, testutil.TestLogger(t))
	ctx := testutil.TestContext(t)
	sess, err := ctrl.NewSession(ctx, testutil.Sales(), testutil.Numbered(2))
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())

	require.NoError(t, ctrl.Close(ctx, sess))
	require.NoError(t, ctrl.Close(ctx, sess))
	assert.Equal(t, 0, st.Len())

	out := ctrl.Apply(ctx, sess, incrementStep{})
	assert.True(t, errors.IsType(out.Err, errors.ErrorTypeNotFound))
	_, err = ctrl.Working(ctx, sess)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestFingerprintTracksContent(t *testing.T) {
	a, err := Fingerprint(testutil.Sales())
	require.NoError(t, err)
	b, err := Fingerprint(testutil.Sales())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	c, err := Fingerprint(testutil.Numbered(3))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	ds, err := codec.UnmarshalSplit(mustSplit(t, testutil.Sales()))
	require.NoError(t, err)
	d, err := Fingerprint(ds)
	require.NoError(t, err)
	assert.Equal(t, a, d, "decoding preserves the fingerprint")
}

func mustSplit(t *testing.T, ds *dataset.Dataset) []byte {
	t.Helper()
	data, err := codec.MarshalSplit(ds)
	require.NoError(t, err)
	return data
}

func TestParseWhich(t *testing.T) {
	w, err := ParseWhich("")
	require.NoError(t, err)
	assert.Equal(t, Working, w)
	w, err = ParseWhich("baseline")
	require.NoError(t, err)
	assert.Equal(t, Baseline, w)
	_, err = ParseWhich("raw")
	assert.Error(t, err)
}

func TestRedisSessionStaysAliveWhileUsed(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := testutil.TestContext(t)
	st, err := store.NewRedisStore(ctx, store.RedisConfig{Addr: mr.Addr(), TTL: time.Hour}, testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctrl := NewController(st, testutil.TestLogger(t))
	sess, err := ctrl.NewSession(ctx, testutil.Sales(), nil)
	require.NoError(t, err)

	normalize := build(t, "normalize", transform.Params{"columns": []any{"qty"}})
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		out := ctrl.Apply(ctx, sess, normalize)
		require.NoError(t, out.Err)
	}
	base, err := ctrl.Baseline(ctx, sess)
	require.NoError(t, err, "the baseline survives two hours of steps")
	assert.True(t, base.Equal(testutil.Sales()))

	// reads alone keep the session alive
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		_, err := ctrl.Working(ctx, sess)
		require.NoError(t, err)
	}
	_, err = ctrl.Baseline(ctx, sess)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = ctrl.Baseline(ctx, sess)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound), "idle sessions still expire")
}
