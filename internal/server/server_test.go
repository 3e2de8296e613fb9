package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/config"
	"github.com/ajitpratap0/prepdash/pkg/json"
	"github.com/ajitpratap0/prepdash/pkg/source"
	"github.com/ajitpratap0/prepdash/pkg/storage"
	"github.com/ajitpratap0/prepdash/pkg/store"
	"github.com/ajitpratap0/prepdash/pkg/testutil"
)

func newTestServer(t *testing.T, st store.Store, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := testutil.TestLogger(t)
	srv := New(Options{
		Config:     cfg,
		Controller: pipeline.NewController(st, log),
		Loader:     source.NewLoader(storage.NewClient(cfg.Sources.Storage, log), 0, log),
		Logger:     log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	id, _ := decode(t, body)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func uploadSales(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/upload?filename=sales.csv", "text/csv",
		strings.NewReader(testutil.SalesCSV))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Uploaded file: sales.csv | Shape: 3 rows, 3 columns", decode(t, body)["message"])
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode(t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "uptime")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	uploadSales(t, ts, id)

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "prepdash_uploads_total")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.EnableMetrics = false
	ts := newTestServer(t, store.NewMemoryStore(), cfg)

	resp, _ := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSteps(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/steps", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	steps, ok := decode(t, body)["steps"].([]any)
	require.True(t, ok)
	var names []string
	for _, s := range steps {
		names = append(names, s.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"convert", "discretize", "encode", "missing", "normalize", "split"}, names)
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	uploadSales(t, ts, id)

	resp, body := do(t, http.MethodGet, base+"/overview", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	overview := decode(t, body)
	assert.Equal(t, "Rows: 3 | Columns: 3 | Total missing values: 1", overview["summary"])

	resp, body = do(t, http.MethodPost, base+"/steps/missing", "application/json",
		strings.NewReader(`{"column": "price", "method": "mean"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, "Filled missing price with mean.", out["message"])
	assert.Equal(t, true, out["committed"])
	assert.NotContains(t, out, "error_type")

	resp, body = do(t, http.MethodGet, base+"/datasets/working", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `"`+out["version"].(string)+`"`, etag)
	assert.Equal(t, []any{"price", "city", "qty"}, decode(t, body)["columns"])

	req, err := http.NewRequest(http.MethodGet, base+"/datasets/working", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cached.Body.Close()
	assert.Equal(t, http.StatusNotModified, cached.StatusCode)

	// Steps leave the analysis baseline alone.
	resp, body = do(t, http.MethodGet, base+"/univariate?column=price", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	uni := decode(t, body)
	assert.Equal(t, float64(1), uni["missing"])
	assert.NotEmpty(t, uni["histogram"])

	resp, body = do(t, http.MethodGet, base+"/export", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "price,city,qty\n10.0,Oslo,1\n20.0,Lima,2\n30.0,Oslo,3\n", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "processed_dataset.csv")

	resp, _ = do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/overview", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode(t, body)["type"])
}

func TestStepFailureLeavesDataset(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	uploadSales(t, ts, id)

	resp, _ := do(t, http.MethodGet, base+"/datasets/working", "", nil)
	before := resp.Header.Get("ETag")

	resp, body := do(t, http.MethodPost, base+"/steps/missing", "application/json",
		strings.NewReader(`{"column": "city", "method": "mean"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "validation", out["error_type"])
	assert.Equal(t, false, out["committed"])
	assert.True(t, strings.HasPrefix(out["message"].(string), "Error: "))

	resp, _ = do(t, http.MethodGet, base+"/datasets/working", "", nil)
	assert.Equal(t, before, resp.Header.Get("ETag"))
}

func TestStepRequestErrors(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	base := ts.URL + "/api/sessions/" + createSession(t, ts)

	tests := []struct {
		name   string
		step   string
		body   string
		status int
	}{
		{name: "unknown step", step: "explode", body: `{}`, status: http.StatusUnprocessableEntity},
		{name: "unknown parameter", step: "missing", body: `{"column": "a", "colour": "red"}`, status: http.StatusUnprocessableEntity},
		{name: "malformed body", step: "missing", body: `{"column":`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, base+"/steps/"+tt.step, "application/json", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}

func TestUploadFormats(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)

	t.Run("data url", func(t *testing.T) {
		base := ts.URL + "/api/sessions/" + createSession(t, ts)
		payload, err := json.Marshal(map[string]string{
			"filename": "sales.csv",
			"contents": "data:text/csv;base64," + base64.StdEncoding.EncodeToString([]byte(testutil.SalesCSV)),
		})
		require.NoError(t, err)
		resp, body := do(t, http.MethodPost, base+"/upload", "application/json", bytes.NewReader(payload))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Equal(t, "Uploaded file: sales.csv | Shape: 3 rows, 3 columns", decode(t, body)["message"])
	})

	t.Run("multipart", func(t *testing.T) {
		base := ts.URL + "/api/sessions/" + createSession(t, ts)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "sales.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(testutil.SalesCSV))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp, body := do(t, http.MethodPost, base+"/upload", mw.FormDataContentType(), &buf)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Equal(t, float64(3), decode(t, body)["rows"])
	})

	t.Run("not a data url", func(t *testing.T) {
		base := ts.URL + "/api/sessions/" + createSession(t, ts)
		resp, body := do(t, http.MethodPost, base+"/upload", "application/json",
			strings.NewReader(`{"filename": "x.csv", "contents": "price,city"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, pipeline.UploadErrorMessage, decode(t, body)["message"])
	})

	t.Run("too large", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Server.MaxUploadBytes = 8
		small := newTestServer(t, store.NewMemoryStore(), cfg)
		base := small.URL + "/api/sessions/" + createSession(t, small)
		resp, _ := do(t, http.MethodPost, base+"/upload", "text/csv", strings.NewReader(testutil.SalesCSV))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestUnivariateHistogram(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	resp, body := do(t, http.MethodPost, base+"/upload?filename=inf.csv", "text/csv", strings.NewReader("x\n1\n2\ninf\n"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodGet, base+"/univariate?column=x", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	bins, _ := decode(t, body)["histogram"].([]any)
	assert.Len(t, bins, defaultBins)

	resp, body = do(t, http.MethodGet, base+"/univariate?column=x&bins=2000000000", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
	assert.Equal(t, "validation", decode(t, body)["type"])
}

func TestBivariate(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	uploadSales(t, ts, id)

	resp, body := do(t, http.MethodGet, base+"/bivariate?x=price&y=qty", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	corr := decode(t, body)
	assert.Equal(t, true, corr["numeric"])
	assert.Equal(t, "Correlation between price and qty: 1.000", corr["message"])

	_, body = do(t, http.MethodGet, base+"/bivariate?x=price&y=city", "", nil)
	assert.Equal(t, "Correlation only computed for numeric X and Y.", decode(t, body)["message"])

	resp, _ = do(t, http.MethodGet, base+"/bivariate?x=price&y=nope", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDescribeDatasetSelector(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	uploadSales(t, ts, id)

	resp, body := do(t, http.MethodGet, base+"/describe?dataset=baseline", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cols, ok := decode(t, body)["columns"].([]any)
	require.True(t, ok)
	assert.Len(t, cols, 3)

	resp, _ = do(t, http.MethodGet, base+"/describe?dataset=staging", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExportOptions(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id
	uploadSales(t, ts, id)

	resp, body := do(t, http.MethodGet, base+"/export?format=json&compression=gzip", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/gzip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "processed_dataset.json.gz")

	r, err := compression.NewReader(bytes.NewReader(body), compression.Gzip)
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"columns":["price","city","qty"]`)

	resp, _ = do(t, http.MethodGet, base+"/export?format=orc", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, base+"/export?compression=rar", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSessionFromConfiguredSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources.Working = testutil.WriteFile(t, "sales.csv", []byte(testutil.SalesCSV))
	ts := newTestServer(t, store.NewMemoryStore(), cfg)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sess := decode(t, body)
	assert.Equal(t, float64(3), sess["rows"])
	assert.Equal(t, sess["version"], sess["baseline_version"])
}

func TestSessionFromMissingSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources.Working = "/does/not/exist.csv"
	ts := newTestServer(t, store.NewMemoryStore(), cfg)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/sessions", "", nil)
	assert.GreaterOrEqual(t, resp.StatusCode, 400)
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore(), nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/sessions/nope/overview", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Error: session nope not found", decode(t, body)["message"])
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	log := testutil.TestLogger(t)
	ctx := testutil.TestContext(t)
	st := store.NewMemoryStore()
	ctrl := pipeline.NewController(st, log)
	reg := NewSessions(ctrl, time.Minute, log)

	sess, err := ctrl.NewSession(ctx, testutil.Sales(), nil)
	require.NoError(t, err)
	reg.Add(sess)

	assert.Equal(t, 0, reg.Sweep(ctx, time.Now()))
	assert.Equal(t, 1, reg.Sweep(ctx, time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, st.Len())

	_, err = reg.Get(sess.ID)
	assert.Error(t, err)
}

func TestRunSweepsInBackground(t *testing.T) {
	log := testutil.TestLogger(t)
	ctx := testutil.TestContext(t)
	ctrl := pipeline.NewController(store.NewMemoryStore(), log)
	reg := NewSessions(ctrl, time.Nanosecond, log)

	sess, err := ctrl.NewSession(ctx, testutil.Sales(), nil)
	require.NoError(t, err)
	reg.Add(sess)

	go reg.Run(ctx, 5*time.Millisecond)
	testutil.AssertEventually(t, func() bool { return reg.Len() == 0 }, time.Second, "session was not swept")
}

// RedisServerSuite runs the HTTP flow against the Redis store backend.
type RedisServerSuite struct {
	testutil.IntegrationTestSuite
	ts *httptest.Server
}

func (s *RedisServerSuite) SetupTest() {
	log := testutil.TestLogger(s.T())
	st, err := store.NewRedisStore(s.Context(), store.RedisConfig{
		Addr:        s.Redis().Addr(),
		TTL:         time.Hour,
		Compression: compression.Zstd,
	}, log)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = st.Close() })

	s.ts = newTestServer(s.T(), st, nil)
}

func (s *RedisServerSuite) TestUploadStepExport() {
	t := s.T()
	id := createSession(t, s.ts)
	base := s.ts.URL + "/api/sessions/" + id
	uploadSales(t, s.ts, id)

	resp, body := do(t, http.MethodPost, base+"/steps/normalize", "application/json",
		strings.NewReader(`{"columns": ["qty"]}`))
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodGet, base+"/export", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("price,city,qty\n10.0,Oslo,0.0\n,Lima,0.5\n30.0,Oslo,1.0\n", string(body))

	s.NotEmpty(s.Redis().Keys())
	resp, _ = do(t, http.MethodDelete, base, "", nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)
	s.Empty(s.Redis().Keys())
}

func TestRedisServerSuite(t *testing.T) {
	suite.Run(t, new(RedisServerSuite))
}
