package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndEndSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Init(Config{Enabled: true, ServiceName: "prepdash-test", SampleRate: 1, Exporter: exp})
	require.NoError(t, err)

	_, ok := StartSpan(context.Background(), "step.missing", attribute.String("session.id", "s1"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "step.split")
	EndSpan(failed, errors.New("train_size out of range"))

	require.NoError(t, shutdown(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "step.missing", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String("session.id", "s1"))
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Len(t, spans[1].Events, 1)

	_, err = Init(Config{})
	require.NoError(t, err)
}

func TestTracingMiddleware(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Init(Config{Enabled: true, ServiceName: "prepdash-test", SampleRate: 1, Exporter: exp})
	require.NoError(t, err)

	h := TracingMiddleware("prepdash")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/steps", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	require.NoError(t, shutdown(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/steps", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int("http.status_code", http.StatusTeapot))

	_, err = Init(Config{})
	require.NoError(t, err)
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(Config{Enabled: true, ServiceName: "prepdash-test", SampleRate: 1, Writer: &buf})
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), "export")
	EndSpan(span, nil)
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"export"`)

	_, err = Init(Config{})
	require.NoError(t, err)
}

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	EndSpan(span, nil)
	assert.NoError(t, shutdown(context.Background()))
}
