package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs a recording tracer provider as the global
// provider and restores the previous one when the test ends. Tests using
// it must not run in parallel.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(recorder),
	)

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	t.Cleanup(func() {
		otel.SetTracerProvider(previous)

		_ = provider.Shutdown(context.Background())
	})

	return recorder
}

func TestWithTelemetry_RecordsServerSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
	req.Header.Set(CallerHeader, "owner")

	resp, err := api.App().Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "GET /v1/balance", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())

	attrs := make(map[string]string)

	for _, attr := range span.Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}

	assert.Equal(t, "GET", attrs["http.method"])
	assert.Equal(t, "/v1/balance", attrs["http.route"])
	assert.Equal(t, "200", attrs["http.status_code"])
}

func TestWithTelemetry_SpanPerRequest(t *testing.T) {
	recorder := setupTestTracer(t)

	api, _, _ := newTestAPI(t)

	for _, path := range []string{"/v1/ping", "/v1/claim", "/v1/record"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)

		resp, err := api.App().Test(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	names := make([]string, 0, len(spans))

	for _, span := range spans {
		names = append(names, span.Name())
	}

	assert.ElementsMatch(t, []string{"GET /v1/ping", "GET /v1/claim", "GET /v1/record"}, names)
}

func TestWithTelemetry_FailedRequestStatusCode(t *testing.T) {
	recorder := setupTestTracer(t)

	api, _, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil)

	resp, err := api.App().Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /v1/withdrawals", spans[0].Name())

	found := false

	for _, attr := range spans[0].Attributes() {
		if attr.Key == "http.status_code" {
			found = true

			assert.Equal(t, int64(http.StatusBadRequest), attr.Value.AsInt64())
		}
	}

	assert.True(t, found, "span is missing http.status_code")
}
