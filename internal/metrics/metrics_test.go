package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func tracedContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	require.NotNil(t, m)

	assert.NotNil(t, m.httpRequestsTotal)
	assert.NotNil(t, m.decodeFailures)
	assert.NotNil(t, m.keyOperationsTotal)
	assert.NotNil(t, m.storeOperationsTotal)
}

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"", "/"},
		{"/metrics", "/metrics"},
		{"/v1/convert", "/v1/convert"},
		{"/v1/envelopes/obj-1", "/v1/envelopes/*"},
		{"/v1/envelopes/obj-1?x=1", "/v1/envelopes/*"},
		{"/v1/datakeys/obj-1/decrypt", "/v1/datakeys/*/decrypt"},
		{"/v1/datakeys/obj-1/other/deeper", "/v1/datakeys/*/*"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizePathLabel(tt.path))
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHTTPRequest(context.Background(), "GET", "/v1/envelopes/a", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/v1/envelopes/b", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/v1/envelopes/c", http.StatusNotFound, time.Millisecond, 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/envelopes/*", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/envelopes/*", "404")))
	assert.Equal(t, 220.0, testutil.ToFloat64(m.httpResponseBytes.WithLabelValues("GET", "/v1/envelopes/*")))
}

func TestRecordDecodeFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordDecodeFailure("standard", "ciphertext")
	m.RecordDecodeFailure("standard", "ciphertext")
	m.RecordDecodeFailure("url-safe", "url_safe")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("standard", "ciphertext")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("url-safe", "url_safe")))
}

func TestRecordKeyOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordKeyOperation(context.Background(), "wrap", "static", time.Millisecond, nil)
	m.RecordKeyOperation(context.Background(), "unwrap", "static", time.Millisecond, errors.New("tampered"))
	m.SetActiveKeyVersion(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyOperationsTotal.WithLabelValues("wrap", "static", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyOperationsTotal.WithLabelValues("unwrap", "static", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeKeyVersion))
}

func TestRecordStoreOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordStoreOperation(context.Background(), "put", "redis", 5*time.Millisecond)
	m.RecordStoreError(context.Background(), "get", "s3", "not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperationsTotal.WithLabelValues("put", "redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperationErrors.WithLabelValues("get", "s3", "not_found")))
}

func TestGetExemplar(t *testing.T) {
	assert.Nil(t, getExemplar(context.Background()))

	labels := getExemplar(tracedContext(t))
	require.NotNil(t, labels)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", labels["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", labels["span_id"])
}

func TestExemplar_RecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHTTPRequest(tracedContext(t), "GET", "/v1/convert", http.StatusOK, time.Millisecond, 10)

	mf := findFamily(t, reg, "http_requests_total")
	require.Len(t, mf.GetMetric(), 1)
	ex := mf.GetMetric()[0].GetCounter().GetExemplar()
	require.NotNil(t, ex)

	found := false
	for _, label := range ex.GetLabel() {
		if label.GetName() == "trace_id" && label.GetValue() == "4bf92f3577b34da6a3ce929d0e0e4736" {
			found = true
		}
	}
	assert.True(t, found, "trace_id exemplar label missing")
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHTTPRequest(context.Background(), "POST", "/v1/convert", http.StatusBadRequest, time.Millisecond, 40)
	m.RecordDecodeFailure("url-safe", "url_safe")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, metric := range []string{
		"http_requests_total",
		"base64_decode_failures_total",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, metric), "expected metrics output to contain %q", metric)
	}
}
