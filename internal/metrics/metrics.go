package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds all application metrics.
type Metrics struct {
	registry prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseBytes   *prometheus.CounterVec

	decodeFailures *prometheus.CounterVec

	keyOperationsTotal   *prometheus.CounterVec
	keyOperationDuration *prometheus.HistogramVec
	activeKeyVersion     prometheus.Gauge

	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	storeOperationErrors   *prometheus.CounterVec
}

// NewMetrics registers the metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry registers the metrics, plus Go runtime and process
// collectors, with reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg, reg)
}

func newMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: gatherer,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpResponseBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_response_bytes_total",
				Help: "Total bytes written in HTTP responses",
			},
			[]string{"method", "path"},
		),
		decodeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "base64_decode_failures_total",
				Help: "Total number of rejected base64 inputs",
			},
			[]string{"alphabet", "field"},
		),
		keyOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "key_operations_total",
				Help: "Total number of key wrap and unwrap operations",
			},
			[]string{"operation", "provider", "result"},
		),
		keyOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "key_operation_duration_seconds",
				Help:    "Key wrap and unwrap duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation", "provider"},
		),
		activeKeyVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_key_version",
				Help: "Version of the master key used for new wraps",
			},
		),
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of envelope store operations",
			},
			[]string{"operation", "backend"},
		),
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Envelope store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		storeOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operation_errors_total",
				Help: "Total number of envelope store operation errors",
			},
			[]string{"operation", "backend", "error_type"},
		),
	}
}

// getExemplar returns trace_id/span_id labels when ctx carries a valid span.
func getExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}

func inc(ctx context.Context, c prometheus.Counter) {
	if ex := getExemplar(ctx); ex != nil {
		if adder, ok := c.(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, ex)
			return
		}
	}
	c.Inc()
}

func observe(ctx context.Context, o prometheus.Observer, v float64) {
	if ex := getExemplar(ctx); ex != nil {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, ex)
			return
		}
	}
	o.Observe(v)
}

// sanitizePathLabel collapses object ids so that the path label stays
// bounded: /v1/envelopes/obj-1 becomes /v1/envelopes/*.
func sanitizePathLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}

	segs := strings.Split(path, "/")
	if len(segs) <= 2 {
		return "/" + strings.Join(segs, "/")
	}
	out := []string{segs[0], segs[1], "*"}
	if len(segs) > 3 {
		if segs[3] == "decrypt" {
			out = append(out, segs[3])
		} else {
			out = append(out, "*")
		}
	}
	return "/" + strings.Join(out, "/")
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	path = sanitizePathLabel(path)
	code := strconv.Itoa(status)
	inc(ctx, m.httpRequestsTotal.WithLabelValues(method, path, code))
	observe(ctx, m.httpRequestDuration.WithLabelValues(method, path, code), duration.Seconds())
	m.httpResponseBytes.WithLabelValues(method, path).Add(float64(bytes))
}

// RecordDecodeFailure counts a base64 value rejected in the named request
// field.
func (m *Metrics) RecordDecodeFailure(alphabet, field string) {
	m.decodeFailures.WithLabelValues(alphabet, field).Inc()
}

// RecordKeyOperation records a wrap or unwrap and its outcome.
func (m *Metrics) RecordKeyOperation(ctx context.Context, operation, provider string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	inc(ctx, m.keyOperationsTotal.WithLabelValues(operation, provider, result))
	observe(ctx, m.keyOperationDuration.WithLabelValues(operation, provider), duration.Seconds())
}

// SetActiveKeyVersion publishes the master key version used for new wraps.
func (m *Metrics) SetActiveKeyVersion(version int) {
	m.activeKeyVersion.Set(float64(version))
}

// RecordStoreOperation records an envelope store operation metric.
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation, backend string, duration time.Duration) {
	inc(ctx, m.storeOperationsTotal.WithLabelValues(operation, backend))
	observe(ctx, m.storeOperationDuration.WithLabelValues(operation, backend), duration.Seconds())
}

// RecordStoreError records an envelope store operation error.
func (m *Metrics) RecordStoreError(ctx context.Context, operation, backend, errorType string) {
	inc(ctx, m.storeOperationErrors.WithLabelValues(operation, backend, errorType))
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
