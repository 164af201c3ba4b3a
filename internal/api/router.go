package api

import (
	"github.com/gorilla/mux"
	"github.com/kenneth/base64-type/internal/metrics"
	"github.com/kenneth/base64-type/internal/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// NewRouter registers h's routes behind the recovery, tracing, logging and
// metrics middleware, outermost first.
func NewRouter(h *Handler, logger *logrus.Logger, m *metrics.Metrics, tracer trace.Tracer) *mux.Router {
	r := mux.NewRouter()
	r.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.TracingMiddleware(tracer),
		middleware.LoggingMiddleware(logger),
		middleware.MetricsMiddleware(m),
	)
	h.RegisterRoutes(r)
	return r
}
