package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/kodblock/internal/events"
)

// metrics holds the server's Prometheus collectors. Each server owns its
// registry so several servers can coexist in one process.
type metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	grpcRequests *prometheus.CounterVec
	renders      *prometheus.CounterVec
	draftEvents  *prometheus.CounterVec
}

func newMetrics(hub *sseHub) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodblock_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "pattern", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kodblock_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "pattern"}),
		grpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodblock_grpc_requests_total",
			Help: "Unary gRPC calls by full method and status code.",
		}, []string{"method", "code"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodblock_expressions_rendered_total",
			Help: "Expressions serialized, by mode.",
		}, []string{"mode"}),
		draftEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kodblock_draft_events_total",
			Help: "Draft events emitted, by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.grpcRequests,
		m.renders,
		m.draftEvents,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kodblock_sse_clients",
			Help: "Connected SSE clients.",
		}, func() float64 { return float64(hub.clientCount()) }),
	)
	return m
}

// handler serves the registry in the Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records count and latency per matched route. The pattern is
// read after the mux has routed the request.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// unaryInterceptor counts gRPC calls by method and resulting code.
func (m *metrics) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	m.grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}

// eventOp names the operation behind a draft event payload.
func eventOp(event any) string {
	switch e := event.(type) {
	case events.DraftCreated:
		return "create"
	case events.DraftUpdated:
		return e.Op
	case events.DraftDeleted:
		return "delete"
	}
	return "unknown"
}
