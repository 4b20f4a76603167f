// Package metrics exposes Prometheus metrics for pool computation and sync.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync operation labels.
const (
	OpPush    = "push"
	OpPull    = "pull"
	OpSignOut = "signout"
)

// Sync result labels.
const (
	ResultOK        = "ok"
	ResultSkipped   = "skipped"
	ResultFromCache = "cache"
	ResultError     = "error"
)

// Metrics holds all Prometheus metrics of the service on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PoolAttachments prometheus.Histogram
	PoolIcons       prometheus.Histogram
	DroppedBlobs    *prometheus.CounterVec
	SyncResults     *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PoolAttachments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_attachments",
			Help:      "Number of attachments in computed minimal pools",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		PoolIcons: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_icons",
			Help:      "Number of custom icons in computed minimal pools",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		DroppedBlobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_blobs_total",
			Help:      "Unreferenced or duplicate blobs left out of serialized databases",
		}, []string{"kind"}),
		SyncResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Sync operations by provider and result",
		}, []string{"op", "provider", "result"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Sync operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.PoolAttachments,
		m.PoolIcons,
		m.DroppedBlobs,
		m.SyncResults,
		m.SyncDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePools records the size of a computed pool pair.
func (m *Metrics) ObservePools(attachments, icons, droppedAttachments, droppedIcons int) {
	if m == nil {
		return
	}
	m.PoolAttachments.Observe(float64(attachments))
	m.PoolIcons.Observe(float64(icons))
	if droppedAttachments > 0 {
		m.DroppedBlobs.WithLabelValues("attachment").Add(float64(droppedAttachments))
	}
	if droppedIcons > 0 {
		m.DroppedBlobs.WithLabelValues("icon").Add(float64(droppedIcons))
	}
}

// ObserveSync records the outcome of a sync operation.
func (m *Metrics) ObserveSync(op, provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncResults.WithLabelValues(op, provider, result).Inc()
	m.SyncDuration.WithLabelValues(op).Observe(d.Seconds())
}

// MetricsServer serves the registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving metrics until the server is shut down.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
