package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Translation outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeUpstream     = "upstream_error"
	OutcomeError        = "error"
)

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	proxiedRequests  *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	translations     *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		proxiedRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_proxied_requests_total",
				Help: "Requests relayed to a backend origin, by method and upstream status class",
			},
			[]string{"method", "status"},
		),
		upstreamDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_upstream_duration_seconds",
				Help:    "Latency of relayed upstream calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		translations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_translations_total",
				Help: "Translated Mastodon operations, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		resolutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_identifier_resolutions_total",
				Help: "Anonymous login identifiers resolved to a PDS, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProxy records one relayed request. A status of 0 means the upstream
// could not be reached.
func (m *Metrics) ObserveProxy(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.proxiedRequests.WithLabelValues(method, statusClass(status)).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveTranslation records one translated operation.
func (m *Metrics) ObserveTranslation(operation, outcome string) {
	if m == nil {
		return
	}
	m.translations.WithLabelValues(operation, outcome).Inc()
}

// ObserveResolution records one identifier resolution.
func (m *Metrics) ObserveResolution(kind string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.resolutions.WithLabelValues(kind, outcome).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
