package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics lives on a private registry so that several servers (and tests)
// can coexist in one process.
type metrics struct {
	registry  *prometheus.Registry
	renders   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	wsClients prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadsheet",
			Name:      "renders_total",
			Help:      "Songs rendered, by output format and whether the cache answered.",
		}, []string{"format", "cached"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadsheet",
			Name:      "render_failures_total",
			Help:      "Render requests that failed, by error code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadsheet",
			Name:      "render_duration_seconds",
			Help:      "Time spent handling a render, cache hits included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"source"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadsheet",
			Name:      "websocket_clients",
			Help:      "Connected live preview clients.",
		}),
	}
	m.registry.MustRegister(
		m.renders,
		m.failures,
		m.duration,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// observeRender records a successful render from source ("http" or "ws").
func (m *metrics) observeRender(source, format string, cached bool, d time.Duration) {
	m.renders.WithLabelValues(format, strconv.FormatBool(cached)).Inc()
	m.duration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *metrics) observeFailure(code string) {
	m.failures.WithLabelValues(code).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
