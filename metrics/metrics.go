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

// Metrics holds the invocation metrics of one pipeline. Each instance owns its
// registry so several engines can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	InFlight    prometheus.Gauge
	Ignored     prometheus.Counter
	Timeouts    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		// Invocation metrics
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funcframe_invocations_total",
				Help: "Total number of function invocations by signature type, outcome and status code",
			},
			[]string{"signature", "outcome", "code"},
		),

		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funcframe_invocation_duration_seconds",
				Help:    "Time from request arrival to response finalization in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"signature", "outcome"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "funcframe_invocations_in_flight",
				Help: "Number of invocations whose response has not been finalized",
			},
		),

		// Short-circuit metrics
		Ignored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "funcframe_ignored_requests_total",
				Help: "Total number of requests answered 404 by the ignored routes filter",
			},
		),

		Timeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "funcframe_timeouts_total",
				Help: "Total number of invocations concluded by the deadline",
			},
		),
	}
}

// Observe records one finalized invocation.
func (m *Metrics) Observe(signature, outcome string, code int, elapsed time.Duration) {
	m.Invocations.WithLabelValues(signature, outcome, strconv.Itoa(code)).Inc()
	m.Duration.WithLabelValues(signature, outcome).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
