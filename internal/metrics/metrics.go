// Package metrics exposes the service's Prometheus collectors on a private
// registry served at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	ussdRequests = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestlink_ussd_requests_total",
			Help: "Total number of USSD requests by outcome.",
		},
		[]string{"outcome"},
	)
	oracleDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvestlink_oracle_duration_seconds",
			Help:    "Scoring oracle call latency by call.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"call"},
	)
	sessionsPurged = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "harvestlink_sessions_purged_total",
			Help: "Total number of expired sessions removed by the sweeper.",
		},
	)
	smsRequests = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvestlink_sms_requests_total",
			Help: "Total number of inbound SMS messages by parse result.",
		},
		[]string{"result"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func USSDRequest(outcome string) {
	ussdRequests.WithLabelValues(outcome).Inc()
}

func ObserveOracle(call string, d time.Duration) {
	oracleDuration.WithLabelValues(call).Observe(d.Seconds())
}

func SessionsPurged(n int64) {
	if n > 0 {
		sessionsPurged.Add(float64(n))
	}
}

func SMSRequest(result string) {
	smsRequests.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Registry is exposed for tests.
func Registry() *prometheus.Registry {
	return registry
}
