package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	IncomingMessages *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	WeatherRequests  *prometheus.CounterVec
	WeatherLatency   *prometheus.HistogramVec
	Registrations    prometheus.Counter
	Reports          *prometheus.CounterVec
	Feedback         *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incoming_messages_total",
				Help:      "Total incoming chat messages processed, by channel.",
			}, []string{"channel"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total outgoing chat messages sent, by channel.",
			}, []string{"channel"}),
			WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weather_requests_total",
				Help:      "Total weather provider requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			WeatherLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "weather_request_duration_seconds",
				Help:      "Latency distribution for weather provider requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			Registrations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Total completed crop registrations.",
			}),
			Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Total crop reports generated, by outcome.",
			}, []string{"outcome"}),
			Feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_total",
				Help:      "Total recommendation feedback recorded, by rating.",
			}, []string{"rating"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingMessages,
			metricsInstance.OutgoingMessages,
			metricsInstance.WeatherRequests,
			metricsInstance.WeatherLatency,
			metricsInstance.Registrations,
			metricsInstance.Reports,
			metricsInstance.Feedback,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
