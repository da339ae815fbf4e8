package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector for Prometheus.
type PrometheusCollector struct {
	decisions       *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	published    *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
}

// NewPrometheusCollector creates the collectors under namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Approval decisions per record kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		decisionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_duration_seconds",
				Help:      "Time spent inside an approval or rejection",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"kind"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests per method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_events_total",
				Help:      "Decision events handed to the broker",
			},
			[]string{"status"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.decisions,
		pc.decisionLatency,
		pc.requests,
		pc.requestLatency,
		pc.published,
		pc.circuitState,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordDecision(kind, outcome string, duration time.Duration) {
	pc.decisions.WithLabelValues(kind, outcome).Inc()
	pc.decisionLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordRequest(method, route string, status int, duration time.Duration) {
	pc.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pc.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordPublish(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.published.WithLabelValues(status).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
}
