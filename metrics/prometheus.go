package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type prometheusRecorder struct {
	counters  *prometheus.CounterVec
	latencies *prometheus.HistogramVec
}

// NewPrometheus registers and returns a Prometheus-backed recorder.
func NewPrometheus(reg prometheus.Registerer) (Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402gate",
			Name:      "events_total",
			Help:      "Payment gateway event counters.",
		},
		[]string{"type", "network"},
	)

	latencies := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402gate",
			Name:      "dependency_latency_seconds",
			Help:      "Latency of facilitator and token-introspection calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	if err := reg.Register(counters); err != nil {
		return nil, err
	}
	if err := reg.Register(latencies); err != nil {
		return nil, err
	}

	return &prometheusRecorder{counters: counters, latencies: latencies}, nil
}

func (p *prometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
	}).Inc()
}

func (p *prometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.latencies.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}
