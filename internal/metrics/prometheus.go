package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus.
// Metrics are registered on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	routed         *prometheus.CounterVec
	rotations      *prometheus.CounterVec
	rotatedRecords prometheus.Counter
	rotatedBytes   prometheus.Counter
	openHandles    prometheus.Gauge
	batchDuration  prometheus.Histogram
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registering on reg (prometheus.DefaultRegisterer if nil), with the
// given namespace ("tailwriter" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "tailwriter"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.routed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "records_total",
			Help:      "Total records routed by outcome (written, late, errored).",
		}, []string{"outcome"})

		p.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "batch_duration_seconds",
			Help:      "Time taken to route a batch in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		})

		p.rotations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "writer",
			Name:      "rotations_total",
			Help:      "Total handle rotations by reason and result (committed, discarded, failed).",
		}, []string{"reason", "result"})

		p.rotatedRecords = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "writer",
			Name:      "committed_records_total",
			Help:      "Total records made visible in finalized artifacts.",
		})

		p.rotatedBytes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "writer",
			Name:      "committed_bytes_total",
			Help:      "Total bytes of finalized artifacts.",
		})

		p.openHandles = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "writer",
			Name:      "open_handles",
			Help:      "Current number of open writer handles.",
		})

		p.reg.MustRegister(p.routed)
		p.reg.MustRegister(p.batchDuration)
		p.reg.MustRegister(p.rotations)
		p.reg.MustRegister(p.rotatedRecords)
		p.reg.MustRegister(p.rotatedBytes)
		p.reg.MustRegister(p.openHandles)
	})
}

func (p *PrometheusCollector) RecordRouted(outcome string, count int) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.routed.WithLabelValues(outcome).Add(float64(count))
}

func (p *PrometheusCollector) RecordRotation(reason string, records, bytes int64, discarded, failed bool) {
	p.ensureRegistered()
	result := "committed"
	switch {
	case failed:
		result = "failed"
	case discarded:
		result = "discarded"
	}
	p.rotations.WithLabelValues(reason, result).Inc()
	if result == "committed" {
		p.rotatedRecords.Add(float64(records))
		p.rotatedBytes.Add(float64(bytes))
	}
}

func (p *PrometheusCollector) SetOpenHandles(count int) {
	p.ensureRegistered()
	p.openHandles.Set(float64(count))
}

func (p *PrometheusCollector) ObserveBatch(seconds float64) {
	p.ensureRegistered()
	p.batchDuration.Observe(seconds)
}
