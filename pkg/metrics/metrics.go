// Package metrics defines the Prometheus collectors exposed by the
// collect and investigate commands, grounded on the namespaced
// CounterVec/Histogram pattern used throughout the reference stack.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "scrywarden"

// Metrics bundles every collector scrywarden registers. Both the
// collection pipeline and the investigation coordinator share one
// instance wired into the /metrics HTTP endpoint.
type Metrics struct {
	PipelineCycleSeconds    prometheus.Histogram
	PipelineBatchSize       prometheus.Histogram
	PipelineAnomaliesTotal  prometheus.Counter
	InvestigationClaimSeconds prometheus.Histogram
	InvestigationWindowEvents prometheus.Histogram
	MaliciousFindingsTotal  *prometheus.CounterVec
}

// New builds an unregistered Metrics bundle.
func New() *Metrics {
	return &Metrics{
		PipelineCycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cycle_seconds",
			Help:      "Time taken to run one pipeline process cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		PipelineBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_size",
			Help:      "Number of messages processed per pipeline cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PipelineAnomaliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "anomalies_total",
			Help:      "Total anomalies (score > 0) recorded by the pipeline.",
		}),
		InvestigationClaimSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "claim_seconds",
			Help:      "Time taken for an investigator to claim the next investigation index.",
			Buckets:   prometheus.DefBuckets,
		}),
		InvestigationWindowEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "window_events",
			Help:      "Number of events collected into one investigation window.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		MaliciousFindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malicious_findings_total",
			Help:      "Total malicious-activity findings shipped, by profile.",
		}, []string{"profile"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.PipelineCycleSeconds,
		m.PipelineBatchSize,
		m.PipelineAnomaliesTotal,
		m.InvestigationClaimSeconds,
		m.InvestigationWindowEvents,
		m.MaliciousFindingsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
