// Package metrics exposes Prometheus instrumentation for the bulk pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "bulkops"

// Collector is a prometheus.Collector for bulk operations. A nil *Collector
// is valid and records nothing, which keeps unit tests free of registries.
type Collector struct {
	operations        *prometheus.CounterVec
	rows              *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	enrollRejections  *prometheus.CounterVec
	capacityDrift     prometheus.Counter
	reconciled        prometheus.Counter
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Finished bulk operations by type and terminal status.",
			}, []string{"type", "status"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_total",
				Help:      "Rows processed by bulk operations by type and result.",
			}, []string{"type", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Wall time spent executing a bulk operation.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			}, []string{"type"},
		),
		enrollRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "enroll_rejections_total",
				Help:      "Students rejected by bulk enrollment by reason.",
			}, []string{"reason"},
		),
		capacityDrift: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "capacity_drift_total",
				Help:      "Times a class was observed with more students than seats.",
			},
		),
		reconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "capacity_reconciled_classes_total",
				Help:      "Class counters corrected by the capacity reconciler.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.rows.Describe(ch)
	c.operationDuration.Describe(ch)
	c.enrollRejections.Describe(ch)
	c.capacityDrift.Describe(ch)
	c.reconciled.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.rows.Collect(ch)
	c.operationDuration.Collect(ch)
	c.enrollRejections.Collect(ch)
	c.capacityDrift.Collect(ch)
	c.reconciled.Collect(ch)
}

// OperationFinished records a terminal bulk operation.
func (c *Collector) OperationFinished(opType, status string, seconds float64, ok, failed int) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(opType, status).Inc()
	c.operationDuration.WithLabelValues(opType).Observe(seconds)
	c.rows.WithLabelValues(opType, "success").Add(float64(ok))
	c.rows.WithLabelValues(opType, "failed").Add(float64(failed))
}

// EnrollRejected records students turned away by a bulk enrollment.
func (c *Collector) EnrollRejected(reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.enrollRejections.WithLabelValues(reason).Add(float64(n))
}

// CapacityDrift records a class whose counter exceeds its maximum.
func (c *Collector) CapacityDrift() {
	if c == nil {
		return
	}
	c.capacityDrift.Inc()
}

// Reconciled records corrected class counters.
func (c *Collector) Reconciled(classes int) {
	if c == nil {
		return
	}
	c.reconciled.Add(float64(classes))
}
