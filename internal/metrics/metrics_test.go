package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	c.OperationFinished("tenant_create", "completed_with_errors", 1.5, 8, 2)
	c.EnrollRejected("already_enrolled", 3)
	c.CapacityDrift()
	c.Reconciled(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("tenant_create", "completed_with_errors")))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.rows.WithLabelValues("tenant_create", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rows.WithLabelValues("tenant_create", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.enrollRejections.WithLabelValues("already_enrolled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.capacityDrift))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.reconciled))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.OperationFinished("tenant_update", "completed", 0, 1, 0)
		c.EnrollRejected("capacity", 1)
		c.CapacityDrift()
		c.Reconciled(1)
	})
}
