package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.Write("direct", "SUCCESS")
		c.SpinRetry()
		c.ObserveExclusive(time.Now())
		c.SetPending("w", "block", 3)
		c.ResendFlush(2)
	})
}

func TestCollectorsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.Write("queued", "SUCCESS")
	c.Write("queued", "SUCCESS")
	c.Recalculate("direct", "RECALCULATE_NO_CHANGES")
	c.SpinRetry()
	c.TaskSubmitted()
	c.ResendFlush(4)
	c.SetPending("overworld", "block", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.writes.WithLabelValues("queued", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recalculations.WithLabelValues("direct", "RECALCULATE_NO_CHANGES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.spinRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksSubmitted))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.resendRegions))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.pendingPoints.WithLabelValues("overworld", "block")))
}
