package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/commonshub/hubdoor/internal/metrics"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.RecordOpen("token")
	c.RecordOpen("token")
	c.RecordDenied("signature", "unauthorized")
	c.SetRoleMembers("member", 42)
	c.SetDoorOpen(true)

	n, err := testutil.GatherAndCount(reg, "hubdoor_door_opens_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.OpensCounter("token")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.RecordOpen("token")
		c.RecordDenied("token", "unauthorized")
		c.RecordRefreshFailure("x")
		c.SetRoleMembers("x", 1)
		c.SetDoorOpen(false)
	})
}
