package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsBundles(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveBundle("direct", "accepted", 5*time.Millisecond)
	c.ObserveBundle("direct", "accepted", time.Millisecond)
	c.ObserveBundle("angular", "insufficient_depth", time.Millisecond)
	c.AddSyncDropped("angular", "unmatched", 3)
	c.AddSyncDropped("angular", "unmatched", 0)
	c.SetStaticOffsetCached(true)
	c.SetPositionVariance(4, 5, 6)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Bundles.WithLabelValues("direct", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Bundles.WithLabelValues("angular", "insufficient_depth")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.SyncDropped.WithLabelValues("angular", "unmatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StaticOffsetSet))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.PositionVariance.WithLabelValues("y")))

	c.SetStaticOffsetCached(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.StaticOffsetSet))
}

func TestCollector_ReRegisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.ObserveBundle("direct", "accepted", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Bundles.WithLabelValues("direct", "accepted")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBundle("direct", "accepted", time.Second)
		c.AddSyncDropped("direct", "overflow", 1)
		c.SetStaticOffsetCached(true)
		c.SetPositionVariance(1, 2, 3)
	})
}

func TestCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveBundle("direct", "quality_rejected", 0)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `usbl_bundles_total{outcome="quality_rejected",path="direct"} 1`)
}
