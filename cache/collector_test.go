package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	tracker := NewStatsTracker()
	tracker.RecordHit("a")
	tracker.RecordHit("a")
	tracker.RecordMiss("a")
	tracker.RecordSet("b")

	collector := NewCollector("app", "service", tracker)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))

	// 8 series per tenant.
	assert.Equal(t, 16, testutil.CollectAndCount(collector))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var tenant, layer string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "tenant":
					tenant = lp.GetValue()
				case "layer":
					layer = lp.GetValue()
				}
			}
			assert.Equal(t, "service", layer)

			v := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				v = m.GetGauge().GetValue()
			}
			if values[mf.GetName()] == nil {
				values[mf.GetName()] = map[string]float64{}
			}
			values[mf.GetName()][tenant] = v
		}
	}

	assert.Equal(t, 3.0, values["app_cache_requests_total"]["a"])
	assert.Equal(t, 2.0, values["app_cache_hits_total"]["a"])
	assert.Equal(t, 1.0, values["app_cache_sets_total"]["b"])
	assert.InDelta(t, 66.666, values["app_cache_hit_rate_percent"]["a"], 0.01)
	assert.Equal(t, 0.0, values["app_cache_hit_rate_percent"]["b"])
}
