package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a StatsTracker as Prometheus metrics, one series per tenant.
// Values are read from the tracker at scrape time, so nothing is counted twice.
type Collector struct {
	tracker *StatsTracker

	requests      *prometheus.Desc
	hits          *prometheus.Desc
	misses        *prometheus.Desc
	sets          *prometheus.Desc
	deletes       *prometheus.Desc
	invalidations *prometheus.Desc
	degraded      *prometheus.Desc
	hitRate       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector for tracker. layer distinguishes trackers registered
// side by side, e.g. "service" and "query".
func NewCollector(namespace, layer string, tracker *StatsTracker) *Collector {
	labels := []string{"tenant"}
	constLabels := prometheus.Labels{"layer": layer}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, labels, constLabels)
	}

	return &Collector{
		tracker:       tracker,
		requests:      desc("requests_total", "Cache lookups, hits plus misses."),
		hits:          desc("hits_total", "Cache lookups answered from the cache."),
		misses:        desc("misses_total", "Cache lookups that found nothing."),
		sets:          desc("sets_total", "Values written to the cache."),
		deletes:       desc("deletes_total", "Entries removed by explicit deletes."),
		invalidations: desc("invalidations_total", "Entries removed by pattern invalidation."),
		degraded:      desc("degraded_total", "Lookups answered without the remote tier because it failed."),
		hitRate:       desc("hit_rate_percent", "Hits as a percentage of lookups."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.hits
	ch <- c.misses
	ch <- c.sets
	ch <- c.deletes
	ch <- c.invalidations
	ch <- c.degraded
	ch <- c.hitRate
}

// Collect implements prometheus.Collector, emitting one series per tenant and counter.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, tenant := range c.tracker.Tenants() {
		s := c.tracker.Snapshot(tenant)

		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.TotalRequests), tenant)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), tenant)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), tenant)
		ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(s.Sets), tenant)
		ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(s.Deletes), tenant)
		ch <- prometheus.MustNewConstMetric(c.invalidations, prometheus.CounterValue, float64(s.Invalidations), tenant)
		ch <- prometheus.MustNewConstMetric(c.degraded, prometheus.CounterValue, float64(s.Degraded), tenant)
		ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.HitRate(), tenant)
	}
}
