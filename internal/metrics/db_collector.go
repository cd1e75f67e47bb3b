package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a snapshot of the pgxpool.Stat counters the dashboard uses.
type PoolStats struct {
	Total         int32
	Idle          int32
	Acquired      int32
	Max           int32
	EmptyAcquires int64
}

// PoolStatFunc reads the current pool statistics.
type PoolStatFunc func() PoolStats

type poolGauge struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(PoolStats) float64
}

// poolCollector reads the pool on each scrape.
type poolCollector struct {
	stats  PoolStatFunc
	gauges []poolGauge
}

func newPoolCollector(stats PoolStatFunc) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("planboard_db_pool_"+name, help, nil, nil)
	}
	return &poolCollector{
		stats: stats,
		gauges: []poolGauge{
			{desc("total_conns", "Connections currently open in the pool."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Total) }},
			{desc("idle_conns", "Open connections not in use."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Idle) }},
			{desc("acquired_conns", "Connections checked out by queries."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Acquired) }},
			{desc("max_conns", "Configured pool size."), prometheus.GaugeValue,
				func(s PoolStats) float64 { return float64(s.Max) }},
			{desc("empty_acquires_total", "Acquires that had to wait for a free connection."), prometheus.CounterValue,
				func(s PoolStats) float64 { return float64(s.EmptyAcquires) }},
		},
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.kind, g.value(s))
	}
}
