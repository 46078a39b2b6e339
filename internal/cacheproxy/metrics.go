package cacheproxy

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for cache operations. The operation counters
// are lock-free (sync/atomic); classification tallies take their own
// small mutex. Neither shares a lock with the Cache's critical sections.
type Metrics struct {
	enabled bool

	hits              atomic.Uint64
	misses            atomic.Uint64
	stores            atomic.Uint64
	evictions         atomic.Uint64
	rejectedTooLarge  atomic.Uint64
	rejectedCacheFull atomic.Uint64

	classMu     sync.Mutex
	classCounts map[string]uint64
}

// NewMetrics creates a metrics collector. A disabled collector still
// satisfies every call but does no counting, so callers never need a nil
// check.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled, classCounts: make(map[string]uint64)}
}

func (m *Metrics) RecordHit() {
	if m.enabled {
		m.hits.Add(1)
	}
}

func (m *Metrics) RecordMiss() {
	if m.enabled {
		m.misses.Add(1)
	}
}

func (m *Metrics) RecordStore() {
	if m.enabled {
		m.stores.Add(1)
	}
}

func (m *Metrics) RecordEviction() {
	if m.enabled {
		m.evictions.Add(1)
	}
}

func (m *Metrics) RecordRejectTooLarge() {
	if m.enabled {
		m.rejectedTooLarge.Add(1)
	}
}

func (m *Metrics) RecordRejectCacheFull() {
	if m.enabled {
		m.rejectedCacheFull.Add(1)
	}
}

// RecordClassification tallies a Content Classifier label (e.g.
// "2xx application/json") for metrics breakdown. It never influences
// caching decisions.
func (m *Metrics) RecordClassification(label string) {
	if !m.enabled {
		return
	}
	m.classMu.Lock()
	m.classCounts[label]++
	m.classMu.Unlock()
}

// CacheStats is a point-in-time snapshot of the counters, suitable for
// logging or JSON exposition.
type CacheStats struct {
	Hits              uint64            `json:"hits"`
	Misses            uint64            `json:"misses"`
	Stores            uint64            `json:"stores"`
	Evictions         uint64            `json:"evictions"`
	RejectedTooLarge  uint64            `json:"rejected_too_large"`
	RejectedCacheFull uint64            `json:"rejected_cache_full"`
	HitRatio          float64           `json:"hit_ratio"`
	TotalBytesUsed    uint64            `json:"total_bytes_used"`
	EntryCount        int               `json:"entry_count"`
	ClassCounts       map[string]uint64 `json:"class_counts"`
}

// Snapshot captures the current counters alongside the cache's current
// size accounting (passed in by the caller, since Metrics itself has no
// reference to the Cache).
func (m *Metrics) Snapshot(totalBytesUsed uint64, entryCount int) CacheStats {
	stats := CacheStats{
		Hits:              m.hits.Load(),
		Misses:            m.misses.Load(),
		Stores:            m.stores.Load(),
		Evictions:         m.evictions.Load(),
		RejectedTooLarge:  m.rejectedTooLarge.Load(),
		RejectedCacheFull: m.rejectedCacheFull.Load(),
		TotalBytesUsed:    totalBytesUsed,
		EntryCount:        entryCount,
		ClassCounts:       make(map[string]uint64),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}

	m.classMu.Lock()
	for k, v := range m.classCounts {
		stats.ClassCounts[k] = v
	}
	m.classMu.Unlock()

	return stats
}

var (
	hitsDesc      = prometheus.NewDesc("cacheproxy_hits_total", "Cache hits.", nil, nil)
	missesDesc    = prometheus.NewDesc("cacheproxy_misses_total", "Cache misses.", nil, nil)
	storesDesc    = prometheus.NewDesc("cacheproxy_stores_total", "Entries admitted to the cache.", nil, nil)
	evictionsDesc = prometheus.NewDesc("cacheproxy_evictions_total", "Entries evicted to make room.", nil, nil)
	rejectedDesc  = prometheus.NewDesc("cacheproxy_rejected_total", "Entries rejected on admission.", []string{"reason"}, nil)
	bytesDesc     = prometheus.NewDesc("cacheproxy_cache_bytes", "Aggregate bytes currently cached.", nil, nil)
	entriesDesc   = prometheus.NewDesc("cacheproxy_cache_entries", "Number of entries currently cached.", nil, nil)
)

// promCollector adapts Metrics+Cache to prometheus.Collector without
// either type depending on prometheus directly.
type promCollector struct {
	metrics *Metrics
	cache   *Cache
}

// Collector returns a prometheus.Collector that reports m's counters
// alongside cache's live size accounting. Registration is the caller's
// responsibility (see cmd/proxy, which registers it only when a metrics
// address is configured).
func (m *Metrics) Collector(cache *Cache) prometheus.Collector {
	return &promCollector{metrics: m, cache: cache}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- storesDesc
	ch <- evictionsDesc
	ch <- rejectedDesc
	ch <- bytesDesc
	ch <- entriesDesc
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	stats := p.metrics.Snapshot(uint64(p.cache.TotalBytesUsed()), p.cache.Len())

	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(storesDesc, prometheus.CounterValue, float64(stats.Stores))
	ch <- prometheus.MustNewConstMetric(evictionsDesc, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(rejectedDesc, prometheus.CounterValue, float64(stats.RejectedTooLarge), "too_large")
	ch <- prometheus.MustNewConstMetric(rejectedDesc, prometheus.CounterValue, float64(stats.RejectedCacheFull), "cache_full")
	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.GaugeValue, float64(stats.TotalBytesUsed))
	ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(stats.EntryCount))
}
