package memory

import (
	"math"
	"sort"
	"sync"

	"github.com/ampstudio/recall/internal/observability"
)

// Performance targets checked by CheckAlerts.
const (
	TargetHitRatePercent       = 85.0
	TargetCacheHitRatePercent  = 90.0
	TargetSearchP95Ms          = 200.0
	TargetWriteP95Ms           = 500.0
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// MemoryMetrics is a computed snapshot of engine health.
type MemoryMetrics struct {
	TotalSearches         int     `json:"total_searches"`
	SearchesWithResults   int     `json:"searches_with_results"`
	TotalWrites           int     `json:"total_writes"`
	CacheHits             int     `json:"cache_hits"`
	CacheMisses           int     `json:"cache_misses"`
	HitRatePercent        float64 `json:"hit_rate_percent"`
	CacheHitRatePercent   float64 `json:"cache_hit_rate_percent"`
	AvgRelevanceScore     float64 `json:"avg_relevance_score"`
	AvgSearchLatencyMs    float64 `json:"avg_search_latency_ms"`
	AvgWriteLatencyMs     float64 `json:"avg_write_latency_ms"`
	SearchLatencyP95Ms    float64 `json:"search_latency_p95_ms"`
	WriteLatencyP95Ms     float64 `json:"write_latency_p95_ms"`
	IndexConsistencyPct   float64 `json:"index_consistency_pct"`
	ChunkOverlapCoverage  float64 `json:"chunk_overlap_coverage_pct"`
}

// MetricAlert is one threshold violation.
type MetricAlert struct {
	Metric      string  `json:"metric"`
	Threshold   float64 `json:"threshold"`
	ActualValue float64 `json:"actual_value"`
	Severity    string  `json:"severity"`
	Message     string  `json:"message"`
}

// Collector accumulates search, write, and cache observations in memory and
// derives rates, averages, and P95 latencies on demand. Safe for concurrent
// use.
type Collector struct {
	mu sync.Mutex

	totalSearches       int
	searchesWithResults int
	relevanceScores     []float64
	searchLatencies     []float64

	totalWrites    int
	writeLatencies []float64

	cacheHits   int
	cacheMisses int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordSearch observes one completed search.
func (c *Collector) RecordSearch(results []SearchResult, latencyMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalSearches++
	c.searchLatencies = append(c.searchLatencies, float64(latencyMs))
	if len(results) > 0 {
		c.searchesWithResults++
		for _, r := range results {
			c.relevanceScores = append(c.relevanceScores, r.RelevanceScore)
		}
	}
}

// RecordWrite observes one indexing operation.
func (c *Collector) RecordWrite(latencyMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalWrites++
	c.writeLatencies = append(c.writeLatencies, float64(latencyMs))
}

// RecordEmbedding observes one embedding lookup.
func (c *Collector) RecordEmbedding(cacheHit bool) {
	observability.RecordEmbeddingCache(cacheHit)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cacheHit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

// CacheHitRate returns hits / (hits + misses) as a percentage, or nil before
// any lookup has been observed.
func (c *Collector) CacheHitRate() *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.cacheHits + c.cacheMisses
	if total == 0 {
		return nil
	}
	rate := float64(c.cacheHits) / float64(total) * 100
	return &rate
}

// Metrics computes the current snapshot.
func (c *Collector) Metrics() MemoryMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := MemoryMetrics{
		TotalSearches:       c.totalSearches,
		SearchesWithResults: c.searchesWithResults,
		TotalWrites:         c.totalWrites,
		CacheHits:           c.cacheHits,
		CacheMisses:         c.cacheMisses,
		// Placeholders until verification jobs exist.
		IndexConsistencyPct:  100,
		ChunkOverlapCoverage: 95,
	}

	if c.totalSearches > 0 {
		m.HitRatePercent = float64(c.searchesWithResults) / float64(c.totalSearches) * 100
	}
	if total := c.cacheHits + c.cacheMisses; total > 0 {
		m.CacheHitRatePercent = float64(c.cacheHits) / float64(total) * 100
	}

	m.AvgRelevanceScore = mean(c.relevanceScores)
	m.AvgSearchLatencyMs = mean(c.searchLatencies)
	m.AvgWriteLatencyMs = mean(c.writeLatencies)
	m.SearchLatencyP95Ms = percentile95(c.searchLatencies)
	m.WriteLatencyP95Ms = percentile95(c.writeLatencies)

	return m
}

// CheckAlerts compares the snapshot against the performance targets.
// A low hit rate is critical; the rest are warnings.
func (c *Collector) CheckAlerts() []MetricAlert {
	m := c.Metrics()

	var alerts []MetricAlert

	if m.TotalSearches > 0 && m.HitRatePercent < TargetHitRatePercent {
		alerts = append(alerts, MetricAlert{
			Metric:      "hit_rate_percent",
			Threshold:   TargetHitRatePercent,
			ActualValue: m.HitRatePercent,
			Severity:    SeverityCritical,
			Message:     "search hit rate below target",
		})
	}

	if total := m.CacheHits + m.CacheMisses; total > 0 && m.CacheHitRatePercent < TargetCacheHitRatePercent {
		alerts = append(alerts, MetricAlert{
			Metric:      "cache_hit_rate_percent",
			Threshold:   TargetCacheHitRatePercent,
			ActualValue: m.CacheHitRatePercent,
			Severity:    SeverityWarning,
			Message:     "embedding cache hit rate below target",
		})
	}

	if m.TotalSearches > 0 && m.SearchLatencyP95Ms > TargetSearchP95Ms {
		alerts = append(alerts, MetricAlert{
			Metric:      "search_latency_p95_ms",
			Threshold:   TargetSearchP95Ms,
			ActualValue: m.SearchLatencyP95Ms,
			Severity:    SeverityWarning,
			Message:     "search latency P95 above target",
		})
	}

	if m.TotalWrites > 0 && m.WriteLatencyP95Ms > TargetWriteP95Ms {
		alerts = append(alerts, MetricAlert{
			Metric:      "write_latency_p95_ms",
			Threshold:   TargetWriteP95Ms,
			ActualValue: m.WriteLatencyP95Ms,
			Severity:    SeverityWarning,
			Message:     "write latency P95 above target",
		})
	}

	return alerts
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile95 returns sorted[floor(n*0.95)], clamped to the last element.
func percentile95(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * 0.95))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
