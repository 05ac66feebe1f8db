// Package http provides CLIP's ambient observability endpoints (spec.md
// §4.K): a Prometheus /metrics scrape target and a /healthz liveness probe.
// Neither is part of the MCP protocol surface the client speaks over stdio;
// both exist purely so an operator can watch the proxy from outside it.
package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clip-mcp/clip/internal/domain/pipeline"
)

// Metrics holds every Prometheus collector CLIP exposes. It implements the
// pipeline.Metrics port directly so it can be handed to Pipeline.SetMetrics
// without an adapter shim, following the teacher's NewMetrics(reg) pattern
// (internal/adapter/inbound/http/metrics.go) of one struct, one
// constructor, fields wired at registration time.
type Metrics struct {
	UpstreamCallsTotal *prometheus.CounterVec
	SummarizeTotal     *prometheus.CounterVec
	MaskingReplaced    *prometheus.CounterVec
	EscalationLevel    *prometheus.HistogramVec
	StageLatency       *prometheus.HistogramVec

	CacheHits   prometheus.GaugeFunc
	CacheMisses prometheus.GaugeFunc
	CacheSize   prometheus.GaugeFunc

	EscalationTracked prometheus.GaugeFunc

	UpstreamsConnected prometheus.GaugeFunc
}

// CacheStatsSource is satisfied by cache.Cache: the counters backing the
// cache hit/miss/size gauges.
type CacheStatsSource interface {
	Stats() (hits, misses uint64)
	Len() int
}

// EscalationStatsSource is satisfied by escalation.Tracker.
type EscalationStatsSource interface {
	Len() int
}

// UpstreamStatsSource is satisfied by service.UpstreamManager.
type UpstreamStatsSource interface {
	ConnectedUpstreamIDs() []string
}

// NewMetrics creates and registers CLIP's metrics with reg. The cache,
// escalation tracker, and upstream manager are polled at scrape time via
// GaugeFunc rather than pushed to on every call, since all three already
// track their own counts internally (cache.Cache.Stats/Len,
// escalation.Tracker.Len, UpstreamManager.ConnectedUpstreamIDs) — recording
// the same numbers a second time through a push path would just be
// duplicated bookkeeping.
func NewMetrics(reg prometheus.Registerer, respCache CacheStatsSource, escTracker EscalationStatsSource, upstreams UpstreamStatsSource) *Metrics {
	m := &Metrics{
		UpstreamCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip",
				Name:      "upstream_calls_total",
				Help:      "Total upstream tool calls made through the pipeline",
			},
			[]string{"tool", "outcome"}, // outcome=ok/error
		),
		SummarizeTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip",
				Name:      "summarize_total",
				Help:      "Total summarizer invocations",
			},
			[]string{"tool", "outcome"},
		),
		MaskingReplaced: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip",
				Name:      "masking_replacements_total",
				Help:      "Total PII substrings replaced by the masker",
			},
			[]string{"tool"},
		),
		EscalationLevel: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clip",
				Name:      "escalation_level",
				Help:      "Distribution of retry-escalation call counts observed per tool",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
			},
			[]string{"tool"},
		),
		StageLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clip",
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Duration of each call-pipeline stage (upstream, mask, summarize)",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}

	m.CacheHits = promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "clip", Name: "cache_hits_total", Help: "Response cache hits"},
		func() float64 { hits, _ := respCache.Stats(); return float64(hits) },
	)
	m.CacheMisses = promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "clip", Name: "cache_misses_total", Help: "Response cache misses"},
		func() float64 { _, misses := respCache.Stats(); return float64(misses) },
	)
	m.CacheSize = promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "clip", Name: "cache_entries", Help: "Current response cache entry count"},
		func() float64 { return float64(respCache.Len()) },
	)
	m.EscalationTracked = promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "clip", Name: "escalation_tracked_keys", Help: "Keys currently tracked by the retry-escalation tracker"},
		func() float64 { return float64(escTracker.Len()) },
	)
	m.UpstreamsConnected = promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "clip", Name: "upstreams_connected", Help: "Number of upstreams currently connected"},
		func() float64 { return float64(len(upstreams.ConnectedUpstreamIDs())) },
	)

	return m
}

// RecordUpstreamCall implements pipeline.Metrics.
func (m *Metrics) RecordUpstreamCall(qn string, ok bool) {
	m.UpstreamCallsTotal.WithLabelValues(qn, outcomeLabel(ok)).Inc()
}

// RecordSummarize implements pipeline.Metrics.
func (m *Metrics) RecordSummarize(qn string, ok bool) {
	m.SummarizeTotal.WithLabelValues(qn, outcomeLabel(ok)).Inc()
}

// RecordMasking implements pipeline.Metrics.
func (m *Metrics) RecordMasking(qn string, replacements int) {
	if replacements == 0 {
		return
	}
	m.MaskingReplaced.WithLabelValues(qn).Add(float64(replacements))
}

// RecordEscalation implements pipeline.Metrics.
func (m *Metrics) RecordEscalation(qn string, level int) {
	m.EscalationLevel.WithLabelValues(qn).Observe(float64(level))
}

// RecordStageLatency implements pipeline.Metrics.
func (m *Metrics) RecordStageLatency(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

var _ pipeline.Metrics = (*Metrics)(nil)

func outcomeLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
