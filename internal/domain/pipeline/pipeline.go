// Package pipeline implements the Call Pipeline (spec.md §4.G): the
// orchestration of policy resolution, caching, parameter overrides, upstream
// dispatch, masking, compression, and escalation bookkeeping for every
// tools/call request. Ordering is fixed: resolve → apply parameter policy →
// cache lookup (a hit returns here) → update escalation → (single-flight)
// call upstream → mask → compress decision → summarize → return.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clip-mcp/clip/internal/ctxkey"
	"github.com/clip-mcp/clip/internal/domain/cache"
	"github.com/clip-mcp/clip/internal/domain/escalation"
	"github.com/clip-mcp/clip/internal/domain/masker"
	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/domain/summarizer"
	"github.com/clip-mcp/clip/internal/domain/upstream"
)

// ShapedResponse is the pipeline's result for one call: the original result
// content, possibly replaced by summarized text and/or masked substrings,
// plus shaping metadata. The Proxy Front-End sends only Content and IsError
// to the client; the metadata fields are not forwarded.
type ShapedResponse struct {
	Content          []ContentBlock
	IsError          bool
	Compressed       bool
	CompressionError string
	OriginalTokens   int
	SummaryTokens    int
	MaskedCount      int
}

// ContentBlock mirrors an MCP tool-result content entry. Only the Text
// variant is shaped by masking/summarization; other block types pass
// through untouched.
type ContentBlock struct {
	Type string // "text" or any other MCP content type, passed through
	Text string
	Raw  any // original block for non-text types, returned unmodified
}

// UpstreamCaller is the port to the Upstream Registry's routing: given a
// qualified tool name and already-overridden arguments, invoke the call and
// return its content blocks.
type UpstreamCaller interface {
	CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]ContentBlock, bool, error)
}

// Resolver is the subset of policy.Resolver the pipeline depends on.
type Resolver interface {
	ResolveCompressionPolicy(qn string) policy.CompressionPolicy
	ResolveMaskingPolicy(qn string) policy.MaskingPolicy
	ResolveCachePolicy(qn string) policy.CachePolicy
	GetHiddenParameters(qn string) []string
	GetParameterOverrides(qn string) map[string]any
	IsToolHidden(qn string) bool
	GetRetryEscalation() *policy.RetryEscalation
	IsBypassEnabled() bool
}

// ErrToolNotFound is returned when the qualified tool is unknown or hidden
// (spec.md I2: a hidden tool behaves as if it never existed).
var ErrToolNotFound = fmt.Errorf("tool not found")

// Metrics is the pipeline's optional observability port (spec.md §4.K).
// A nil Metrics (the default) disables recording entirely; SetMetrics wires
// a concrete Prometheus-backed adapter in at startup.
type Metrics interface {
	RecordUpstreamCall(qn string, ok bool)
	RecordSummarize(qn string, ok bool)
	RecordMasking(qn string, replacements int)
	RecordEscalation(qn string, level int)
	RecordStageLatency(stage string, d time.Duration)
}

// Pipeline wires the Policy Resolver, Response Cache, PII Masker,
// Summarizer, and Retry-Escalation Tracker into the single call path every
// tools/call request takes.
type Pipeline struct {
	resolver   Resolver
	toolCache  *upstream.ToolCache
	caller     UpstreamCaller
	cache      *cache.Cache
	masker     *masker.Masker
	summarizer *summarizer.Summarizer
	escalation *escalation.Tracker
	logger     *slog.Logger
	metrics    Metrics
}

// SetMetrics wires a Metrics recorder in after construction. Safe to call
// once before serving traffic; leaving it unset disables recording.
func (p *Pipeline) SetMetrics(m Metrics) {
	p.metrics = m
}

// loggerFrom returns the per-request enriched logger the Proxy Front-End
// attaches to ctx (ctxkey.LoggerKey), falling back to the pipeline's own
// logger when called outside that path (e.g. directly from tests).
func (p *Pipeline) loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return p.logger
}

// New creates a Pipeline from its component dependencies.
func New(
	resolver Resolver,
	toolCache *upstream.ToolCache,
	caller UpstreamCaller,
	respCache *cache.Cache,
	m *masker.Masker,
	s *summarizer.Summarizer,
	esc *escalation.Tracker,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		toolCache:  toolCache,
		caller:     caller,
		cache:      respCache,
		masker:     m,
		summarizer: s,
		escalation: esc,
		logger:     logger,
	}
}

// CallOptions carries per-call context that doesn't come from policy: the
// client's raw arguments, an optional goal string (spec.md §4.E goal-aware
// summarization), and whether this call requests a cache bypass.
type CallOptions struct {
	QualifiedName string
	Args          map[string]any
	Goal          string
	BypassCache   bool
}

// Call runs the full pipeline for one tools/call, per spec.md §4.G's fixed
// step ordering.
func (p *Pipeline) Call(ctx context.Context, opts CallOptions) (ShapedResponse, error) {
	qn := opts.QualifiedName
	logger := p.loggerFrom(ctx)

	// 1. Resolve existence; hidden tools behave as not-found (I2).
	if _, ok := p.toolCache.GetTool(qn); !ok {
		logger.Debug("tool not found", "tool", qn)
		return ShapedResponse{}, ErrToolNotFound
	}
	if p.resolver.IsToolHidden(qn) {
		return ShapedResponse{}, ErrToolNotFound
	}

	// 2. Apply parameter policy: strip hideParameters, then apply overrides.
	args := applyParameterPolicy(opts.Args, p.resolver.GetHiddenParameters(qn), p.resolver.GetParameterOverrides(qn))

	cachePol := p.resolver.ResolveCachePolicy(qn)
	bypass := p.resolver.IsBypassEnabled() && opts.BypassCache

	key := cache.Key(qn, args)

	// 3. Cache lookup (skipped entirely when bypass is honored).
	if cachePol.Enabled && !bypass {
		if v, ok := p.cache.Peek(key); ok {
			return v.(ShapedResponse), nil
		}
	}

	escKey := qn + "|" + key
	escCount := 1
	if esc := p.resolver.GetRetryEscalation(); esc != nil && esc.Enabled {
		window := time.Duration(esc.WindowSeconds) * time.Second
		escCount = p.escalation.RecordCall(escKey, window)
		if p.metrics != nil {
			p.metrics.RecordEscalation(qn, escCount)
		}
	}

	build := func() (any, error) {
		return p.build(ctx, qn, args, opts.Goal, escCount)
	}

	var (
		result ShapedResponse
		err    error
	)

	if cachePol.Enabled && !bypass {
		ttl := time.Duration(cachePol.TTLSeconds) * time.Second
		var v any
		v, err = p.cache.GetOrCompute(key, ttl, build)
		if err == nil {
			result = v.(ShapedResponse)
		}
	} else {
		var v any
		v, err = build()
		if err == nil {
			result = v.(ShapedResponse)
		}
	}

	if err != nil {
		// 5. Upstream errors propagate; never cached (already excluded above
		// since GetOrCompute does not store builder errors).
		return ShapedResponse{}, err
	}

	return result, nil
}

// build performs steps 5-8: call upstream, mask, decide compression,
// summarize, and returns the shaped response ready for caching.
func (p *Pipeline) build(ctx context.Context, qn string, args map[string]any, goal string, escCount int) (ShapedResponse, error) {
	// 5. Call upstream.
	upstreamStart := time.Now()
	blocks, isError, err := p.caller.CallTool(ctx, qn, args)
	if p.metrics != nil {
		p.metrics.RecordUpstreamCall(qn, err == nil)
		p.metrics.RecordStageLatency("upstream", time.Since(upstreamStart))
	}
	if err != nil {
		return ShapedResponse{}, fmt.Errorf("upstream call to %s failed: %w", qn, err)
	}

	resp := ShapedResponse{Content: blocks, IsError: isError}

	// 6. Mask response text.
	maskPol := p.resolver.ResolveMaskingPolicy(qn)
	if maskPol.Enabled {
		maskStart := time.Now()
		totalMasked := 0
		for i := range resp.Content {
			if resp.Content[i].Type != "text" {
				continue
			}
			r := p.masker.Mask(ctx, resp.Content[i].Text, maskPol)
			resp.Content[i].Text = r.Text
			totalMasked += r.Replacements
		}
		resp.MaskedCount = totalMasked
		if p.metrics != nil {
			p.metrics.RecordMasking(qn, totalMasked)
			p.metrics.RecordStageLatency("mask", time.Since(maskStart))
		}
	}

	// 7. Compression decision.
	compressionPol := p.resolver.ResolveCompressionPolicy(qn)
	fullText := joinText(resp.Content)
	resp.OriginalTokens = summarizer.EstimateTokens(fullText)

	if !compressionPol.Enabled || resp.OriginalTokens < compressionPol.TokenThreshold {
		return resp, nil
	}

	// 8. Summarize with escalation-adjusted maxOutputTokens.
	maxTokens := compressionPol.MaxOutputTokens
	if esc := p.resolver.GetRetryEscalation(); esc != nil && esc.Enabled {
		escCap := float64(policy.DefaultEscalationCap)
		if esc.Cap > 0 {
			escCap = float64(esc.Cap)
		}
		factor := escalation.Factor(escCount, esc.TokenMultiplier, escCap)
		maxTokens = int(float64(maxTokens) * factor)
	}

	summarizeStart := time.Now()
	result, err := p.summarizer.Summarize(ctx, fullText, compressionPol, goal, maxTokens)
	if p.metrics != nil {
		p.metrics.RecordSummarize(qn, err == nil)
		p.metrics.RecordStageLatency("summarize", time.Since(summarizeStart))
	}
	if err != nil {
		// Summarizer failure: fall back to the masked, uncompressed response.
		p.loggerFrom(ctx).Warn("summarizer failed, returning uncompressed response", "tool", qn, "error", err)
		resp.Compressed = false
		resp.CompressionError = err.Error()
		return resp, nil
	}

	resp.Content = []ContentBlock{{Type: "text", Text: result.Text}}
	resp.Compressed = true
	resp.SummaryTokens = result.CompletionTokens

	return resp, nil
}

func applyParameterPolicy(args map[string]any, hideParameters []string, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, h := range hideParameters {
		delete(out, h)
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func joinText(blocks []ContentBlock) string {
	total := 0
	for _, b := range blocks {
		total += len(b.Text)
	}
	buf := make([]byte, 0, total)
	for _, b := range blocks {
		if b.Type == "text" {
			buf = append(buf, b.Text...)
		}
	}
	return string(buf)
}
