package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clip-mcp/clip/internal/domain/cache"
	"github.com/clip-mcp/clip/internal/domain/escalation"
	"github.com/clip-mcp/clip/internal/domain/masker"
	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/domain/summarizer"
	"github.com/clip-mcp/clip/internal/domain/upstream"
)

type fakeResolver struct {
	compression policy.CompressionPolicy
	masking     policy.MaskingPolicy
	cachePolicy policy.CachePolicy
	hidden      map[string]bool
	hideParams  []string
	overrides   map[string]any
	retryEsc    *policy.RetryEscalation
	bypass      bool
}

func (f *fakeResolver) ResolveCompressionPolicy(qn string) policy.CompressionPolicy { return f.compression }
func (f *fakeResolver) ResolveMaskingPolicy(qn string) policy.MaskingPolicy         { return f.masking }
func (f *fakeResolver) ResolveCachePolicy(qn string) policy.CachePolicy             { return f.cachePolicy }
func (f *fakeResolver) GetHiddenParameters(qn string) []string                      { return f.hideParams }
func (f *fakeResolver) GetParameterOverrides(qn string) map[string]any              { return f.overrides }
func (f *fakeResolver) IsToolHidden(qn string) bool                                 { return f.hidden[qn] }
func (f *fakeResolver) GetRetryEscalation() *policy.RetryEscalation                 { return f.retryEsc }
func (f *fakeResolver) IsBypassEnabled() bool                                       { return f.bypass }

type fakeCaller struct {
	calls int32
	text  string
	err   error
}

func (f *fakeCaller) CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]ContentBlock, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, false, f.err
	}
	return []ContentBlock{{Type: "text", Text: f.text}}, false, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(resolver Resolver, caller UpstreamCaller, toolName string) (*Pipeline, *cache.Cache, *escalation.Tracker) {
	tc := upstream.NewToolCache()
	tc.SetToolsForUpstream("srv", []upstream.DiscoveredTool{{Name: toolName}})

	c := cache.New(time.Hour)
	m := masker.New(nil)
	s := summarizer.New(summarizer.LLMConfig{BaseURL: "http://unused", Model: "m"})
	esc := escalation.New()

	return New(resolver, tc, caller, c, m, s, esc, discardLogger()), c, esc
}

func TestCall_ToolNotFound(t *testing.T) {
	resolver := &fakeResolver{cachePolicy: policy.CachePolicy{}}
	caller := &fakeCaller{text: "hi"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	_, err := p.Call(context.Background(), CallOptions{QualifiedName: "srv__missing", Args: map[string]any{}})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestCall_HiddenToolIsNotFound(t *testing.T) {
	resolver := &fakeResolver{hidden: map[string]bool{"srv__fetch": true}}
	caller := &fakeCaller{text: "hi"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	_, err := p.Call(context.Background(), CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{}})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound for hidden tool, got %v", err)
	}
}

func TestCall_PassesThroughBelowThreshold(t *testing.T) {
	resolver := &fakeResolver{
		compression: policy.CompressionPolicy{Enabled: true, TokenThreshold: 1000, MaxOutputTokens: 100},
	}
	caller := &fakeCaller{text: "short response"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	resp, err := p.Call(context.Background(), CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Compressed {
		t.Fatalf("expected no compression below threshold")
	}
	if resp.Content[0].Text != "short response" {
		t.Fatalf("expected passthrough text, got %q", resp.Content[0].Text)
	}
}

func TestCall_ParameterOverridesAndHiding(t *testing.T) {
	resolver := &fakeResolver{
		hideParams: []string{"secret"},
		overrides:  map[string]any{"limit": 10},
	}
	caller := &fakeCaller{text: "ok"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	var capturedArgs map[string]any
	caller2 := &capturingCaller{inner: caller, capture: &capturedArgs}
	p2, c2, esc2 := newTestPipeline(resolver, caller2, "fetch")
	defer c2.Close()
	defer esc2.Close()

	_, err := p2.Call(context.Background(), CallOptions{
		QualifiedName: "srv__fetch",
		Args:          map[string]any{"secret": "x", "q": "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := capturedArgs["secret"]; ok {
		t.Fatalf("expected hideParameters to strip 'secret', got %+v", capturedArgs)
	}
	if capturedArgs["limit"] != 10 {
		t.Fatalf("expected parameterOverrides to inject 'limit'=10, got %+v", capturedArgs)
	}
	if capturedArgs["q"] != "hello" {
		t.Fatalf("expected untouched args to survive, got %+v", capturedArgs)
	}
	_ = p
}

type capturingCaller struct {
	inner   UpstreamCaller
	capture *map[string]any
}

func (c *capturingCaller) CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]ContentBlock, bool, error) {
	*c.capture = args
	return c.inner.CallTool(ctx, qualifiedName, args)
}

func TestCall_CacheHitSkipsUpstream(t *testing.T) {
	resolver := &fakeResolver{
		cachePolicy: policy.CachePolicy{Enabled: true, TTLSeconds: 60},
	}
	caller := &fakeCaller{text: "cached value"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	opts := CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{"q": "x"}}

	if _, err := p.Call(context.Background(), opts); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := p.Call(context.Background(), opts); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if atomic.LoadInt32(&caller.calls) != 1 {
		t.Fatalf("expected upstream invoked exactly once across both calls, got %d", caller.calls)
	}
}

func TestCall_UpstreamErrorPropagatesAndIsNotCached(t *testing.T) {
	resolver := &fakeResolver{
		cachePolicy: policy.CachePolicy{Enabled: true, TTLSeconds: 60},
	}
	caller := &fakeCaller{err: errors.New("boom")}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	opts := CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{}}

	if _, err := p.Call(context.Background(), opts); err == nil {
		t.Fatalf("expected error to propagate")
	}

	caller.err = nil
	caller.text = "now it works"
	resp, err := p.Call(context.Background(), opts)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if resp.Content[0].Text != "now it works" {
		t.Fatalf("expected fresh computation after failed call was not cached, got %q", resp.Content[0].Text)
	}
}

func TestCall_MasksPII(t *testing.T) {
	resolver := &fakeResolver{
		masking: policy.MaskingPolicy{Enabled: true, PIITypes: map[string]struct{}{"email": {}}},
	}
	caller := &fakeCaller{text: "contact a@b.com"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	resp, err := p.Call(context.Background(), CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.MaskedCount != 1 {
		t.Fatalf("expected 1 masked PII instance, got %d", resp.MaskedCount)
	}
	if resp.Content[0].Text != "contact [REDACTED_EMAIL]" {
		t.Fatalf("got %q", resp.Content[0].Text)
	}
}

func TestCall_BypassSkipsCache(t *testing.T) {
	resolver := &fakeResolver{
		cachePolicy: policy.CachePolicy{Enabled: true, TTLSeconds: 60},
		bypass:      true,
	}
	caller := &fakeCaller{text: "v1"}
	p, c, esc := newTestPipeline(resolver, caller, "fetch")
	defer c.Close()
	defer esc.Close()

	opts := CallOptions{QualifiedName: "srv__fetch", Args: map[string]any{}, BypassCache: true}

	if _, err := p.Call(context.Background(), opts); err != nil {
		t.Fatalf("first call: %v", err)
	}
	caller.text = "v2"
	resp, err := p.Call(context.Background(), opts)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if resp.Content[0].Text != "v2" {
		t.Fatalf("expected bypass to force recomputation, got %q", resp.Content[0].Text)
	}
	if atomic.LoadInt32(&caller.calls) != 2 {
		t.Fatalf("expected 2 upstream calls with bypass enabled, got %d", caller.calls)
	}
}
