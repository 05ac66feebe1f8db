// Package mcpserver implements the Proxy Front-End (spec.md §4.H): the
// single MCP server CLIP presents to its client. It advertises the union
// of every connected upstream's catalog after resolver filtering (hidden
// tools removed, descriptions overridden, hideParameters stripped from
// input schemas) and dispatches every tools/call into the Call Pipeline.
// Tool registration follows dslh-mcp-metatool's AddTool-per-discovered-tool
// pattern (main.go, internal/tools/proxied.go), generalized from a static
// proxy list to CLIP's dynamically-refreshed, policy-filtered catalog.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/ctxkey"
	"github.com/clip-mcp/clip/internal/domain/pipeline"
	"github.com/clip-mcp/clip/internal/domain/upstream"
)

// Reserved argument keys carrying CLIP's per-call signaling, stripped
// before arguments reach the pipeline (DESIGN.md Open Questions 4 and 5).
const (
	reservedBypassKey = "__clip_bypass_cache"
	reservedGoalKey   = "__clip_goal"
)

// Resolver is the subset of policy.Resolver the front-end needs for
// catalog shaping.
type Resolver interface {
	IsToolHidden(qn string) bool
	GetDescriptionOverride(qn string) (string, bool)
	GetHiddenParameters(qn string) []string
}

// Caller runs a shaped tools/call through the Call Pipeline.
type Caller interface {
	Call(ctx context.Context, opts pipeline.CallOptions) (pipeline.ShapedResponse, error)
}

// dynamicArgs accepts any argument shape, since CLIP's tool schemas are
// discovered at runtime rather than known at compile time (mirrors
// dslh-mcp-metatool's ProxiedToolArgs).
type dynamicArgs map[string]any

// Server is CLIP's Proxy Front-End.
type Server struct {
	mcpServer *sdkmcp.Server
	toolCache *upstream.ToolCache
	resolver  Resolver
	caller    Caller
	logger    *slog.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

// New creates a Server wrapping a fresh go-sdk MCP server.
func New(toolCache *upstream.ToolCache, resolver Resolver, caller Caller, logger *slog.Logger) *Server {
	impl := &sdkmcp.Implementation{Name: "clip", Version: "0.1.0"}
	return &Server{
		mcpServer:  sdkmcp.NewServer(impl, nil),
		toolCache:  toolCache,
		resolver:   resolver,
		caller:     caller,
		logger:     logger,
		registered: make(map[string]struct{}),
	}
}

// Run serves the client over transport until ctx is cancelled or the
// session ends.
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// Underlying returns the wrapped go-sdk server, for adapters (e.g.
// resource/prompt forwarding) that must register against the same server.
func (s *Server) Underlying() *sdkmcp.Server {
	return s.mcpServer
}

// Sync re-registers the tool set from the current ToolCache contents,
// applying hidden-tool filtering, description overrides, and
// hideParameters schema stripping. Call after every upstream connect/
// disconnect so tools/list stays current.
func (s *Server) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.toolCache.GetAllTools()
	sort.Slice(all, func(i, j int) bool { return all[i].QualifiedName < all[j].QualifiedName })

	wanted := make(map[string]*upstream.DiscoveredTool, len(all))
	for _, t := range all {
		if s.resolver.IsToolHidden(t.QualifiedName) {
			continue
		}
		wanted[t.QualifiedName] = t
	}

	for qn := range s.registered {
		if _, ok := wanted[qn]; !ok {
			s.mcpServer.RemoveTools(qn)
			delete(s.registered, qn)
		}
	}

	for qn, t := range wanted {
		s.registerTool(qn, t)
		s.registered[qn] = struct{}{}
	}
}

func (s *Server) registerTool(qn string, t *upstream.DiscoveredTool) {
	desc := t.Description
	if override, ok := s.resolver.GetDescriptionOverride(qn); ok {
		desc = override
	}

	schema, err := buildInputSchema(t.InputSchema, s.resolver.GetHiddenParameters(qn))
	if err != nil {
		s.logger.Warn("failed to parse input schema, registering without one", "tool", qn, "error", err)
	}

	tool := &sdkmcp.Tool{Name: qn, Description: desc, InputSchema: schema}
	capturedQN := qn

	sdkmcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *sdkmcp.CallToolRequest, args dynamicArgs) (*sdkmcp.CallToolResult, any, error) {
		return s.handleCall(ctx, capturedQN, args)
	})
}

func (s *Server) handleCall(ctx context.Context, qn string, args dynamicArgs) (*sdkmcp.CallToolResult, any, error) {
	reqID := uuid.NewString()
	reqLogger := s.logger.With("qualified_tool", qn, "request_id", reqID)
	ctx = context.WithValue(ctx, ctxkey.RequestIDKey{}, reqID)
	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, reqLogger)

	raw := map[string]any(args)

	bypass, _ := raw[reservedBypassKey].(bool)
	goal, _ := raw[reservedGoalKey].(string)

	callArgs := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == reservedBypassKey || k == reservedGoalKey {
			continue
		}
		callArgs[k] = v
	}

	resp, err := s.caller.Call(ctx, pipeline.CallOptions{
		QualifiedName: qn,
		Args:          callArgs,
		Goal:          goal,
		BypassCache:   bypass,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrToolNotFound) {
			return nil, nil, errors.New("tool not found: " + qn)
		}
		return &sdkmcp.CallToolResult{
			IsError: true,
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
		}, nil, nil
	}

	return &sdkmcp.CallToolResult{
		Content: fromContentBlocks(resp.Content),
		IsError: resp.IsError,
	}, nil, nil
}

func fromContentBlocks(blocks []pipeline.ContentBlock) []sdkmcp.Content {
	out := make([]sdkmcp.Content, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			out = append(out, &sdkmcp.TextContent{Text: b.Text})
			continue
		}
		if c, ok := b.Raw.(sdkmcp.Content); ok {
			out = append(out, c)
		}
	}
	return out
}
