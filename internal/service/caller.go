package service

import (
	"context"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/ctxkey"
	"github.com/clip-mcp/clip/internal/domain/pipeline"
	"github.com/clip-mcp/clip/internal/domain/qualname"
	"github.com/clip-mcp/clip/internal/telemetry"
)

// PipelineCaller adapts the UpstreamManager into the pipeline.UpstreamCaller
// port: it splits a qualified tool name back into its upstream id and bare
// tool name, finds the connected client, and translates the go-sdk result
// shape into the pipeline's transport-agnostic ContentBlock.
type PipelineCaller struct {
	manager *UpstreamManager
}

// NewPipelineCaller creates a PipelineCaller bound to manager.
func NewPipelineCaller(manager *UpstreamManager) *PipelineCaller {
	return &PipelineCaller{manager: manager}
}

// CallTool implements pipeline.UpstreamCaller.
func (c *PipelineCaller) CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]pipeline.ContentBlock, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "upstream.call_tool")
	defer span.End()

	upstreamID, toolName, ok := qualname.Split(qualifiedName)
	if !ok {
		return nil, false, fmt.Errorf("malformed qualified tool name: %s", qualifiedName)
	}

	logger, _ := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger)

	client, err := c.manager.GetClient(upstreamID)
	if err != nil {
		if logger != nil {
			logger.Warn("upstream unavailable", "upstream_id", upstreamID, "error", err)
		}
		return nil, false, fmt.Errorf("upstream %s unavailable: %w", upstreamID, err)
	}

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		if logger != nil {
			logger.Warn("upstream call failed", "upstream_id", upstreamID, "tool", toolName, "error", err)
		}
		return nil, false, err
	}

	return toContentBlocks(result.Content), result.IsError, nil
}

// toContentBlocks converts go-sdk content blocks into the pipeline's
// transport-agnostic representation. Only TextContent is shaped (masked/
// summarized); every other block type passes through as Raw, unmodified.
func toContentBlocks(blocks []sdkmcp.Content) []pipeline.ContentBlock {
	out := make([]pipeline.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if tc, ok := b.(*sdkmcp.TextContent); ok {
			out = append(out, pipeline.ContentBlock{Type: "text", Text: tc.Text})
			continue
		}
		out = append(out, pipeline.ContentBlock{Type: "raw", Raw: b})
	}
	return out
}

var _ pipeline.UpstreamCaller = (*PipelineCaller)(nil)
