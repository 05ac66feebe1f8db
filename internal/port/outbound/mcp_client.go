// Package outbound defines the outbound port interfaces CLIP's domain and
// service layers depend on, implemented by concrete adapters.
package outbound

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/domain/upstream"
)

// MCPUpstreamClient is the outbound port for connecting to a single upstream
// MCP server. Adapters implement this for stdio and SSE transports; CLIP's
// raw wire framing is owned entirely by modelcontextprotocol/go-sdk (the
// transport itself is an explicit external collaborator per the
// specification), so this port speaks in typed go-sdk results rather than
// raw bytes.
type MCPUpstreamClient interface {
	// Connect performs the MCP handshake and leaves the session ready for
	// ListTools/CallTool. It does not discover tools itself.
	Connect(ctx context.Context) error

	// ListTools queries the upstream's tools/list and returns them unqualified
	// (namespacing into qualified names is the Upstream Registry's job).
	ListTools(ctx context.Context) ([]upstream.DiscoveredTool, error)

	// CallTool invokes a single tool by its bare (unqualified) name.
	CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)

	// ListResources queries the upstream's resources/list, for the Proxy
	// Front-End's resource-forwarding catalog (spec.md §4.H).
	ListResources(ctx context.Context) ([]*mcp.Resource, error)

	// ReadResource forwards a resources/read to this upstream.
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	// ListPrompts queries the upstream's prompts/list.
	ListPrompts(ctx context.Context) ([]*mcp.Prompt, error)

	// GetPrompt forwards a prompts/get to this upstream.
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)

	// Wait blocks until the underlying session/process terminates.
	Wait() error

	// Close terminates the connection and releases resources. Idempotent.
	Close() error
}
