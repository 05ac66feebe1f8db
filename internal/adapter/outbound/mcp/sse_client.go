package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/domain/upstream"
	"github.com/clip-mcp/clip/internal/port/outbound"
)

// SSEClient connects to a remote MCP server over HTTP/SSE, following the
// teacher's HTTPClient lifecycle (bounded timeouts, idempotent Close) but
// delegating the transport itself to go-sdk's SSE client transport.
type SSEClient struct {
	url     string
	timeout time.Duration

	mu      sync.Mutex
	client  *mcp.Client
	session *mcp.ClientSession
	done    chan struct{}
}

// NewSSEClient creates a client for the given remote MCP server URL.
func NewSSEClient(url string, timeout time.Duration) *SSEClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SSEClient{url: url, timeout: timeout, done: make(chan struct{})}
}

// Connect opens the SSE session and performs the MCP handshake.
func (c *SSEClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return errors.New("client already connected")
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "clip", Version: "0.1.0"}, nil)
	transport := &mcp.SSEClientTransport{Endpoint: c.url}

	session, err := client.Connect(ctx, transport, &mcp.ClientSessionOptions{})
	if err != nil {
		return fmt.Errorf("connect upstream: %w", err)
	}

	c.client = client
	c.session = session
	return nil
}

// ListTools queries tools/list and returns them unqualified.
func (c *SSEClient) ListTools(ctx context.Context) ([]upstream.DiscoveredTool, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]upstream.DiscoveredTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = nil
		}
		tools = append(tools, upstream.DiscoveredTool{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  schema,
			DiscoveredAt: time.Now(),
		})
	}
	return tools, nil
}

// CallTool invokes a tool by its bare name.
func (c *SSEClient) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", toolName, err)
	}
	return result, nil
}

// ListResources queries the upstream's resources/list.
func (c *SSEClient) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}
	result, err := session.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

// ReadResource forwards a resources/read to this upstream.
func (c *SSEClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}
	result, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return result, nil
}

// ListPrompts queries the upstream's prompts/list.
func (c *SSEClient) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}
	result, err := session.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

// GetPrompt forwards a prompts/get to this upstream.
func (c *SSEClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}
	result, err := session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	return result, nil
}

// Wait blocks until the session is closed.
func (c *SSEClient) Wait() error {
	<-c.done
	return nil
}

// Close terminates the session. Idempotent.
func (c *SSEClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return err
}

var _ outbound.MCPUpstreamClient = (*SSEClient)(nil)
