// Package mcp provides concrete MCP client adapters for connecting to
// upstream servers over stdio or SSE, wrapping modelcontextprotocol/go-sdk.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/domain/upstream"
	"github.com/clip-mcp/clip/internal/port/outbound"
)

// StdioClient connects to an MCP server spawned as a subprocess, following
// the teacher's StdioClient lifecycle (CommandContext, stderr forwarded,
// process killed on Close) but speaking through go-sdk's typed client/
// session rather than raw pipes, since CLIP treats wire framing as an
// external collaborator.
type StdioClient struct {
	command string
	args    []string
	env     map[string]string

	mu      sync.Mutex
	cmd     *exec.Cmd
	client  *mcp.Client
	session *mcp.ClientSession
}

// NewStdioClient creates a client for the given MCP server subprocess.
func NewStdioClient(command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{command: command, args: args, env: env}
}

// Connect launches the subprocess and performs the MCP handshake.
func (c *StdioClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return errors.New("client already connected")
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	if len(c.env) > 0 {
		env := cmd.Environ()
		for k, v := range c.env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	cmd.Stderr = os.Stderr

	client := mcp.NewClient(&mcp.Implementation{Name: "clip", Version: "0.1.0"}, nil)
	transport := &mcp.CommandTransport{Command: cmd}

	session, err := client.Connect(ctx, transport, &mcp.ClientSessionOptions{})
	if err != nil {
		return fmt.Errorf("connect upstream: %w", err)
	}

	c.cmd = cmd
	c.client = client
	c.session = session
	return nil
}

// ListTools queries tools/list and returns them unqualified.
func (c *StdioClient) ListTools(ctx context.Context) ([]upstream.DiscoveredTool, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, errors.New("not connected")
	}

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
func (c *StdioClient) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
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
func (c *StdioClient) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
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
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
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
func (c *StdioClient) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
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
func (c *StdioClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
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

// Wait blocks until the subprocess terminates.
func (c *StdioClient) Wait() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return errors.New("not connected")
	}
	return cmd.Wait()
}

// Close terminates the session and kills the subprocess if still running.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			errs = append(errs, err)
		}
		c.session = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	c.cmd = nil
	c.client = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var _ outbound.MCPUpstreamClient = (*StdioClient)(nil)
