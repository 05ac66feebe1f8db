// Package upstream contains domain types for MCP upstream server configuration
// and the tool catalog discovered from them.
package upstream

import (
	"fmt"
	"net/url"

	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/domain/qualname"
)

// Transport identifies how CLIP talks to an upstream MCP server.
type Transport string

const (
	// TransportStdio spawns the upstream as a child process and speaks MCP over its stdio.
	TransportStdio Transport = "stdio"
	// TransportSSE connects to a remote MCP server over HTTP/SSE.
	TransportSSE Transport = "sse"
)

// ConnectionStatus represents the runtime connection state of an upstream.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// Config is a single configured upstream MCP server (spec.md §3 UpstreamConfig).
type Config struct {
	// ID is the unique upstream identifier used in qualified tool names.
	ID string
	// Name is a human-readable display name.
	Name string
	// Transport selects stdio or sse.
	Transport Transport
	// Command/Args/Env are used when Transport == TransportStdio.
	Command string
	Args    []string
	Env     map[string]string
	// URL is used when Transport == TransportSSE.
	URL string

	// Defaults holds this upstream's default policy overrides.
	Defaults policy.ScopeDefaults
	// Tools holds per-tool configuration overrides, keyed by bare tool name.
	Tools map[string]policy.ToolConfig
}

// Validate checks that the upstream configuration is well-formed.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !qualname.Valid(c.ID) {
		return fmt.Errorf("id must not contain the reserved separator %q", qualname.Sep)
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio upstream %q", c.ID)
		}
	case TransportSSE:
		if c.URL == "" {
			return fmt.Errorf("url is required for sse upstream %q", c.ID)
		}
		parsed, err := url.Parse(c.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("url is not a valid URL for upstream %q", c.ID)
		}
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportStdio, TransportSSE, c.Transport)
	}

	for toolName := range c.Tools {
		if !qualname.Valid(toolName) {
			return fmt.Errorf("tool name %q on upstream %q must not contain %q", toolName, c.ID, qualname.Sep)
		}
	}

	return nil
}
