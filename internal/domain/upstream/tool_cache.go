package upstream

import (
	"encoding/json"
	"time"

	"sync"

	"github.com/clip-mcp/clip/internal/domain/qualname"
)

// DiscoveredTool represents a tool discovered from an upstream MCP server,
// already namespaced into CLIP's qualified tool name.
type DiscoveredTool struct {
	// QualifiedName is "<upstream_id>__<tool_name>".
	QualifiedName string
	// Name is the bare tool name as advertised by the upstream.
	Name string
	// Description is the upstream-supplied tool description.
	Description string
	// InputSchema is the JSON Schema for the tool's parameters, as advertised
	// by the upstream (before hideParameters/overwriteDescription filtering).
	InputSchema json.RawMessage
	// UpstreamID identifies which upstream this tool was discovered from.
	UpstreamID string
	// DiscoveredAt records when this tool was (re)discovered.
	DiscoveredAt time.Time
}

const (
	// MaxToolsPerUpstream bounds the tools accepted from a single upstream,
	// preventing memory exhaustion from a misbehaving or malicious upstream.
	MaxToolsPerUpstream = 1000
	// MaxTotalTools bounds the aggregate catalog size across all upstreams.
	MaxTotalTools = 10000
)

// ToolCache is the Upstream Registry's tool catalog (spec.md §4.B). It is
// thread-safe for concurrent reads (tools/list, tools/call routing) against
// concurrent writes (upstream connect/reconnect/disconnect).
//
// Qualified names make cross-upstream name collisions impossible by
// construction (spec.md §4.H), so unlike the teacher's ToolCache this index
// needs no conflict-tracking machinery — the namespacing prefix already
// guarantees uniqueness of the map key.
type ToolCache struct {
	tools      map[string]*DiscoveredTool // qualified name -> tool
	byUpstream map[string][]string        // upstream id -> qualified names
	mu         sync.RWMutex
}

// NewToolCache creates a new empty ToolCache.
func NewToolCache() *ToolCache {
	return &ToolCache{
		tools:      make(map[string]*DiscoveredTool),
		byUpstream: make(map[string][]string),
	}
}

// SetToolsForUpstream replaces all tools advertised by the given upstream.
// Tool names are qualified with the upstream id before being stored.
func (c *ToolCache) SetToolsForUpstream(upstreamID string, rawTools []DiscoveredTool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(rawTools) > MaxToolsPerUpstream {
		rawTools = rawTools[:MaxToolsPerUpstream]
	}

	// Remove old entries for this upstream first.
	for _, qn := range c.byUpstream[upstreamID] {
		delete(c.tools, qn)
	}

	qualifiedNames := make([]string, 0, len(rawTools))
	for i := range rawTools {
		t := rawTools[i]
		t.UpstreamID = upstreamID
		t.QualifiedName = qualname.Join(upstreamID, t.Name)
		if len(c.tools) >= MaxTotalTools {
			break
		}
		c.tools[t.QualifiedName] = &t
		qualifiedNames = append(qualifiedNames, t.QualifiedName)
	}
	c.byUpstream[upstreamID] = qualifiedNames
}

// GetTool looks up a tool by its qualified name.
func (c *ToolCache) GetTool(qualifiedName string) (*DiscoveredTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tools[qualifiedName]
	return t, ok
}

// GetAllTools returns all cached tools across all upstreams.
func (c *ToolCache) GetAllTools() []*DiscoveredTool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*DiscoveredTool, 0, len(c.tools))
	for _, t := range c.tools {
		result = append(result, t)
	}
	return result
}

// GetToolsByUpstream returns all tools advertised by a specific upstream.
func (c *ToolCache) GetToolsByUpstream(upstreamID string) []*DiscoveredTool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := c.byUpstream[upstreamID]
	result := make([]*DiscoveredTool, 0, len(names))
	for _, qn := range names {
		if t, ok := c.tools[qn]; ok {
			result = append(result, t)
		}
	}
	return result
}

// RemoveUpstream removes all tools belonging to an upstream from the cache.
// Called when an upstream session dies mid-run (spec.md §4.B failure semantics).
func (c *ToolCache) RemoveUpstream(upstreamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, qn := range c.byUpstream[upstreamID] {
		delete(c.tools, qn)
	}
	delete(c.byUpstream, upstreamID)
}

// Count returns the total number of cached tools.
func (c *ToolCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
