package mcpserver

import (
	"context"
	"log/slog"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clip-mcp/clip/internal/port/outbound"
)

// UpstreamProvider is the subset of the Upstream Registry the resource/
// prompt router needs: the set of currently connected upstreams and their
// clients.
type UpstreamProvider interface {
	ConnectedUpstreamIDs() []string
	GetClient(upstreamID string) (outbound.MCPUpstreamClient, error)
}

// ResourceRouter forwards resources/* and prompts/* requests to whichever
// single upstream exposes the named resource or prompt (spec.md §4.H:
// "Forwards other MCP requests (resources, prompts, pings) to an
// appropriate upstream — if exactly one upstream exposes the named
// resource, route there; else return a not-found."). Ambiguous names
// (exposed by more than one upstream) are also treated as not-found, since
// the spec gives CLIP no disambiguation mechanism for that case.
type ResourceRouter struct {
	server    *sdkmcp.Server
	upstreams UpstreamProvider
	logger    *slog.Logger

	mu             sync.RWMutex
	resourceOwner  map[string][]string // uri -> owning upstream ids
	promptOwner    map[string][]string // name -> owning upstream ids
	registeredRes  map[string]struct{}
	registeredProm map[string]struct{}
}

// NewResourceRouter creates a ResourceRouter that registers forwarding
// handlers onto server for every resource/prompt with exactly one owner.
func NewResourceRouter(server *sdkmcp.Server, upstreams UpstreamProvider, logger *slog.Logger) *ResourceRouter {
	return &ResourceRouter{
		server:         server,
		upstreams:      upstreams,
		logger:         logger,
		resourceOwner:  make(map[string][]string),
		promptOwner:    make(map[string][]string),
		registeredRes:  make(map[string]struct{}),
		registeredProm: make(map[string]struct{}),
	}
}

// Sync queries every connected upstream's resources/list and prompts/list,
// rebuilds the ownership index, and (re)registers go-sdk forwarding
// handlers for every sole-owned name — mirroring Server.Sync's
// remove-stale-then-register discipline for tools. Call after every upstream
// connect/disconnect.
func (r *ResourceRouter) Sync(ctx context.Context) {
	resourceOwner := make(map[string][]string)
	promptOwner := make(map[string][]string)
	var resources []*sdkmcp.Resource
	var prompts []*sdkmcp.Prompt

	for _, upstreamID := range r.upstreams.ConnectedUpstreamIDs() {
		client, err := r.upstreams.GetClient(upstreamID)
		if err != nil {
			continue
		}

		if discovered, err := client.ListResources(ctx); err == nil {
			for _, res := range discovered {
				resourceOwner[res.URI] = append(resourceOwner[res.URI], upstreamID)
				resources = append(resources, res)
			}
		}

		if discovered, err := client.ListPrompts(ctx); err == nil {
			for _, p := range discovered {
				promptOwner[p.Name] = append(promptOwner[p.Name], upstreamID)
				prompts = append(prompts, p)
			}
		}
	}

	r.mu.Lock()
	r.resourceOwner = resourceOwner
	r.promptOwner = promptOwner
	r.mu.Unlock()

	r.registerResources(resources)
	r.registerPrompts(prompts)
}

func (r *ResourceRouter) registerResources(discovered []*sdkmcp.Resource) {
	wanted := make(map[string]*sdkmcp.Resource)
	for _, res := range discovered {
		if owners := r.resourceOwner[res.URI]; len(owners) == 1 {
			wanted[res.URI] = res
		}
	}

	for uri := range r.registeredRes {
		if _, ok := wanted[uri]; !ok {
			r.server.RemoveResources(uri)
			delete(r.registeredRes, uri)
		}
	}
	for uri, res := range wanted {
		capturedURI := uri
		r.server.AddResource(res, func(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			return r.ReadResource(ctx, capturedURI)
		})
		r.registeredRes[uri] = struct{}{}
	}
}

func (r *ResourceRouter) registerPrompts(discovered []*sdkmcp.Prompt) {
	wanted := make(map[string]*sdkmcp.Prompt)
	for _, p := range discovered {
		if owners := r.promptOwner[p.Name]; len(owners) == 1 {
			wanted[p.Name] = p
		}
	}

	for name := range r.registeredProm {
		if _, ok := wanted[name]; !ok {
			r.server.RemovePrompts(name)
			delete(r.registeredProm, name)
		}
	}
	for name, p := range wanted {
		capturedName := name
		r.server.AddPrompt(p, func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
			args := make(map[string]string, len(req.Params.Arguments))
			for k, v := range req.Params.Arguments {
				args[k] = v
			}
			return r.GetPrompt(ctx, capturedName, args)
		})
		r.registeredProm[name] = struct{}{}
	}
}

// ReadResource forwards to the single upstream that owns uri, or reports
// not-found if zero or more than one upstream exposes it.
func (r *ResourceRouter) ReadResource(ctx context.Context, uri string) (*sdkmcp.ReadResourceResult, error) {
	owner, ok := r.soleOwner(r.resourceOwner, uri)
	if !ok {
		return nil, errNotFound("resource", uri)
	}
	client, err := r.upstreams.GetClient(owner)
	if err != nil {
		return nil, err
	}
	return client.ReadResource(ctx, uri)
}

// GetPrompt forwards to the single upstream that owns name, or reports
// not-found if zero or more than one upstream exposes it.
func (r *ResourceRouter) GetPrompt(ctx context.Context, name string, args map[string]string) (*sdkmcp.GetPromptResult, error) {
	owner, ok := r.soleOwner(r.promptOwner, name)
	if !ok {
		return nil, errNotFound("prompt", name)
	}
	client, err := r.upstreams.GetClient(owner)
	if err != nil {
		return nil, err
	}
	return client.GetPrompt(ctx, name, args)
}

func (r *ResourceRouter) soleOwner(index map[string][]string, key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owners := index[key]
	if len(owners) != 1 {
		return "", false
	}
	return owners[0], true
}

type notFoundError struct {
	kind, key string
}

func (e *notFoundError) Error() string {
	return e.kind + " not found: " + e.key
}

func errNotFound(kind, key string) error {
	return &notFoundError{kind: kind, key: key}
}
