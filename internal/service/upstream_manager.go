// Package service hosts the orchestration layer: upstream lifecycle
// management and the call pipeline built on top of the domain packages.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clip-mcp/clip/internal/domain/upstream"
	"github.com/clip-mcp/clip/internal/port/outbound"
)

// ClientFactory builds an outbound.MCPUpstreamClient for a configured upstream.
type ClientFactory func(cfg upstream.Config) (outbound.MCPUpstreamClient, error)

// connection holds the runtime state for one managed upstream.
type connection struct {
	cfg         upstream.Config
	client      outbound.MCPUpstreamClient
	status      upstream.ConnectionStatus
	lastError   string
	retryCount  int
	cancelRetry context.CancelFunc
	mu          sync.Mutex
}

// UpstreamManager is the runtime half of the Upstream Registry (spec.md
// §4.B): it owns the connect/reconnect lifecycle for every configured
// upstream and keeps the shared ToolCache in sync with each upstream's
// advertised tools, following the teacher's UpstreamManager structure
// (exponential backoff, stability-reset checker, per-connection mutex).
//
// Per the spec's open question on reconnection, CLIP does retry with
// unbounded exponential backoff (capped interval) rather than giving up —
// the upstream is surfaced as StatusReconnecting/StatusError via Status()
// and its tools are removed from the catalog while it is down, rather than
// failing the whole proxy.
type UpstreamManager struct {
	factory     ClientFactory
	toolCache   *upstream.ToolCache
	logger      *slog.Logger
	connections map[string]*connection
	mu          sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	backoffBase            time.Duration
	backoffCap             time.Duration
	stabilityDuration      time.Duration
	stabilityCheckInterval time.Duration
	connectedSince         map[string]time.Time

	ready chan struct{}

	onCatalogChange func()
}

// SetOnCatalogChange registers a callback invoked every time a connect,
// disconnect, or reconnect mutates the shared ToolCache — the Proxy
// Front-End (mcpserver.Server/ResourceRouter) uses this to re-run its
// tools/resources/prompts Sync after every upstream lifecycle event rather
// than polling.
func (m *UpstreamManager) SetOnCatalogChange(fn func()) {
	m.mu.Lock()
	m.onCatalogChange = fn
	m.mu.Unlock()
}

func (m *UpstreamManager) notifyCatalogChange() {
	m.mu.RLock()
	fn := m.onCatalogChange
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// NewUpstreamManager creates an UpstreamManager backed by the given tool cache.
func NewUpstreamManager(toolCache *upstream.ToolCache, factory ClientFactory, logger *slog.Logger) *UpstreamManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &UpstreamManager{
		factory:                factory,
		toolCache:              toolCache,
		logger:                 logger,
		connections:            make(map[string]*connection),
		connectedSince:         make(map[string]time.Time),
		ctx:                    ctx,
		cancel:                 cancel,
		backoffBase:            1 * time.Second,
		backoffCap:             60 * time.Second,
		stabilityDuration:      5 * time.Minute,
		stabilityCheckInterval: 1 * time.Minute,
		ready:                  make(chan struct{}),
	}
	go m.stabilityChecker()
	close(m.ready)
	return m
}

// StartAll connects every enabled upstream concurrently.
func (m *UpstreamManager) StartAll(ctx context.Context, configs []upstream.Config) {
	var wg sync.WaitGroup
	for i := range configs {
		cfg := configs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Start(ctx, cfg)
		}()
	}
	wg.Wait()
}

// Start connects a single upstream. Failure schedules a retry rather than
// returning an error — per spec.md §4.B, a failed upstream is excluded from
// the catalog but does not prevent the other upstreams from operating.
func (m *UpstreamManager) Start(ctx context.Context, cfg upstream.Config) {
	conn := &connection{cfg: cfg, status: upstream.StatusConnecting}

	m.mu.Lock()
	m.connections[cfg.ID] = conn
	m.mu.Unlock()

	m.attemptConnect(conn)
}

func (m *UpstreamManager) attemptConnect(conn *connection) {
	conn.mu.Lock()
	cfg := conn.cfg
	conn.mu.Unlock()

	client, err := m.factory(cfg)
	if err != nil {
		m.failConnect(conn, fmt.Errorf("create client: %w", err))
		return
	}

	if err := client.Connect(m.ctx); err != nil {
		m.failConnect(conn, fmt.Errorf("connect: %w", err))
		return
	}

	tools, err := client.ListTools(m.ctx)
	if err != nil {
		m.logger.Warn("tool discovery failed", "upstream", cfg.ID, "error", err)
	} else {
		m.toolCache.SetToolsForUpstream(cfg.ID, tools)
		m.notifyCatalogChange()
	}

	conn.mu.Lock()
	conn.client = client
	conn.status = upstream.StatusConnected
	conn.lastError = ""
	conn.retryCount = 0
	conn.mu.Unlock()

	m.mu.Lock()
	m.connectedSince[cfg.ID] = time.Now()
	m.mu.Unlock()

	m.logger.Info("upstream connected", "upstream", cfg.ID, "name", cfg.Name, "tools", len(tools))

	go m.monitorHealth(conn)
}

func (m *UpstreamManager) failConnect(conn *connection, err error) {
	conn.mu.Lock()
	conn.status = upstream.StatusError
	conn.lastError = err.Error()
	upstreamID := conn.cfg.ID
	conn.mu.Unlock()

	m.logger.Error("upstream connect failed", "upstream", upstreamID, "error", err)
	m.toolCache.RemoveUpstream(upstreamID)
	m.notifyCatalogChange()
	m.scheduleRetry(conn)
}

// monitorHealth blocks until the upstream session terminates, then triggers
// a reconnect and removes its tools from the catalog.
func (m *UpstreamManager) monitorHealth(conn *connection) {
	conn.mu.Lock()
	client := conn.client
	upstreamID := conn.cfg.ID
	conn.mu.Unlock()
	if client == nil {
		return
	}

	_ = client.Wait()

	m.mu.RLock()
	current, ok := m.connections[upstreamID]
	m.mu.RUnlock()
	if !ok || current != conn || m.ctx.Err() != nil {
		return
	}

	conn.mu.Lock()
	conn.status = upstream.StatusReconnecting
	conn.client = nil
	conn.mu.Unlock()

	m.toolCache.RemoveUpstream(upstreamID)
	m.notifyCatalogChange()
	m.logger.Warn("upstream disconnected, scheduling reconnect", "upstream", upstreamID)
	m.scheduleRetry(conn)
}

// calcBackoffDelay returns min(base * 2^retryCount, cap).
func (m *UpstreamManager) calcBackoffDelay(retryCount int) time.Duration {
	delay := m.backoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay > m.backoffCap {
			return m.backoffCap
		}
	}
	if delay > m.backoffCap {
		return m.backoffCap
	}
	return delay
}

// scheduleRetry schedules an unbounded exponential-backoff reconnect attempt.
func (m *UpstreamManager) scheduleRetry(conn *connection) {
	conn.mu.Lock()
	delay := m.calcBackoffDelay(conn.retryCount)
	conn.retryCount++
	conn.status = upstream.StatusReconnecting
	retryCtx, retryCancel := context.WithCancel(m.ctx)
	conn.cancelRetry = retryCancel
	upstreamID := conn.cfg.ID
	attempt := conn.retryCount
	conn.mu.Unlock()

	m.logger.Info("scheduling upstream retry", "upstream", upstreamID, "attempt", attempt, "delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-retryCtx.Done():
			return
		}

		m.mu.RLock()
		current, ok := m.connections[upstreamID]
		m.mu.RUnlock()
		if !ok || current != conn {
			return
		}

		m.attemptConnect(conn)
	}()
}

// GetClient returns the connected client for an upstream, or an error.
func (m *UpstreamManager) GetClient(upstreamID string) (outbound.MCPUpstreamClient, error) {
	m.mu.RLock()
	conn, ok := m.connections[upstreamID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("upstream %s not managed", upstreamID)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.status != upstream.StatusConnected {
		return nil, fmt.Errorf("upstream %s status is %s, not connected", upstreamID, conn.status)
	}
	return conn.client, nil
}

// Status returns the status and last error for an upstream.
func (m *UpstreamManager) Status(upstreamID string) (upstream.ConnectionStatus, string) {
	m.mu.RLock()
	conn, ok := m.connections[upstreamID]
	m.mu.RUnlock()
	if !ok {
		return upstream.StatusDisconnected, ""
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.status, conn.lastError
}

// ConnectedUpstreamIDs returns the ids of every currently connected upstream,
// for catalog-building operations that must enumerate live sessions (e.g.
// resources/prompts discovery for the Proxy Front-End).
func (m *UpstreamManager) ConnectedUpstreamIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.connections))
	for id, conn := range m.connections {
		conn.mu.Lock()
		s := conn.status
		conn.mu.Unlock()
		if s == upstream.StatusConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// AnyConnected reports whether at least one upstream is connected.
func (m *UpstreamManager) AnyConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		conn.mu.Lock()
		s := conn.status
		conn.mu.Unlock()
		if s == upstream.StatusConnected {
			return true
		}
	}
	return false
}

// Close shuts down every managed connection and stops background goroutines.
func (m *UpstreamManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.connections = make(map[string]*connection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.mu.Lock()
		if conn.cancelRetry != nil {
			conn.cancelRetry()
		}
		client := conn.client
		conn.client = nil
		conn.status = upstream.StatusDisconnected
		conn.mu.Unlock()
		if client != nil {
			if err := client.Close(); err != nil {
				m.logger.Error("failed to close upstream client", "upstream", conn.cfg.ID, "error", err)
			}
		}
	}

	m.cancel()
	return nil
}

// stabilityChecker periodically resets retryCount for upstreams that have
// been connected longer than stabilityDuration, following the teacher's
// pattern of forgiving transient startup flakiness over time.
func (m *UpstreamManager) stabilityChecker() {
	select {
	case <-m.ready:
	case <-m.ctx.Done():
		return
	}

	ticker := time.NewTicker(m.stabilityCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkStability()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *UpstreamManager) checkStability() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	for id, conn := range m.connections {
		since, ok := m.connectedSince[id]
		if !ok {
			continue
		}
		conn.mu.Lock()
		if conn.status == upstream.StatusConnected && conn.retryCount > 0 && now.Sub(since) >= m.stabilityDuration {
			conn.retryCount = 0
		}
		conn.mu.Unlock()
	}
}
