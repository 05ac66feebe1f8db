package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	clipttp "github.com/clip-mcp/clip/internal/adapter/inbound/http"
	"github.com/clip-mcp/clip/internal/adapter/inbound/mcpserver"
	llmadapter "github.com/clip-mcp/clip/internal/adapter/outbound/llm"
	mcpclient "github.com/clip-mcp/clip/internal/adapter/outbound/mcp"
	"github.com/clip-mcp/clip/internal/config"
	"github.com/clip-mcp/clip/internal/domain/cache"
	"github.com/clip-mcp/clip/internal/domain/escalation"
	"github.com/clip-mcp/clip/internal/domain/masker"
	"github.com/clip-mcp/clip/internal/domain/pipeline"
	"github.com/clip-mcp/clip/internal/domain/policy"
	"github.com/clip-mcp/clip/internal/domain/summarizer"
	"github.com/clip-mcp/clip/internal/domain/upstream"
	"github.com/clip-mcp/clip/internal/port/outbound"
	"github.com/clip-mcp/clip/internal/service"
	"github.com/clip-mcp/clip/internal/telemetry"
)

const cacheCleanupInterval = time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Load the configured upstreams and serve the proxy over stdio",
	Long: `Start connects to every configured upstream, builds the unioned tool
catalog, and serves the client over stdio until SIGINT/SIGTERM triggers a
graceful shutdown (spec.md §6, §7).`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return wrapConfigError(err)
	}
	built := cfg.Build()

	logger := newLogger(cfg.Logging)

	shutdownTracing, err := telemetry.Setup(Version)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	resolver := policy.NewResolver(built.Global, built.UpstreamScopes)
	toolCache := upstream.NewToolCache()
	respCache := cache.New(cacheCleanupInterval)
	defer respCache.Close()

	escTracker := escalation.New()
	defer escTracker.Close()

	var fallback masker.LLMFallback
	if built.MaskingLLM != nil {
		fallback = llmadapter.NewMaskerFallback(summarizer.LLMConfig{
			BaseURL: built.MaskingLLM.BaseURL,
			Model:   built.MaskingLLM.Model,
			APIKey:  built.MaskingLLM.APIKey,
		})
	}
	pieMasker := masker.New(fallback)
	summarizerInst := summarizer.New(built.SummarizerLLM)

	manager := service.NewUpstreamManager(toolCache, clientFactory, logger)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("error closing upstream connections", "error", err)
		}
	}()
	pipelineCaller := service.NewPipelineCaller(manager)

	pipe := pipeline.New(resolver, toolCache, pipelineCaller, respCache, pieMasker, summarizerInst, escTracker, logger)

	registry := clipttp.NewRegistry()
	metrics := clipttp.NewMetrics(registry, respCache, escTracker, manager)
	pipe.SetMetrics(metrics)

	server := mcpserver.New(toolCache, resolver, pipe, logger)
	resourceRouter := mcpserver.NewResourceRouter(server.Underlying(), manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	manager.SetOnCatalogChange(func() {
		server.Sync()
		resourceRouter.Sync(ctx)
	})

	healthChecker := clipttp.NewHealthChecker(manager, respCache, escTracker, Version)
	obsServer := clipttp.NewObservabilityServer(cfg.Server.MetricsAddr, registry, healthChecker, logger)
	go func() {
		if err := obsServer.Run(ctx); err != nil {
			logger.Error("observability server stopped", "error", err)
		}
	}()

	manager.StartAll(ctx, built.Upstreams)
	server.Sync()
	resourceRouter.Sync(ctx)

	logger.Info("clip starting", "upstreams", len(built.Upstreams))

	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server stopped: %w", err)
	}

	logger.Info("clip stopped")
	return nil
}

// clientFactory builds an outbound.MCPUpstreamClient for a configured
// upstream, dispatching on transport the way the teacher's
// defaultClientFactory does (cmd/sentinel-gate/cmd/start.go).
func clientFactory(cfg upstream.Config) (outbound.MCPUpstreamClient, error) {
	switch cfg.Transport {
	case upstream.TransportStdio:
		return mcpclient.NewStdioClient(cfg.Command, cfg.Args, cfg.Env), nil
	case upstream.TransportSSE:
		return mcpclient.NewSSEClient(cfg.URL, 60*time.Second), nil
	default:
		return nil, fmt.Errorf("unsupported upstream transport: %s", cfg.Transport)
	}
}

// newLogger builds the stderr slog.Logger (stdout is reserved for the MCP
// stdio stream), following the teacher's parseLogLevel/NewTextHandler
// pattern but supporting CLIP's configurable text/json format.
func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	format := "json"
	if cfg != nil {
		level = parseLogLevel(cfg.Level)
		if cfg.Format != "" {
			format = cfg.Format
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values (teacher's cmd/sentinel-gate/cmd/start.go).
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
