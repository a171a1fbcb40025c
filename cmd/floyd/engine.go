package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/captainphantasy/floyd-core/internal/agent"
	"github.com/captainphantasy/floyd-core/internal/llm"
	"github.com/captainphantasy/floyd-core/internal/mcp"
	"github.com/captainphantasy/floyd-core/internal/permissions"
	"github.com/captainphantasy/floyd-core/internal/sessions"
	"github.com/prometheus/client_golang/prometheus"
)

// reconnectMetricsInterval is how often bootstrap's background goroutine
// resamples MCP reconnect attempt counts into the Engine's gauge.
const reconnectMetricsInterval = 15 * time.Second

// appContext bundles the wired-up subsystems one CLI invocation needs: a
// single per-command bootstrap function covering every subsystem the
// Engine depends on rather than just MCP.
type appContext struct {
	engine     *agent.Engine
	mcpManager *mcp.Manager
	permMgr    *permissions.Manager
	store      sessions.Store
	workspace  string
}

// buildFacade registers every provider with a configured API key.
func buildFacade() (*llm.Facade, error) {
	var providers []llm.Provider
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, llm.NewAnthropicAdapter(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		baseURL := os.Getenv("OPENAI_BASE_URL")
		providers = append(providers, llm.NewOpenAIAdapter(key, baseURL))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no LLM provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}
	return llm.NewFacade(providers...), nil
}

// bootstrap wires the Agent Engine's four dependencies (LLM Client Facade,
// MCP Client Manager, Permission Manager, Session Store) against the
// workspace's .floyd/ config, connects configured MCP servers, and starts
// both subsystems' fsnotify-backed config watchers.
func bootstrap(ctx context.Context, workspace, model string) (*appContext, error) {
	facade, err := buildFacade()
	if err != nil {
		return nil, err
	}

	mcpMgr := mcp.NewManager()
	mcpMgr.LoadAndConnect(ctx, workspace)
	if err := mcpMgr.StartWatching(ctx); err != nil {
		slog.Warn("mcp config watch failed to start", "error", err)
	}

	permStore := permissions.NewFileStore(workspace, nil)
	permMgr := permissions.NewManager(permStore, workspace, nil)
	if err := permMgr.StartWatching(ctx); err != nil {
		slog.Warn("permissions config watch failed to start", "error", err)
	}

	store := sessions.NewFileStore(workspace, nil)

	metrics := agent.NewMetrics(prometheus.DefaultRegisterer)
	eng := agent.NewEngine(facade, mcpMgr, permMgr, store, slog.Default(), metrics, nil)
	eng.SetDefaultModel(model)
	eng.SetDefaultSystem("You are Floyd, an AI coding assistant with access to the workspace's tools.")

	go watchReconnectAttempts(ctx, mcpMgr, metrics)

	return &appContext{engine: eng, mcpManager: mcpMgr, permMgr: permMgr, store: store, workspace: workspace}, nil
}

// watchReconnectAttempts periodically sums ReconnectAttemptCount across all
// MCP connections into the Engine's reconnect-attempts gauge, until ctx is
// cancelled.
func watchReconnectAttempts(ctx context.Context, mcpMgr *mcp.Manager, metrics *agent.Metrics) {
	ticker := time.NewTicker(reconnectMetricsInterval)
	defer ticker.Stop()

	for {
		var total int
		for _, conn := range mcpMgr.Connections() {
			total += conn.ReconnectAttemptCount
		}
		metrics.SetReconnectAttempts(float64(total))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *appContext) Close() {
	a.permMgr.StopWatching()
	_ = a.mcpManager.Close()
}

func floydDir(workspace string) string {
	return filepath.Join(workspace, ".floyd")
}
