package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/internal/backoff"
	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/fsnotify/fsnotify"
)

// reconnectPolicy governs auto-reconnect backoff for MCP connections
// (spec §4.3: base 3s, ceiling of 10 attempts).
var reconnectPolicy = backoff.BackoffPolicy{InitialMs: 3000, MaxMs: 60000, Factor: 2, Jitter: 0.2}

const maxReconnectAttempts = 10

// connection tracks one MCP server's live client plus its reconnect state.
type connection struct {
	config *ServerConfig
	client *Client

	mu      sync.Mutex
	status  model.ConnectionStatus
	lastErr string
	reconnAttempts int
}

// Manager aggregates tools from multiple MCP connections, routes calls to
// the owning connection by name, and keeps connections alive with
// exponential-backoff auto-reconnect (spec §4.3).
//
// Name resolution: first registration wins an unqualified name; every tool
// remains additionally reachable under its provider-qualified form
// `mcp:<serverID>.<toolName>`, so collisions are never silently dropped.
type Manager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*connection
	nameIndex   map[string]string // unqualified tool name -> owning server ID (first registration wins)

	serverListener *WSServerListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	workspace   string
}

// NewManager builds an empty Manager. Call LoadAndConnect to populate it
// from a workspace's MCP config.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:      slog.Default().With("component", "mcp.manager"),
		connections: make(map[string]*connection),
		nameIndex:   make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// LoadAndConnect reads the workspace's MCP config and connects to every
// enabled server, logging (but not failing on) individual connection
// errors so one misconfigured server doesn't block the rest.
func (m *Manager) LoadAndConnect(ctx context.Context, workspace string) {
	m.workspace = workspace
	for _, cfg := range LoadConfig(workspace) {
		cfg := cfg
		if err := m.Connect(ctx, &cfg); err != nil {
			m.logger.Warn("failed to connect MCP server", "server", cfg.ID, "error", err)
		}
	}
}

// StartWatching hot-reloads the server list whenever .floyd/mcp.json (or
// one of LoadConfig's other discovery candidates) changes on disk: newly
// added servers are connected, removed servers are disconnected, and
// servers whose config changed are reconnected. Requires LoadAndConnect to
// have been called first so the manager knows its workspace. The watcher
// is always started; a candidate directory that cannot be watched (for
// example a missing .floyd) is logged and skipped.
func (m *Manager) StartWatching(ctx context.Context) error {
	m.watchMu.Lock()
	if m.watcher != nil {
		m.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watchMu.Unlock()
		return err
	}

	dirs := map[string]struct{}{}
	for _, path := range configSearchPaths(m.workspace) {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			m.logger.Warn("failed to watch mcp config directory", "dir", dir, "error", err)
		}
	}

	m.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	m.wg.Add(1)
	go m.configWatchLoop(watchCtx)
	return nil
}

// StopWatching tears down the watcher started by StartWatching, if any.
func (m *Manager) StopWatching() {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	watcher := m.watcher
	m.watcher = nil
	m.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
}

func (m *Manager) configWatchLoop(ctx context.Context) {
	defer m.wg.Done()
	m.watchMu.Lock()
	watcher := m.watcher
	m.watchMu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				m.reconcileConfig(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("mcp config watcher error", "error", err)
		}
	}
}

// reconcileConfig re-reads the workspace's MCP config and connects newly
// added servers, disconnects removed ones, and reconnects servers whose
// config changed.
func (m *Manager) reconcileConfig(ctx context.Context) {
	desired := LoadConfig(m.workspace)
	desiredByID := make(map[string]ServerConfig, len(desired))
	for _, cfg := range desired {
		desiredByID[cfg.ID] = cfg
	}

	m.mu.RLock()
	existing := make(map[string]*ServerConfig, len(m.connections))
	for id, conn := range m.connections {
		existing[id] = conn.config
	}
	m.mu.RUnlock()

	for id, conn := range existing {
		if _, keep := desiredByID[id]; !keep {
			m.disconnect(id)
			m.logger.Info("mcp server removed from config, disconnected", "server", id)
		} else if cfg := desiredByID[id]; !cfg.Equal(conn) {
			m.disconnect(id)
			cfg := cfg
			if err := m.Connect(ctx, &cfg); err != nil {
				m.logger.Warn("failed to reconnect mcp server after config change", "server", id, "error", err)
			}
		}
	}
	for id, cfg := range desiredByID {
		if _, already := existing[id]; already {
			continue
		}
		cfg := cfg
		if err := m.Connect(ctx, &cfg); err != nil {
			m.logger.Warn("failed to connect newly configured mcp server", "server", id, "error", err)
		}
	}
}

// disconnect closes and removes one connection, dropping it from the
// unqualified name index.
func (m *Manager) disconnect(id string) {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
	}
	m.mu.Unlock()
	if ok {
		_ = conn.client.Close()
		m.reindex()
	}
}

// Connect establishes one server connection, runs its handshake, indexes
// its tools, and starts its list_changed watcher.
func (m *Manager) Connect(ctx context.Context, cfg *ServerConfig) error {
	transport := NewTransport(cfg)
	client := NewClient(cfg.ID, transport)

	conn := &connection{config: cfg, client: client, status: model.ConnectionConnecting}
	m.mu.Lock()
	m.connections[cfg.ID] = conn
	m.mu.Unlock()

	if err := m.handshake(ctx, conn); err != nil {
		conn.mu.Lock()
		conn.status = model.ConnectionError
		conn.lastErr = err.Error()
		conn.mu.Unlock()
		go m.reconnectLoop(cfg.ID)
		return err
	}

	client.ListenForChanges(m.ctx, func() { m.reindex() })
	return nil
}

func (m *Manager) handshake(ctx context.Context, conn *connection) error {
	if err := conn.client.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := conn.client.Initialize(ctx); err != nil {
		_ = conn.client.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	conn.mu.Lock()
	conn.status = model.ConnectionConnected
	conn.reconnAttempts = 0
	conn.mu.Unlock()
	m.reindex()
	return nil
}

// reconnectLoop retries a failed connection with exponential backoff up
// to maxReconnectAttempts, respawning stdio children whose process has
// exited rather than merely redialing a dead pipe.
func (m *Manager) reconnectLoop(serverID string) {
	m.wg.Add(1)
	defer m.wg.Done()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := backoff.SleepWithBackoff(m.ctx, reconnectPolicy, attempt); err != nil {
			return // manager shutting down
		}

		m.mu.RLock()
		conn, ok := m.connections[serverID]
		m.mu.RUnlock()
		if !ok {
			return
		}

		if stdio, ok := conn.client.transport.(*StdioTransport); ok && stdio.ProcessExited() {
			conn.client = NewClient(serverID, NewTransport(conn.config))
		}

		conn.mu.Lock()
		conn.reconnAttempts = attempt
		conn.mu.Unlock()

		if err := m.handshake(m.ctx, conn); err == nil {
			m.logger.Info("mcp server reconnected", "server", serverID, "attempt", attempt)
			conn.client.ListenForChanges(m.ctx, func() { m.reindex() })
			return
		}
	}
	m.logger.Warn("mcp server exhausted reconnect attempts", "server", serverID, "attempts", maxReconnectAttempts)
}

// reindex rebuilds the unqualified-name index, first registration wins.
func (m *Manager) reindex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameIndex = make(map[string]string)
	for id, conn := range m.connections {
		conn.mu.Lock()
		connected := conn.status == model.ConnectionConnected
		conn.mu.Unlock()
		if !connected {
			continue
		}
		for _, tool := range conn.client.Tools() {
			if _, exists := m.nameIndex[tool.Name]; !exists {
				m.nameIndex[tool.Name] = id
			}
		}
	}
}

// QualifiedName builds the provider-qualified form mcp:<serverID>.<tool>.
func QualifiedName(serverID, toolName string) string {
	return fmt.Sprintf("mcp:%s.%s", serverID, toolName)
}

// ParseQualifiedName splits a provider-qualified tool name.
func ParseQualifiedName(name string) (serverID, toolName string, ok bool) {
	if !strings.HasPrefix(name, "mcp:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, "mcp:")
	idx := strings.Index(rest, ".")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// resolve finds the connection owning name, trying the provider-qualified
// form first, then the unqualified index, then a last-resort linear scan
// across every connected server (covers a tool registered after the last
// reindex).
func (m *Manager) resolve(name string) (*connection, string, error) {
	if serverID, toolName, ok := ParseQualifiedName(name); ok {
		m.mu.RLock()
		conn, exists := m.connections[serverID]
		m.mu.RUnlock()
		if !exists {
			return nil, "", fmt.Errorf("mcp server %q not found", serverID)
		}
		return conn, toolName, nil
	}

	m.mu.RLock()
	serverID, ok := m.nameIndex[name]
	m.mu.RUnlock()
	if ok {
		m.mu.RLock()
		conn := m.connections[serverID]
		m.mu.RUnlock()
		return conn, name, nil
	}

	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, conn := range conns {
		if err := conn.client.RefreshTools(m.ctx); err == nil && conn.client.HasTool(name) {
			m.reindex()
			return conn, name, nil
		}
	}

	return nil, "", fmt.Errorf("tool %q not found on any connected MCP server", name)
}

// ListTools returns the full aggregated catalog, each tool's Name
// rewritten to its provider-qualified form only when it lost the
// first-registration race for its bare name.
func (m *Manager) ListTools() []model.ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ToolDescriptor
	for id, conn := range m.connections {
		conn.mu.Lock()
		connected := conn.status == model.ConnectionConnected
		conn.mu.Unlock()
		if !connected {
			continue
		}
		for _, tool := range conn.client.Tools() {
			name := tool.Name
			if owner := m.nameIndex[tool.Name]; owner != id {
				name = QualifiedName(id, tool.Name)
			}
			out = append(out, model.ToolDescriptor{
				Name:           name,
				Description:    tool.Description,
				InputSchema:    tool.InputSchema,
				OwningClientID: id,
			})
		}
	}
	return out
}

// CallTool routes a tool_use to its owning connection and executes it.
func (m *Manager) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error) {
	conn, toolName, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	return conn.client.CallTool(ctx, toolName, args)
}

// Connections snapshots the status of every registered server, used to
// render a diagnostics view.
func (m *Manager) Connections() []model.ServerConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ServerConnection, 0, len(m.connections))
	for id, conn := range m.connections {
		conn.mu.Lock()
		out = append(out, model.ServerConnection{
			ID:                    id,
			Transport:             transportKindOf(conn.config.Transport),
			Status:                conn.status,
			LastError:             conn.lastErr,
			ToolCount:             len(conn.client.Tools()),
			ReconnectAttemptCount: conn.reconnAttempts,
		})
		conn.mu.Unlock()
	}
	return out
}

func transportKindOf(t TransportType) model.TransportKind {
	switch t {
	case TransportWebSocket:
		return model.TransportWSClient
	default:
		return model.TransportStdio
	}
}

// ServeInbound starts the inbound WebSocket server transport (spec
// §4.3(c)/§6) on addr and services every accepted peer's requests with
// handler (typically the Engine's locally-exposed tool catalog). Accepted
// peers are not added to the Manager's connections, so Connections() and
// ListTools() do not report them.
func (m *Manager) ServeInbound(ctx context.Context, addr string, handler func(method string, params json.RawMessage) (json.RawMessage, *JSONRPCError)) error {
	listener := NewWSServerListener(addr)
	if err := listener.Start(ctx); err != nil {
		return err
	}
	m.serverListener = listener

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case peer, ok := <-listener.Accepted():
				if !ok {
					return
				}
				m.wg.Add(1)
				go m.servePeer(ctx, peer, handler)
			}
		}
	}()
	return nil
}

func (m *Manager) servePeer(ctx context.Context, peer Transport, handler func(string, json.RawMessage) (json.RawMessage, *JSONRPCError)) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			_ = peer.Close()
			return
		case req, ok := <-peer.Requests():
			if !ok {
				return
			}
			reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			result, rpcErr := handler(req.Method, req.Params)
			_ = peer.Respond(reqCtx, req.ID, result, rpcErr)
			cancel()
		}
	}
}

// Close tears down every connection and stops all background goroutines.
func (m *Manager) Close() error {
	m.cancel()
	m.StopWatching()
	if m.serverListener != nil {
		_ = m.serverListener.Close()
	}
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.client.Close()
	}
	m.wg.Wait()
	return nil
}
