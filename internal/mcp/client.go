package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/internal/floyderrs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Client wraps a single Transport with the MCP handshake and a cached
// tool catalog, layered on the Transport interface instead of
// a bare stdio pipe.
type Client struct {
	ID        string
	transport Transport
	logger    *slog.Logger

	mu      sync.RWMutex
	tools   []*MCPTool
	info    ServerInfo
	schemas map[string]*jsonschema.Schema

	listenOnce sync.Once
}

// NewClient wraps an already-constructed Transport. The transport is not
// connected yet; call Initialize after Connect.
func NewClient(id string, transport Transport) *Client {
	return &Client{
		ID:        id,
		transport: transport,
		logger:    slog.Default().With("mcp_client", id),
	}
}

// Initialize performs the MCP handshake: initialize request, then the
// notifications/initialized acknowledgement (spec §4.3/§6), then caches
// the server's tool list via tools/list.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      clientInfo,
		"capabilities":    map[string]any{},
	}
	raw, err := c.transport.Call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode initialize result: %w", err)
	}
	c.mu.Lock()
	c.info = result.ServerInfo
	c.mu.Unlock()

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("notifications/initialized: %w", err)
	}

	return c.RefreshTools(ctx)
}

// RefreshTools re-fetches tools/list and replaces the cached catalog.
func (c *Client) RefreshTools(ctx context.Context) error {
	raw, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode tools/list result: %w", err)
	}
	c.mu.Lock()
	c.tools = result.Tools
	c.schemas = nil // invalidate cached schema compilations, recompiled lazily on next CallTool
	c.mu.Unlock()
	return nil
}

// schemaFor lazily compiles and caches the JSON Schema for a tool's
// inputSchema, returning nil (no validation) when the tool is unknown or
// declares no schema.
func (c *Client) schemaFor(name string) *jsonschema.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemas == nil {
		c.schemas = make(map[string]*jsonschema.Schema)
	}
	if s, ok := c.schemas[name]; ok {
		return s
	}

	var raw json.RawMessage
	for _, t := range c.tools {
		if t.Name == name {
			raw = t.InputSchema
			break
		}
	}
	if len(raw) == 0 {
		c.schemas[name] = nil
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		c.logger.Warn("invalid inputSchema, skipping validation", "tool", name, "error", err)
		c.schemas[name] = nil
		return nil
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		c.logger.Warn("failed to compile inputSchema, skipping validation", "tool", name, "error", err)
		c.schemas[name] = nil
		return nil
	}
	c.schemas[name] = schema
	return schema
}

// Tools returns a snapshot of the cached tool catalog.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MCPTool, len(c.tools))
	copy(out, c.tools)
	return out
}

// HasTool reports whether name is in the cached catalog.
func (c *Client) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ServerInfo returns the server's self-reported identity from initialize.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// CallTool validates args against the tool's cached inputSchema (when one
// was advertised and compiles cleanly) before invoking tools/call, so a
// malformed argument object never reaches the child process.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolCallResult, error) {
	if schema := c.schemaFor(name); schema != nil {
		var decoded any
		if len(args) == 0 {
			decoded = map[string]any{}
		} else if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, floyderrs.New(floyderrs.ValidationError, err).WithMessage(fmt.Sprintf("tool %q: arguments are not valid JSON", name))
		}
		if err := schema.Validate(decoded); err != nil {
			return nil, floyderrs.New(floyderrs.ValidationError, err).WithMessage(fmt.Sprintf("tool %q: arguments failed schema validation", name))
		}
	}

	raw, err := c.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return &result, nil
}

// ListenForChanges starts a goroutine watching for
// notifications/tools/list_changed and invokes onChanged (typically the
// Manager's reindex routine) each time it fires. Safe to call once per
// Client; subsequent calls are no-ops.
func (c *Client) ListenForChanges(ctx context.Context, onChanged func()) {
	c.listenOnce.Do(func() {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case notif, ok := <-c.transport.Events():
					if !ok {
						return
					}
					if notif.Method == "notifications/tools/list_changed" {
						refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
						if err := c.RefreshTools(refreshCtx); err != nil {
							c.logger.Warn("failed to refresh tools after list_changed", "error", err)
						} else if onChanged != nil {
							onChanged()
						}
						cancel()
					}
				}
			}
		}()
	})
}

func (c *Client) Close() error {
	return c.transport.Close()
}
