// Package mcp implements the Tool-Router / MCP Manager: it aggregates
// tools from multiple JSON-RPC 2.0 transports, routes calls to the owning
// connection, tracks connection lifecycle, and auto-reconnects (spec
// §4.3).
package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TransportType selects which wire transport a ServerConfig connects over.
type TransportType string

const (
	TransportStdio     TransportType = "stdio"
	TransportWebSocket TransportType = "websocket"
)

// ServerConfig configures one MCP server connection, loaded from the
// `.floyd/mcp.json` discovery chain (spec §6).
type ServerConfig struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Enabled   *bool         `yaml:"enabled" json:"enabled,omitempty"`
	Transport TransportType `yaml:"type" json:"type"`

	// Stdio transport options.
	Command string            `yaml:"command" json:"command,omitempty"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir" json:"workdir,omitempty"`

	// Outbound WebSocket client options.
	URL     string            `yaml:"url" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`

	Timeout   time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	AutoStart bool          `yaml:"autoStart" json:"autoStart,omitempty"`
}

// IsEnabled reports whether the server should be started; config omission
// defaults to enabled (spec §6: "Disabled servers are skipped").
func (c *ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Equal reports whether c and other configure the same connection,
// used by the MCP Manager's config watcher to decide whether a changed
// config file actually changed a given server's settings.
func (c ServerConfig) Equal(other *ServerConfig) bool {
	if other == nil {
		return false
	}
	return reflect.DeepEqual(c, *other)
}

// configDocument is the on-disk shape of an mcp.json config file.
type configDocument struct {
	Version int            `json:"version" yaml:"version"`
	Servers []ServerConfig `json:"servers" yaml:"servers"`
}

// MCPTool is a tool exposed by an MCP server, as returned by tools/list.
type MCPTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolCallResult is the result of a tools/call.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one piece of a ToolCallResult's content array.
type ToolResultContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// String concatenates the text pieces of a ToolCallResult, the shape the
// Engine appends into a tool_result content block.
func (r ToolCallResult) String() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Text != "" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// JSON-RPC 2.0 envelope types.

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeToolNotFound   = -32002
)

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ServerInfo / ClientInfo / Capabilities are exchanged during initialize.

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
	Roots *RootsCapability `json:"roots,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

type ListToolsResult struct {
	Tools []*MCPTool `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

const protocolVersion = "2024-11-05"

var clientInfo = ClientInfo{Name: "floyd-core", Version: "1.0.0"}
