package model

import "time"

// TransportKind identifies which wire transport a ServerConnection uses.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportWSClient   TransportKind = "websocket-client"
	TransportWSServer   TransportKind = "websocket-server"
)

// ConnectionStatus is the lifecycle state of a ServerConnection.
type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ServerConnection tracks one MCP server connection. It is owned
// exclusively by the MCP Client Manager: created on connect, destroyed on
// explicit disconnect (spec §3).
type ServerConnection struct {
	ID                  string           `json:"id"`
	Transport           TransportKind    `json:"transport"`
	Status              ConnectionStatus `json:"status"`
	LastConnectedAt     time.Time        `json:"lastConnectedAt,omitempty"`
	LastError           string           `json:"lastError,omitempty"`
	ToolCount           int              `json:"toolCount"`
	ReconnectAttemptCount int            `json:"reconnectAttemptCount"`
}
