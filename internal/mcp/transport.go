package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the wire-level contract an MCP connection implements: send
// a request and await its matched response, send a fire-and-forget
// notification, observe server-initiated notifications and requests, and
// reply to a server-initiated request (spec §4.3's three transports all
// satisfy this one interface).
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Events() <-chan *JSONRPCNotification
	Requests() <-chan *JSONRPCRequest
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error
	Connected() bool
}

// NewTransport builds the Transport named by cfg.Transport.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportWebSocket:
		return NewWSClientTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
