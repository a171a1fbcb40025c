package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWSTransports_ClientServerRoundTrip dials a real WSClientTransport
// against a real WSServerListener over loopback TCP, exercising real
// gorilla/websocket framing end to end.
func TestWSTransports_ClientServerRoundTrip(t *testing.T) {
	listener := NewWSServerListener("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, listener.Start(ctx))
	defer listener.Close()

	// Serve the peer's inbound requests: answer initialize and tools/list
	// directly, the way the Manager's ServeInbound handler would.
	go func() {
		peer := <-listener.Accepted()
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-peer.Requests():
				if !ok {
					return
				}
				switch req.Method {
				case "initialize":
					result, _ := json.Marshal(InitializeResult{
						ProtocolVersion: protocolVersion,
						ServerInfo:      ServerInfo{Name: "test-peer", Version: "1.0"},
					})
					_ = peer.Respond(ctx, req.ID, json.RawMessage(result), nil)
				case "tools/list":
					result, _ := json.Marshal(ListToolsResult{Tools: []*MCPTool{tool("echo")}})
					_ = peer.Respond(ctx, req.ID, json.RawMessage(result), nil)
				default:
					_ = peer.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeMethodNotFound, Message: "unhandled"})
				}
			}
		}
	}()

	client := NewWSClientTransport(&ServerConfig{
		ID:        "peer",
		Transport: TransportWebSocket,
		URL:       "ws://" + listener.Addr() + "/mcp",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	raw, err := client.Call(ctx, "initialize", map[string]any{})
	require.NoError(t, err)
	var initResult InitializeResult
	require.NoError(t, json.Unmarshal(raw, &initResult))
	assert.Equal(t, "test-peer", initResult.ServerInfo.Name)

	raw, err = client.Call(ctx, "tools/list", nil)
	require.NoError(t, err)
	var listResult ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &listResult))
	require.Len(t, listResult.Tools, 1)
	assert.Equal(t, "echo", listResult.Tools[0].Name)
}

func TestWSClientTransport_CallTimesOutWithoutResponse(t *testing.T) {
	listener := NewWSServerListener("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, listener.Start(ctx))
	defer listener.Close()

	go func() {
		<-listener.Accepted() // accept and never respond
	}()

	client := NewWSClientTransport(&ServerConfig{
		ID:        "peer",
		Transport: TransportWebSocket,
		URL:       "ws://" + listener.Addr() + "/mcp",
		Timeout:   50 * time.Millisecond,
	})
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	_, err := client.Call(ctx, "tools/list", nil)
	assert.Error(t, err)
}
