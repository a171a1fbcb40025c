package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-process Transport double used to exercise the
// Manager and Client without spawning real processes or sockets.
type fakeTransport struct {
	serverName string
	tools      []*MCPTool
	callResult *ToolCallResult

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest
	closed   bool
}

func newFakeTransport(serverName string, tools []*MCPTool) *fakeTransport {
	return &fakeTransport{
		serverName: serverName,
		tools:      tools,
		events:     make(chan *JSONRPCNotification, 8),
		requests:   make(chan *JSONRPCRequest, 8),
		callResult: &ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "ok"}}},
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                       { f.closed = true; return nil }
func (f *fakeTransport) Connected() bool                    { return !f.closed }

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	switch method {
	case "initialize":
		return json.Marshal(InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: f.serverName, Version: "0.0.1"},
		})
	case "tools/list":
		return json.Marshal(ListToolsResult{Tools: f.tools})
	case "tools/call":
		return json.Marshal(f.callResult)
	default:
		return json.RawMessage("{}"), nil
	}
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error { return nil }
func (f *fakeTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	return nil
}
func (f *fakeTransport) Events() <-chan *JSONRPCNotification { return f.events }
func (f *fakeTransport) Requests() <-chan *JSONRPCRequest    { return f.requests }

func tool(name string) *MCPTool {
	return &MCPTool{Name: name, InputSchema: json.RawMessage(`{"type":"object"}`)}
}

func newConnectedManager(t *testing.T, servers map[string][]*MCPTool) *Manager {
	t.Helper()
	m := NewManager()
	for id, tools := range servers {
		ft := newFakeTransport(id, tools)
		client := NewClient(id, ft)
		require.NoError(t, client.Initialize(context.Background()))
		conn := &connection{config: &ServerConfig{ID: id}, client: client, status: model.ConnectionConnected}
		m.connections[id] = conn
	}
	m.reindex()
	return m
}

func TestQualifiedNameRoundTrip(t *testing.T) {
	name := QualifiedName("fs-server", "read_file")
	assert.Equal(t, "mcp:fs-server.read_file", name)

	serverID, toolName, ok := ParseQualifiedName(name)
	require.True(t, ok)
	assert.Equal(t, "fs-server", serverID)
	assert.Equal(t, "read_file", toolName)
}

func TestParseQualifiedName_RejectsUnqualified(t *testing.T) {
	_, _, ok := ParseQualifiedName("read_file")
	assert.False(t, ok)
}

func TestManager_FirstRegistrationWinsUnqualifiedName(t *testing.T) {
	m := newConnectedManager(t, map[string][]*MCPTool{
		"alpha": {tool("search")},
		"beta":  {tool("search")},
	})

	descriptors := m.ListTools()
	var unqualified, qualified int
	for _, d := range descriptors {
		switch d.Name {
		case "search":
			unqualified++
		case QualifiedName("alpha", "search"), QualifiedName("beta", "search"):
			qualified++
		}
	}
	assert.Equal(t, 1, unqualified, "exactly one server should win the bare name")
	assert.Equal(t, 1, qualified, "the losing server's tool must remain reachable qualified")
}

func TestManager_CallTool_ResolvesQualifiedName(t *testing.T) {
	m := newConnectedManager(t, map[string][]*MCPTool{
		"alpha": {tool("search")},
		"beta":  {tool("search")},
	})

	result, err := m.CallTool(context.Background(), QualifiedName("beta", "search"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.String())
}

func TestManager_CallTool_UnknownNameErrors(t *testing.T) {
	m := newConnectedManager(t, map[string][]*MCPTool{"alpha": {tool("search")}})
	_, err := m.CallTool(context.Background(), "nonexistent", nil)
	assert.Error(t, err)
}

func TestManager_ListTools_ReflectsDisconnectedServers(t *testing.T) {
	m := newConnectedManager(t, map[string][]*MCPTool{"alpha": {tool("search")}})
	m.connections["alpha"].mu.Lock()
	m.connections["alpha"].status = model.ConnectionDisconnected
	m.connections["alpha"].mu.Unlock()

	assert.Empty(t, m.ListTools(), "tools of a disconnected server must not be listed")
}

func TestManager_Connections_ReportsToolCount(t *testing.T) {
	m := newConnectedManager(t, map[string][]*MCPTool{"alpha": {tool("a"), tool("b")}})
	conns := m.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, 2, conns[0].ToolCount)
}

func TestClient_RefreshTools_ReplacesCache(t *testing.T) {
	ft := newFakeTransport("alpha", []*MCPTool{tool("a")})
	c := NewClient("alpha", ft)
	require.NoError(t, c.Initialize(context.Background()))
	assert.Len(t, c.Tools(), 1)

	ft.tools = []*MCPTool{tool("a"), tool("b")}
	require.NoError(t, c.RefreshTools(context.Background()))
	assert.Len(t, c.Tools(), 2)
}

func TestClient_ListenForChanges_RefreshesOnNotification(t *testing.T) {
	ft := newFakeTransport("alpha", []*MCPTool{tool("a")})
	c := NewClient("alpha", ft)
	require.NoError(t, c.Initialize(context.Background()))

	ft.tools = []*MCPTool{tool("a"), tool("b")}
	changed := make(chan struct{}, 1)
	c.ListenForChanges(context.Background(), func() { changed <- struct{}{} })

	ft.events <- &JSONRPCNotification{JSONRPC: "2.0", Method: "notifications/tools/list_changed"}

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("expected onChanged callback after list_changed notification")
	}
	assert.Len(t, c.Tools(), 2)
}
