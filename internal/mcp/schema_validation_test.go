package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/captainphantasy/floyd-core/internal/floyderrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaTool(name, schema string) *MCPTool {
	return &MCPTool{Name: name, InputSchema: json.RawMessage(schema)}
}

func TestClient_CallTool_RejectsArgsFailingSchema(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{
		schemaTool("read_file", `{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`),
	})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.CallTool(context.Background(), "read_file", json.RawMessage(`{"path":123}`))
	require.Error(t, err)
	ce, ok := floyderrs.As(err)
	require.True(t, ok)
	assert.Equal(t, floyderrs.ValidationError, ce.Kind)
}

func TestClient_CallTool_RejectsMissingRequiredField(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{
		schemaTool("read_file", `{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`),
	})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.CallTool(context.Background(), "read_file", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestClient_CallTool_AllowsValidArgs(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{
		schemaTool("read_file", `{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`),
	})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	result, err := c.CallTool(context.Background(), "read_file", json.RawMessage(`{"path":"/tmp/x"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.String())
}

func TestClient_CallTool_RejectsMalformedJSONArgs(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{
		schemaTool("read_file", `{"type":"object"}`),
	})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.CallTool(context.Background(), "read_file", json.RawMessage(`not json`))
	require.Error(t, err)
	ce, ok := floyderrs.As(err)
	require.True(t, ok)
	assert.Equal(t, floyderrs.ValidationError, ce.Kind)
}

func TestClient_CallTool_SkipsValidationForUnknownTool(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{schemaTool("read_file", `{"type":"object"}`)})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.CallTool(context.Background(), "write_file", json.RawMessage(`{"anything":true}`))
	require.NoError(t, err)
}

func TestClient_CallTool_InvalidSchemaDoesNotBlockDispatch(t *testing.T) {
	ft := newFakeTransport("fs", []*MCPTool{schemaTool("read_file", `{"type": 12345}`)})
	c := NewClient("fs", ft)
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.CallTool(context.Background(), "read_file", json.RawMessage(`{"path":"x"}`))
	assert.NoError(t, err)
}
