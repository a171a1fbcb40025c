package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONRPCError_Error(t *testing.T) {
	err := &JSONRPCError{Code: ErrCodeToolNotFound, Message: "no such tool"}
	assert.Contains(t, err.Error(), "no such tool")
	assert.Contains(t, err.Error(), "-32002")
}

func TestToolCallResult_String_ConcatenatesTextContent(t *testing.T) {
	result := ToolCallResult{Content: []ToolResultContent{
		{Type: "text", Text: "hello "},
		{Type: "image", Data: "base64..."},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", result.String())
}

func TestServerConfig_IsEnabled_DefaultsTrue(t *testing.T) {
	cfg := ServerConfig{ID: "x"}
	assert.True(t, cfg.IsEnabled())

	disabled := false
	cfg.Enabled = &disabled
	assert.False(t, cfg.IsEnabled())
}
