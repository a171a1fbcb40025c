package llm

import (
	"encoding/json"
	"testing"

	"github.com/captainphantasy/floyd-core/pkg/model"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessagesOpenAI_PlacesSystemPromptAsMessage(t *testing.T) {
	msgs := convertMessagesOpenAI(nil, "be helpful")
	require.Len(t, msgs, 1)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
}

func TestConvertMessagesOpenAI_AssistantToolUseBecomesToolCalls(t *testing.T) {
	assistant := model.Message{
		Role: model.RoleAssistant,
		Content: []model.ContentBlock{
			model.TextBlock("let me check"),
			model.ToolUseBlock("call_1", "search", json.RawMessage(`{"q":"go"}`)),
		},
	}
	msgs := convertMessagesOpenAI([]model.Message{assistant}, "")
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "search", msgs[0].ToolCalls[0].Function.Name)
}

func TestConvertMessagesOpenAI_ToolResultBecomesOwnMessage(t *testing.T) {
	toolMsg := model.Message{
		Role:    model.RoleTool,
		Content: []model.ContentBlock{model.ToolResultBlock("call_1", "42", false)},
	}
	msgs := convertMessagesOpenAI([]model.Message{toolMsg}, "")
	require.Len(t, msgs, 1)
	assert.Equal(t, openai.ChatMessageRoleTool, msgs[0].Role)
	assert.Equal(t, "call_1", msgs[0].ToolCallID)
	assert.Equal(t, "42", msgs[0].Content)
}

func TestConvertMessagesAnthropic_SkipsSystemRole(t *testing.T) {
	msgs, err := convertMessagesAnthropic([]model.Message{
		{Role: model.RoleSystem, Content: []model.ContentBlock{model.TextBlock("ignored")}},
		{Role: model.RoleUser, Content: []model.ContentBlock{model.TextBlock("hi")}},
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConvertMessagesAnthropic_ToolUseRequiresValidJSONArgs(t *testing.T) {
	bad := model.Message{
		Role:    model.RoleAssistant,
		Content: []model.ContentBlock{model.ToolUseBlock("call_1", "search", json.RawMessage(`not json`))},
	}
	_, err := convertMessagesAnthropic([]model.Message{bad})
	assert.Error(t, err)
}

func TestConvertToolsOpenAI_FallsBackToEmptySchemaOnInvalidJSON(t *testing.T) {
	tools := convertToolsOpenAI([]model.ToolDescriptor{{Name: "x", InputSchema: json.RawMessage(`not json`)}})
	require.Len(t, tools, 1)
	assert.Equal(t, "x", tools[0].Function.Name)
}
