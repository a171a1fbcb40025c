package agent

import (
	"testing"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestRepairTranscript_EmptyHistory(t *testing.T) {
	assert.Empty(t, repairTranscript(nil))
}

func TestRepairTranscript_KeepsWellFormedPairs(t *testing.T) {
	history := []model.Message{
		model.NewUserMessage("u1", "hi"),
		{Role: model.RoleAssistant, Content: []model.ContentBlock{
			model.TextBlock("let me check"),
			model.ToolUseBlock("tc1", "read_file", nil),
		}},
		{Role: model.RoleTool, Content: []model.ContentBlock{
			model.ToolResultBlock("tc1", "file contents", false),
		}},
	}

	repaired := repairTranscript(history)
	assert.Len(t, repaired, 3)
	assert.Equal(t, history, repaired)
}

func TestRepairTranscript_DropsOrphanedToolResult(t *testing.T) {
	history := []model.Message{
		model.NewUserMessage("u1", "hi"),
		{Role: model.RoleTool, Content: []model.ContentBlock{
			model.ToolResultBlock("never-opened", "stray", false),
		}},
	}

	repaired := repairTranscript(history)
	assert.Len(t, repaired, 1)
	assert.Equal(t, model.RoleUser, repaired[0].Role)
}

func TestRepairTranscript_DropsUnansweredToolUseAcrossCrash(t *testing.T) {
	history := []model.Message{
		model.NewUserMessage("u1", "hi"),
		{Role: model.RoleAssistant, Content: []model.ContentBlock{
			model.ToolUseBlock("tc1", "read_file", nil),
			model.ToolUseBlock("tc2", "write_file", nil),
		}},
		{Role: model.RoleTool, Content: []model.ContentBlock{
			model.ToolResultBlock("tc1", "ok", false),
			// tc2's result never arrived — session file left mid-turn by a crash.
		}},
		model.NewUserMessage("u2", "continue"),
	}

	repaired := repairTranscript(history)
	assert.Len(t, repaired, 4)

	toolMsg := repaired[2]
	assert.Len(t, toolMsg.Content, 1)
	assert.Equal(t, "tc1", toolMsg.Content[0].ToolResultFor)

	assistantMsg := repaired[1]
	toolUses := assistantMsg.ToolUses()
	assert.Len(t, toolUses, 1)
	assert.Equal(t, "tc1", toolUses[0].ToolUseID)
}

func TestRepairTranscript_DropsUnansweredToolUseAtEndOfHistory(t *testing.T) {
	history := []model.Message{
		model.NewUserMessage("u1", "hi"),
		{Role: model.RoleAssistant, Content: []model.ContentBlock{
			model.ToolUseBlock("tc1", "read_file", nil),
			// no tool_result ever arrived, and history ends here.
		}},
	}

	repaired := repairTranscript(history)
	assert.Len(t, repaired, 2)
	assert.Empty(t, repaired[1].ToolUses())
}

func TestRepairTranscript_DropsEmptyToolMessageEntirely(t *testing.T) {
	history := []model.Message{
		model.NewUserMessage("u1", "hi"),
		{Role: model.RoleTool, Content: []model.ContentBlock{
			model.ToolResultBlock("orphan", "stray", false),
		}},
		model.NewUserMessage("u2", "continue"),
	}

	repaired := repairTranscript(history)
	assert.Len(t, repaired, 2)
	for _, msg := range repaired {
		assert.NotEqual(t, model.RoleTool, msg.Role)
	}
}
