package agent

import "github.com/captainphantasy/floyd-core/pkg/model"

// repairTranscript drops any tool_result block whose tool_use_id was never
// opened by the immediately preceding assistant message, and any tool_use
// block left pending when the next assistant message starts. It tolerates
// a session file left mid-turn by a crash (spec §5: a cancelled turn must
// not leave a partial assistant turn persisted, but older data predating
// that guarantee, or a corrupted write, may still reach this path).
func repairTranscript(history []model.Message) []model.Message {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]bool)
	repaired := make([]model.Message, 0, len(history))
	lastAssistantIdx := -1

	// finalizePendingAssistant strips any tool_use block still in pending
	// out of the most recently appended assistant message, once it's clear
	// no further tool_result can answer it (the next assistant turn starts,
	// or history ends).
	finalizePendingAssistant := func() {
		if lastAssistantIdx == -1 || len(pending) == 0 {
			return
		}
		repaired[lastAssistantIdx] = stripOrphanedToolUses(repaired[lastAssistantIdx], pending)
	}

	for _, msg := range history {
		switch msg.Role {
		case model.RoleAssistant:
			finalizePendingAssistant()

			pending = make(map[string]bool)
			for _, block := range msg.ToolUses() {
				pending[block.ToolUseID] = true
			}
			repaired = append(repaired, msg)
			lastAssistantIdx = len(repaired) - 1

		case model.RoleTool:
			var fixed []model.ContentBlock
			for _, block := range msg.Content {
				if block.Type != model.BlockToolResult {
					continue
				}
				if pending[block.ToolResultFor] {
					delete(pending, block.ToolResultFor)
					fixed = append(fixed, block)
				}
			}
			if len(fixed) == 0 {
				continue
			}
			repaired = append(repaired, model.Message{
				ID:        msg.ID,
				Role:      msg.Role,
				Content:   fixed,
				CreatedAt: msg.CreatedAt,
			})

		default:
			repaired = append(repaired, msg)
		}
	}

	finalizePendingAssistant()

	return repaired
}

// stripOrphanedToolUses returns a copy of msg with every tool_use block
// whose ID is still in pending removed.
func stripOrphanedToolUses(msg model.Message, pending map[string]bool) model.Message {
	fixed := make([]model.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type == model.BlockToolUse && pending[block.ToolUseID] {
			continue
		}
		fixed = append(fixed, block)
	}
	return model.Message{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   fixed,
		CreatedAt: msg.CreatedAt,
	}
}
