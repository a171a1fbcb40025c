// Package model holds the data types shared across the agent core:
// messages, sessions, tool descriptors, and the permission and
// connection records that track their lifecycle.
package model

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType identifies the kind of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one ordered unit of message content. Exactly one of the
// type-specific fields is populated, selected by Type.
//
// Invariant: every tool_use block emitted by an assistant turn must be
// answered by exactly one tool_result block, in order, before the next
// assistant turn is requested (spec §3, §8 invariant 1).
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text is populated when Type == BlockText.
	Text string `json:"text,omitempty"`

	// ToolUseID/ToolName/ToolArgs are populated when Type == BlockToolUse.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolArgs  json.RawMessage `json:"tool_args,omitempty"`

	// ToolResultFor/ToolResultBody/ToolResultError are populated when
	// Type == BlockToolResult. ToolResultFor matches a prior ToolUseID.
	ToolResultFor   string `json:"tool_result_for,omitempty"`
	ToolResultBody  string `json:"tool_result_body,omitempty"`
	ToolResultError bool   `json:"tool_result_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, args json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolArgs: args}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(forID, body string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResultFor: forID, ToolResultBody: body, ToolResultError: isError}
}

// Message is one turn's worth of content in a Session's history. Content is
// an ordered sequence of content blocks rather than a flat string plus
// separate tool-call/tool-result slices, so that block order — and
// therefore the tool_use/tool_result pairing invariant — survives
// persistence and reload.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Text concatenates every text block in the message, in order. Most
// messages have either a single text block (user turns) or a text block
// followed by tool_use blocks (assistant turns); Text ignores the latter.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool_use block in the message, in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// NewUserMessage builds a plain-text user message.
func NewUserMessage(id, text string) Message {
	return Message{ID: id, Role: RoleUser, Content: []ContentBlock{TextBlock(text)}, CreatedAt: time.Now()}
}
