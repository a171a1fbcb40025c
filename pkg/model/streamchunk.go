package model

import "encoding/json"

// ChunkKind tags the variant carried by a StreamChunk.
type ChunkKind string

const (
	ChunkToken          ChunkKind = "token"
	ChunkThinking       ChunkKind = "thinking"
	ChunkToolCallBegin  ChunkKind = "tool_call_begin"
	ChunkToolCallDelta  ChunkKind = "tool_call_args_delta"
	ChunkToolCallEnd    ChunkKind = "tool_call_end"
	ChunkUsage          ChunkKind = "usage"
	ChunkDone           ChunkKind = "done"
	ChunkError          ChunkKind = "error"
)

// StreamChunk is the normalized, provider-independent event produced by a
// Stream Adapter and consumed by the Agent Engine (spec §3, §4.1).
//
// Exactly the fields relevant to Kind are populated; the others are zero.
type StreamChunk struct {
	Kind ChunkKind

	// ChunkToken / ChunkThinking
	Text string

	// ChunkToolCallBegin / ChunkToolCallDelta / ChunkToolCallEnd
	ToolCallID   string
	ToolName     string
	ArgsFragment string          // ChunkToolCallDelta
	Args         json.RawMessage // ChunkToolCallEnd, possibly a {_parseError,_raw} marker

	// ChunkUsage
	InputTokens  int
	OutputTokens int

	// ChunkDone
	StopReason string

	// ChunkError
	Err error
}

// ParseErrorArgs builds the defensive marker object the Engine treats as a
// failed tool call when a tool call's argument JSON never parses before
// the stream ends (spec §4.1, §8 "malformed tool-argument JSON").
func ParseErrorArgs(raw string) json.RawMessage {
	b, err := json.Marshal(map[string]any{"_parseError": true, "_raw": raw})
	if err != nil {
		return json.RawMessage(`{"_parseError":true}`)
	}
	return b
}
