package llm

import (
	"encoding/json"
	"strings"

	"github.com/captainphantasy/floyd-core/pkg/model"
)

// toolCallBuffer accumulates one in-progress tool call's streamed
// arguments, keyed by the provider's per-event index (OpenAI) or content
// block (Anthropic). Shared by both adapters per spec §4.1's identical
// "buffer fragments, parse on finalize, fall back to a parse-error
// marker" rule for tool-call-end.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// finalize attempts to parse the buffered fragments as JSON. On success it
// returns the parsed object verbatim; on failure it returns the
// {_parseError:true,_raw:...} marker so the Engine can surface the issue
// as a tool failure instead of crashing (spec §4.1, §8).
func (b *toolCallBuffer) finalize() json.RawMessage {
	raw := b.args.String()
	if raw == "" {
		raw = "{}"
	}
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return model.ParseErrorArgs(raw)
	}
	return json.RawMessage(raw)
}
