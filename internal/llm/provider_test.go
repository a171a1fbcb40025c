package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeControlBytes_StripsDisallowedBytesKeepsWhitespace(t *testing.T) {
	input := "hello\x00\x01\x7fworld\tand\nmore\r"
	assert.Equal(t, "helloworld\tand\nmore\r", sanitizeControlBytes(input))
}

func TestSanitizeControlBytes_LeavesPlainTextUntouched(t *testing.T) {
	assert.Equal(t, "just plain text", sanitizeControlBytes("just plain text"))
}

func TestToolCallBuffer_FinalizeParsesValidJSON(t *testing.T) {
	buf := &toolCallBuffer{id: "call_1", name: "search"}
	buf.args.WriteString(`{"query":`)
	buf.args.WriteString(`"golang"}`)

	result := buf.finalize()
	assert.JSONEq(t, `{"query":"golang"}`, string(result))
}

func TestToolCallBuffer_FinalizeFallsBackOnInvalidJSON(t *testing.T) {
	buf := &toolCallBuffer{id: "call_1", name: "search"}
	buf.args.WriteString(`{"query": incomplete`)

	result := buf.finalize()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, true, parsed["_parseError"])
	assert.Contains(t, parsed["_raw"], "incomplete")
}

func TestToolCallBuffer_FinalizeEmptyBufferYieldsEmptyObject(t *testing.T) {
	buf := &toolCallBuffer{id: "call_1", name: "noop"}
	assert.JSONEq(t, `{}`, string(buf.finalize()))
}

func TestFacade_ResolveProvider_InfersFromModelName(t *testing.T) {
	fake := &recordingProvider{name: "anthropic"}
	facade := NewFacade(fake)

	_, err := facade.Chat(context.Background(), ChatRequest{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", fake.lastModel)
}

func TestFacade_ResolveProvider_ExplicitBindingOverridesInference(t *testing.T) {
	openai := &recordingProvider{name: "openai"}
	facade := NewFacade(openai)
	facade.BindModel("local-llama", "openai")

	_, err := facade.Chat(context.Background(), ChatRequest{Model: "local-llama"})
	require.NoError(t, err)
	assert.Equal(t, "local-llama", openai.lastModel)
}

func TestFacade_ResolveProvider_UnknownModelErrors(t *testing.T) {
	facade := NewFacade()
	_, err := facade.Chat(context.Background(), ChatRequest{Model: "mystery-model"})
	assert.Error(t, err)
}

type recordingProvider struct {
	name      string
	lastModel string
}

func (r *recordingProvider) Name() string { return r.name }
func (r *recordingProvider) Chat(ctx context.Context, req ChatRequest) (<-chan model.StreamChunk, error) {
	r.lastModel = req.Model
	ch := make(chan model.StreamChunk)
	close(ch)
	return ch, nil
}
