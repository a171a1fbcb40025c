package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"

	"github.com/captainphantasy/floyd-core/internal/backoff"
	"github.com/captainphantasy/floyd-core/internal/floyderrs"
	"github.com/captainphantasy/floyd-core/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

// openAIRetryPolicy is the HTTP-setup retry policy from spec §4.1: base
// 500ms, factor 2, jitter capped at 20%, ceiling 5s, 2 attempts.
var openAIRetryPolicy = backoff.BackoffPolicy{InitialMs: 500, MaxMs: 5000, Factor: 2, Jitter: 0.2}

const openAIMaxAttempts = 2

// OpenAIAdapter translates go-openai's chat-completion stream into
// normalized StreamChunks, implementing the spec's exact per-index
// JSON-fragment-buffer-then-parse rule for streamed tool-call arguments.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter builds an adapter against apiKey, optionally routed
// through baseURL (used for OpenAI-compatible local/self-hosted models).
func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) Chat(ctx context.Context, req ChatRequest) (<-chan model.StreamChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessagesOpenAI(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	for attempt := 1; attempt <= openAIMaxAttempts; attempt++ {
		s, err := a.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			stream = s
			break
		}
		kind := classifyOpenAIError(err)
		if !kind.Retryable() || attempt == openAIMaxAttempts {
			return nil, floyderrs.New(kind, err)
		}
		if sleepErr := backoff.SleepWithBackoff(ctx, openAIRetryPolicy, attempt); sleepErr != nil {
			return nil, floyderrs.New(floyderrs.Timeout, sleepErr)
		}
	}

	out := make(chan model.StreamChunk)
	go a.processStream(ctx, stream, out)
	return out, nil
}

func (a *OpenAIAdapter) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- model.StreamChunk) {
	defer close(out)
	defer stream.Close()

	buffers := make(map[int]*toolCallBuffer)
	var inputTokens, outputTokens int

	emitFinishedToolCalls := func() {
		indexes := make([]int, 0, len(buffers))
		for index := range buffers {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)

		for _, index := range indexes {
			buf := buffers[index]
			if buf.id == "" || buf.name == "" {
				continue
			}
			out <- model.StreamChunk{Kind: model.ChunkToolCallEnd, ToolCallID: buf.id, ToolName: buf.name, Args: buf.finalize()}
		}
		buffers = make(map[int]*toolCallBuffer)
	}

	for {
		select {
		case <-ctx.Done():
			out <- model.StreamChunk{Kind: model.ChunkError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emitFinishedToolCalls()
				out <- model.StreamChunk{Kind: model.ChunkUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
				out <- model.StreamChunk{Kind: model.ChunkDone, StopReason: "stop"}
				return
			}
			out <- model.StreamChunk{Kind: model.ChunkError, Err: floyderrs.New(floyderrs.StreamError, err)}
			return
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		// reasoning_content (provider chain-of-thought) must never surface
		// as a token (spec §4.1). go-openai's Delta has no typed field for
		// it on every fork, so nothing here forwards it even if present.

		if delta.Content != "" {
			out <- model.StreamChunk{Kind: model.ChunkToken, Text: sanitizeControlBytes(delta.Content)}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			buf, ok := buffers[index]
			if !ok {
				buf = &toolCallBuffer{}
				buffers[index] = buf
			}
			if tc.ID != "" {
				buf.id = tc.ID
			}
			if tc.Function.Name != "" {
				buf.name = tc.Function.Name
				out <- model.StreamChunk{Kind: model.ChunkToolCallBegin, ToolCallID: buf.id, ToolName: buf.name}
			}
			if tc.Function.Arguments != "" {
				buf.args.WriteString(tc.Function.Arguments)
				out <- model.StreamChunk{Kind: model.ChunkToolCallDelta, ToolCallID: buf.id, ArgsFragment: tc.Function.Arguments}
			}
			if buf.id != "" && buf.name != "" && json.Valid([]byte(buf.args.String())) {
				out <- model.StreamChunk{Kind: model.ChunkToolCallEnd, ToolCallID: buf.id, ToolName: buf.name, Args: buf.finalize()}
				delete(buffers, index)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			emitFinishedToolCalls()
		}
	}
}

func convertMessagesOpenAI(messages []model.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleUser, model.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Text()})

		case model.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, block := range msg.ToolUses() {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   block.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.ToolName,
						Arguments: string(block.ToolArgs),
					},
				})
			}
			out = append(out, oaiMsg)

		case model.RoleTool:
			for _, block := range msg.Content {
				if block.Type != model.BlockToolResult {
					continue
				}
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    block.ToolResultBody,
					ToolCallID: block.ToolResultFor,
				})
			}
		}
	}
	return out
}

func convertToolsOpenAI(tools []model.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func classifyOpenAIError(err error) floyderrs.Kind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return floyderrs.ClassifyHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return floyderrs.ClassifyHTTPStatus(reqErr.HTTPStatusCode)
	}
	return floyderrs.ClassifyNetworkError(err)
}
