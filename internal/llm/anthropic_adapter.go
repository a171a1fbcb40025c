package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/captainphantasy/floyd-core/internal/backoff"
	"github.com/captainphantasy/floyd-core/internal/floyderrs"
	"github.com/captainphantasy/floyd-core/pkg/model"
)

var anthropicRetryPolicy = backoff.BackoffPolicy{InitialMs: 500, MaxMs: 5000, Factor: 2, Jitter: 0.2}

const anthropicMaxAttempts = 2

const defaultMaxTokens = 4096

// AnthropicAdapter translates anthropic-sdk-go's typed SSE stream into
// normalized StreamChunks, tagging thinking_delta content as ChunkThinking
// rather than forwarding it as a token, per spec §4.1/§9's mandate to
// never let chain-of-thought leak into the token stream.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter builds an adapter against apiKey.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Chat(ctx context.Context, req ChatRequest) (<-chan model.StreamChunk, error) {
	messages, err := convertMessagesAnthropic(req.Messages)
	if err != nil {
		return nil, floyderrs.New(floyderrs.ValidationError, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return nil, floyderrs.New(floyderrs.ValidationError, err)
		}
		params.Tools = tools
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	for attempt := 1; attempt <= anthropicMaxAttempts; attempt++ {
		s := a.client.Messages.NewStreaming(ctx, params)
		if s.Err() == nil {
			stream = s
			break
		}
		kind := classifyAnthropicError(s.Err())
		if !kind.Retryable() || attempt == anthropicMaxAttempts {
			return nil, floyderrs.New(kind, s.Err())
		}
		if sleepErr := backoff.SleepWithBackoff(ctx, anthropicRetryPolicy, attempt); sleepErr != nil {
			return nil, floyderrs.New(floyderrs.Timeout, sleepErr)
		}
	}

	out := make(chan model.StreamChunk)
	go processAnthropicStream(stream, out)
	return out, nil
}

func maxTokensOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return defaultMaxTokens
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- model.StreamChunk) {
	defer close(out)

	var inThinking bool
	var currentTool *toolCallBuffer
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
			case "tool_use":
				toolUse := block.AsToolUse()
				currentTool = &toolCallBuffer{id: toolUse.ID, name: toolUse.Name}
				out <- model.StreamChunk{Kind: model.ChunkToolCallBegin, ToolCallID: toolUse.ID, ToolName: toolUse.Name}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- model.StreamChunk{Kind: model.ChunkToken, Text: sanitizeControlBytes(delta.Text)}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- model.StreamChunk{Kind: model.ChunkThinking, Text: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" && currentTool != nil {
					currentTool.args.WriteString(delta.PartialJSON)
					out <- model.StreamChunk{Kind: model.ChunkToolCallDelta, ToolCallID: currentTool.id, ArgsFragment: delta.PartialJSON}
				}
			}

		case "content_block_stop":
			if inThinking {
				inThinking = false
			} else if currentTool != nil {
				out <- model.StreamChunk{Kind: model.ChunkToolCallEnd, ToolCallID: currentTool.id, ToolName: currentTool.name, Args: currentTool.finalize()}
				currentTool = nil
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			out <- model.StreamChunk{Kind: model.ChunkUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			out <- model.StreamChunk{Kind: model.ChunkDone, StopReason: "stop"}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- model.StreamChunk{Kind: model.ChunkError, Err: floyderrs.New(floyderrs.StreamError, err)}
	}
}

func convertMessagesAnthropic(messages []model.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if text := msg.Text(); text != "" {
			content = append(content, anthropic.NewTextBlock(text))
		}
		for _, block := range msg.Content {
			switch block.Type {
			case model.BlockToolUse:
				var input map[string]any
				if len(block.ToolArgs) > 0 {
					if err := json.Unmarshal(block.ToolArgs, &input); err != nil {
						return nil, fmt.Errorf("invalid tool_use args for %s: %w", block.ToolName, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(block.ToolUseID, input, block.ToolName))
			case model.BlockToolResult:
				content = append(content, anthropic.NewToolResultBlock(block.ToolResultFor, block.ToolResultBody, block.ToolResultError))
			}
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertToolsAnthropic(tools []model.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool definition for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func classifyAnthropicError(err error) floyderrs.Kind {
	if err == nil {
		return floyderrs.ServerError
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return floyderrs.ClassifyHTTPStatus(apiErr.StatusCode)
	}
	return floyderrs.ClassifyNetworkError(err)
}
