// Package agent implements the Agent Engine (spec §4.6): the turn loop
// that ties the LLM Client Facade, MCP Client Manager, Permission Manager,
// and Session Store together into one conversation.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/captainphantasy/floyd-core/internal/llm"
	"github.com/captainphantasy/floyd-core/internal/mcp"
	"github.com/captainphantasy/floyd-core/internal/permissions"
	"github.com/captainphantasy/floyd-core/internal/sessions"
	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/google/uuid"
)

// DefaultMaxTurns is spec §4.6's default turn bound ("maxTurns default
// 10, configurable up to ~20").
const DefaultMaxTurns = 10

// DefaultToolCallTimeout is spec §5's default MCP tool call timeout.
const DefaultToolCallTimeout = 30 * time.Second

// ChatClient is the subset of the LLM Client Facade the Engine depends on.
// *llm.Facade satisfies this; tests substitute a fake provider stack.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (<-chan model.StreamChunk, error)
}

// ToolDispatcher is the subset of the MCP Client Manager the Engine
// depends on. *mcp.Manager satisfies this; tests substitute an in-memory
// double rather than spawning real MCP server processes.
type ToolDispatcher interface {
	ListTools() []model.ToolDescriptor
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.ToolCallResult, error)
}

// PermissionChecker is the subset of the Permission Manager the Engine
// depends on. *permissions.Manager satisfies this.
type PermissionChecker interface {
	Check(toolName string, args []byte) model.Decision
	Record(toolNameOrPattern string, decision model.Decision, scope model.Scope)
}

// EngineConfig configures one Engine's turn loop.
type EngineConfig struct {
	// MaxTurns bounds the turn loop. Default DefaultMaxTurns.
	MaxTurns int

	// MaxTokens is the default max_tokens passed to the LLM Client
	// Facade when a request does not override it.
	MaxTokens int

	// ToolCallTimeout bounds a single MCPClientManager.CallTool
	// invocation, overridable per tool via ToolConfig (spec §5: "MCP tool
	// call 30s (overridable)").
	ToolCallTimeout time.Duration

	// ToolConfig holds per-tool timeout overrides, keyed by tool name
	// (qualified or unqualified). This Engine executes sequentially and
	// does not retry tool calls itself (spec §4.6: tool failures are
	// surfaced to the model, not retried by the Engine), so only a timeout
	// override is exposed here.
	ToolConfig map[string]time.Duration

	// ToolResultGuard redacts tool_result bodies before persistence.
	ToolResultGuard ToolResultGuard
}

func sanitizeEngineConfig(cfg *EngineConfig) *EngineConfig {
	if cfg == nil {
		cfg = &EngineConfig{}
	}
	out := *cfg
	if out.MaxTurns <= 0 {
		out.MaxTurns = DefaultMaxTurns
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	if out.ToolCallTimeout <= 0 {
		out.ToolCallTimeout = DefaultToolCallTimeout
	}
	if out.ToolConfig == nil {
		out.ToolConfig = map[string]time.Duration{}
	}
	return &out
}

// PermissionPrompt is the external "permission prompt" collaborator (spec
// §6): it is consumed, not implemented, by the core. A nil prompt (or one
// that errors/times out) is treated as deny (spec §6, §4.6 step 3.5.ii).
type PermissionPrompt func(ctx context.Context, toolName string, risk permissions.RiskLevel, args json.RawMessage) (model.Decision, model.Scope, error)

// Callbacks are the optional side-channel notifications named in spec
// §4.6's public contract, alongside the token channel SendMessage returns.
type Callbacks struct {
	OnToolStart    func(model.ToolCallRecord)
	OnToolComplete func(model.ToolCallRecord)
	OnError        func(error)
	OnDone         func()
}

func (c *Callbacks) toolStart(r model.ToolCallRecord) {
	if c != nil && c.OnToolStart != nil {
		c.OnToolStart(r)
	}
}

func (c *Callbacks) toolComplete(r model.ToolCallRecord) {
	if c != nil && c.OnToolComplete != nil {
		c.OnToolComplete(r)
	}
}

func (c *Callbacks) onError(err error) {
	if c != nil && c.OnError != nil {
		c.OnError(err)
	}
}

func (c *Callbacks) onDone() {
	if c != nil && c.OnDone != nil {
		c.OnDone()
	}
}

// Engine is the Agent Engine (spec §3, §4.6). It is logically single-task
// per conversation: calling SendMessage while a previous call on the same
// Engine has not completed is a contract violation (spec §5) and returns
// ErrEngineBusy rather than corrupting shared state, since multiple
// concurrent conversations are expected to use separate Engine instances
// (spec §9's "constructor-injected interfaces" guidance) rather than one
// Engine shared across them.
type Engine struct {
	facade      ChatClient
	mcpManager  ToolDispatcher
	permissions PermissionChecker
	store       sessions.Store
	logger      *slog.Logger
	metrics     *Metrics
	config      *EngineConfig

	defaultModel  string
	defaultSystem string

	busy atomic.Bool
}

// NewEngine builds an Engine. config may be nil to accept defaults.
func NewEngine(facade ChatClient, mcpManager ToolDispatcher, permManager PermissionChecker, store sessions.Store, logger *slog.Logger, metrics *Metrics, config *EngineConfig) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		facade:      facade,
		mcpManager:  mcpManager,
		permissions: permManager,
		store:       store,
		logger:      logger.With("component", "agent.engine"),
		metrics:     metrics,
		config:      sanitizeEngineConfig(config),
	}
}

// SetDefaultModel sets the model ID used when a request does not specify one.
func (e *Engine) SetDefaultModel(model string) { e.defaultModel = model }

// SetDefaultSystem sets the system prompt used when a request does not specify one.
func (e *Engine) SetDefaultSystem(system string) { e.defaultSystem = system }

// SendMessage implements spec §4.6's public contract: it appends text as a
// user message, persists it, then runs the turn loop, yielding assistant
// tokens (and surfaced "thinking" text, per spec's
// "thinking(surface as thinking)") through the returned channel in the
// adapter's emission order. The channel closes when the loop ends, whether
// by completion, error, or maxTurns exhaustion; callbacks report side
// events. ctx cancellation is honored at every suspension point (stream
// recv, tool call, permission prompt, session save) per spec §5.
func (e *Engine) SendMessage(ctx context.Context, session *model.Session, text string, prompt PermissionPrompt, callbacks *Callbacks) (<-chan string, error) {
	if e.facade == nil {
		return nil, ErrNoFacade
	}
	if e.mcpManager == nil {
		return nil, ErrNoMCPManager
	}
	if e.permissions == nil {
		return nil, ErrNoPermissionManager
	}
	if e.store == nil {
		return nil, ErrNoSessionStore
	}
	if session == nil {
		return nil, errors.New("agent: session is nil")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrEngineBusy
	}

	tokens := make(chan string, 16)

	go func() {
		defer close(tokens)
		defer e.busy.Store(false)
		e.run(ctx, session, text, prompt, callbacks, tokens)
	}()

	return tokens, nil
}

func (e *Engine) run(ctx context.Context, session *model.Session, text string, prompt PermissionPrompt, callbacks *Callbacks, tokens chan<- string) {
	userMsg := model.NewUserMessage(uuid.NewString(), text)
	session.Append(userMsg)
	if err := e.store.Save(ctx, session); err != nil {
		callbacks.onError(fmt.Errorf("persist user message: %w", err))
		callbacks.onDone()
		return
	}

	history := repairTranscript(session.Messages)

	for turn := 0; turn < e.config.MaxTurns; turn++ {
		turnCtx, span := startTurnSpan(ctx, session.ID, turn)
		start := time.Now()

		if err := ctx.Err(); err != nil {
			span.End()
			callbacks.onError(err)
			callbacks.onDone()
			return
		}

		assistantText, pendingCalls, err := e.streamTurn(turnCtx, history, tokens)
		if err != nil {
			e.metrics.observeTurn("error", e.modelOrDefault(), time.Since(start))
			endSpanErr(span, err)
			callbacks.onError(&TurnError{Phase: PhaseStreaming, Turn: turn, Cause: err})
			callbacks.onDone()
			return
		}

		assistantMsg := buildAssistantMessage(assistantText, pendingCalls)
		session.Append(assistantMsg)
		history = append(history, assistantMsg)
		if err := e.store.Save(ctx, session); err != nil {
			e.metrics.observeTurn("error", e.modelOrDefault(), time.Since(start))
			endSpanErr(span, err)
			callbacks.onError(fmt.Errorf("persist assistant message: %w", err))
			callbacks.onDone()
			return
		}

		if len(pendingCalls) == 0 {
			e.metrics.observeTurn("done", e.modelOrDefault(), time.Since(start))
			span.End()
			callbacks.onDone()
			return
		}

		results := e.executeToolsInOrder(turnCtx, pendingCalls, prompt, callbacks)

		toolMsg := buildToolResultMessage(results)
		session.Append(toolMsg)
		history = append(history, toolMsg)
		if err := e.store.Save(ctx, session); err != nil {
			e.metrics.observeTurn("error", e.modelOrDefault(), time.Since(start))
			endSpanErr(span, err)
			callbacks.onError(fmt.Errorf("persist tool results: %w", err))
			callbacks.onDone()
			return
		}

		e.metrics.observeTurn("continue", e.modelOrDefault(), time.Since(start))
		span.End()
	}

	callbacks.onError(&TurnError{Phase: PhaseExecutingTools, Turn: e.config.MaxTurns, Cause: ErrMaxTurnsReached})
	callbacks.onDone()
}

func (e *Engine) modelOrDefault() string {
	if e.defaultModel != "" {
		return e.defaultModel
	}
	return "unknown"
}

// pendingCall is one tool_use the model emitted in the current turn,
// carried between streamTurn and executeToolsInOrder.
type pendingCall struct {
	id   string
	name string
	args json.RawMessage
}

// streamTurn calls the LLM Client Facade and consumes its StreamChunks,
// yielding tokens (and thinking, surfaced the same way) to the caller and
// collecting tool-call-end chunks into an ordered pending-calls list (spec
// §4.6 step 3.2-3.3). Thinking content is surfaced to the caller exactly
// once and never appended to history (spec §9: discard from persisted
// output; this module additionally lets the live caller see it, matching
// the spec's explicit "thinking(surface as thinking)" instruction, while
// buildAssistantMessage below ensures it never reaches session.Messages).
func (e *Engine) streamTurn(ctx context.Context, history []model.Message, tokens chan<- string) (string, []pendingCall, error) {
	descriptors := e.mcpManager.ListTools()

	req := llm.ChatRequest{
		Model:     e.defaultModel,
		System:    e.defaultSystem,
		Messages:  history,
		Tools:     descriptors,
		MaxTokens: e.config.MaxTokens,
	}

	chunks, err := e.facade.Chat(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var textBuilder strings.Builder
	var calls []pendingCall
	argBuf := map[string]*strings.Builder{}

	for {
		var chunk model.StreamChunk
		var ok bool
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case chunk, ok = <-chunks:
			if !ok {
				return textBuilder.String(), calls, nil
			}
		}

		switch chunk.Kind {
		case model.ChunkToken, model.ChunkThinking:
			if chunk.Text == "" {
				continue
			}
			if chunk.Kind == model.ChunkToken {
				textBuilder.WriteString(chunk.Text)
			}
			select {
			case tokens <- chunk.Text:
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}

		case model.ChunkToolCallBegin:
			argBuf[chunk.ToolCallID] = &strings.Builder{}

		case model.ChunkToolCallDelta:
			if b, ok := argBuf[chunk.ToolCallID]; ok {
				b.WriteString(chunk.ArgsFragment)
			}

		case model.ChunkToolCallEnd:
			calls = append(calls, pendingCall{id: chunk.ToolCallID, name: chunk.ToolName, args: chunk.Args})
			delete(argBuf, chunk.ToolCallID)

		case model.ChunkError:
			return "", nil, chunk.Err

		case model.ChunkDone:
			return textBuilder.String(), calls, nil
		}
	}
}

func buildAssistantMessage(text string, calls []pendingCall) model.Message {
	blocks := make([]model.ContentBlock, 0, len(calls)+1)
	if text != "" {
		blocks = append(blocks, model.TextBlock(text))
	}
	for _, c := range calls {
		blocks = append(blocks, model.ToolUseBlock(c.id, c.name, c.args))
	}
	return model.Message{ID: uuid.NewString(), Role: model.RoleAssistant, Content: blocks, CreatedAt: time.Now()}
}

func buildToolResultMessage(results []model.ContentBlock) model.Message {
	return model.Message{ID: uuid.NewString(), Role: model.RoleTool, Content: results, CreatedAt: time.Now()}
}

// executeToolsInOrder runs every pending call sequentially in emission
// order (spec §4.6 step 3.5, §5 determinism guarantee), consulting the
// Permission Manager before each dispatch.
func (e *Engine) executeToolsInOrder(ctx context.Context, calls []pendingCall, prompt PermissionPrompt, callbacks *Callbacks) []model.ContentBlock {
	results := make([]model.ContentBlock, 0, len(calls))

	for _, c := range calls {
		record := model.ToolCallRecord{ID: c.id, Name: c.name, Arguments: c.args, Status: model.ToolCallPending, StartedAt: time.Now()}
		callbacks.toolStart(record)

		if errMarker, failed := parseErrorMarker(c.args); failed {
			record.Status = model.ToolCallFailed
			record.Err = errMarker
			record.EndedAt = time.Now()
			callbacks.toolComplete(record)
			results = append(results, model.ToolResultBlock(c.id, "Error: malformed tool arguments: "+errMarker, true))
			continue
		}

		decision := e.permissions.Check(c.name, c.args)
		if decision == model.DecisionAsk {
			decision = e.resolveAsk(ctx, prompt, c)
		}

		switch decision {
		case model.DecisionDeny:
			record.Status = model.ToolCallDenied
			record.EndedAt = time.Now()
			callbacks.toolComplete(record)
			e.metrics.observeToolCall(c.name, "denied", 0)
			results = append(results, model.ToolResultBlock(c.id, "Error: permission denied", true))
			continue
		}

		record.Status = model.ToolCallRunning
		toolCtx, toolSpan := startToolSpan(ctx, c.name, c.id)
		callStart := time.Now()
		body, isErr := e.callTool(toolCtx, c)
		record.EndedAt = time.Now()
		if isErr {
			record.Status = model.ToolCallFailed
			record.Err = body
			e.metrics.observeToolCall(c.name, "failed", time.Since(callStart))
			endSpanErr(toolSpan, errors.New(body))
		} else {
			record.Status = model.ToolCallCompleted
			record.Output = body
			e.metrics.observeToolCall(c.name, "succeeded", time.Since(callStart))
			endSpanErr(toolSpan, nil)
		}
		callbacks.toolComplete(record)

		guarded := e.config.ToolResultGuard.Apply(c.name, body)
		results = append(results, model.ToolResultBlock(c.id, guarded, isErr))
	}

	return results
}

func (e *Engine) resolveAsk(ctx context.Context, prompt PermissionPrompt, c pendingCall) model.Decision {
	if prompt == nil {
		return model.DecisionDeny
	}
	risk := permissions.ClassifyRisk(c.name, c.args, "")
	decision, scope, err := prompt(ctx, c.name, risk, c.args)
	if err != nil || ctx.Err() != nil {
		return model.DecisionDeny
	}
	if decision == model.DecisionAllow || decision == model.DecisionDeny {
		e.permissions.Record(c.name, decision, scope)
	}
	return decision
}

func (e *Engine) callTool(ctx context.Context, c pendingCall) (body string, isError bool) {
	timeout := e.config.ToolCallTimeout
	if override, ok := e.config.ToolConfig[c.name]; ok && override > 0 {
		timeout = override
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.mcpManager.CallTool(callCtx, c.name, c.args)
	if err != nil {
		return err.Error(), true
	}
	return result.String(), result.IsError
}

// parseErrorMarker reports whether args is the {_parseError,_raw} marker
// a stream adapter emits for tool-argument JSON that never parsed before
// the stream ended (spec §4.6 "Arguments parsing policy").
func parseErrorMarker(args json.RawMessage) (raw string, failed bool) {
	var marker struct {
		ParseError bool   `json:"_parseError"`
		Raw        string `json:"_raw"`
	}
	if err := json.Unmarshal(args, &marker); err != nil {
		return "", false
	}
	if !marker.ParseError {
		return "", false
	}
	return marker.Raw, true
}
