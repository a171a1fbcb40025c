package agent

import (
	"errors"
	"fmt"
)

// Sentinel control-flow errors: package-level errors.New values for
// conditions callers compare against with errors.Is, covering every
// Engine failure mode named in spec §4.6/§7.
var (
	// ErrNoFacade is returned when no LLM Client Facade was configured.
	ErrNoFacade = errors.New("agent: no LLM client facade configured")

	// ErrNoMCPManager is returned when no MCP Client Manager was configured.
	ErrNoMCPManager = errors.New("agent: no MCP client manager configured")

	// ErrNoPermissionManager is returned when no Permission Manager was configured.
	ErrNoPermissionManager = errors.New("agent: no permission manager configured")

	// ErrNoSessionStore is returned when no Session Store was configured.
	ErrNoSessionStore = errors.New("agent: no session store configured")

	// ErrMaxTurnsReached is surfaced when the turn loop exhausts maxTurns
	// while tool calls are still pending (spec §4.6, §8 boundary scenario
	// "maxTurns reached with the model still requesting tools").
	ErrMaxTurnsReached = errors.New("agent: reached max turns with tool calls still pending")

	// ErrEngineBusy is returned when SendMessage is invoked while a prior
	// call on the same Engine has not completed. The Engine is logically
	// single-task per conversation and is not reentrant (spec §5).
	ErrEngineBusy = errors.New("agent: sendMessage called while a previous call is still running")
)

// TurnPhase names a state in the per-turn state machine (spec §4.6
// "Turn: streaming → collecting-tools → executing-tools → next-turn |
// done"), used for error attribution.
type TurnPhase string

const (
	PhaseStreaming       TurnPhase = "streaming"
	PhaseCollectingTools TurnPhase = "collecting-tools"
	PhaseExecutingTools  TurnPhase = "executing-tools"
	PhaseDone            TurnPhase = "done"
)

// TurnError attributes a failure to the turn and phase in which it
// occurred.
type TurnError struct {
	Phase   TurnPhase
	Turn    int
	Cause   error
	Message string
}

func (e *TurnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("turn %d (%s): %s", e.Turn, e.Phase, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("turn %d (%s): %v", e.Turn, e.Phase, e.Cause)
	}
	return fmt.Sprintf("turn %d (%s)", e.Turn, e.Phase)
}

func (e *TurnError) Unwrap() error { return e.Cause }
