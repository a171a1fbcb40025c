package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurnError_ErrorString(t *testing.T) {
	cause := errors.New("boom")

	withCause := &TurnError{Phase: PhaseStreaming, Turn: 2, Cause: cause}
	assert.Equal(t, "turn 2 (streaming): boom", withCause.Error())
	assert.ErrorIs(t, withCause, cause)

	withMessage := &TurnError{Phase: PhaseExecutingTools, Turn: 0, Message: "max turns reached"}
	assert.Equal(t, "turn 0 (executing-tools): max turns reached", withMessage.Error())

	bare := &TurnError{Phase: PhaseDone, Turn: 5}
	assert.Equal(t, "turn 5 (done)", bare.Error())
}

func TestTurnError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &TurnError{Phase: PhaseCollectingTools, Cause: cause}
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{ErrNoFacade, ErrNoMCPManager, ErrNoPermissionManager, ErrNoSessionStore, ErrMaxTurnsReached, ErrEngineBusy}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
