package agent

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAgainstInjectedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.observeTurn("done", "claude-3-5-sonnet", 150*time.Millisecond)
	m.observeToolCall("read_file", "succeeded", 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetrics_TwoRegistriesDoNotCollide(t *testing.T) {
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewMetrics(regA)
		NewMetrics(regB)
	})
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeTurn("done", "model", time.Second)
		m.observeToolCall("tool", "failed", time.Second)
	})
}
