package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks turn and tool-execution counters for the Agent Engine's
// turn loop.
type Metrics struct {
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      *prometheus.HistogramVec
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	ReconnectAttempts prometheus.Gauge
}

// NewMetrics registers the Engine's counters against reg. Passing a fresh
// *prometheus.Registry per Engine instance (rather than the global
// default) keeps multiple Engine instances in one process from
// re-registering the same collector names (spec §9's constructor-injected
// ambient-state guidance).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floyd_engine_turns_total",
			Help: "Total turns completed by the agent engine, by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floyd_engine_turn_duration_seconds",
			Help:    "Duration of one turn (stream plus sequential tool execution).",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "floyd_engine_tool_calls_total",
			Help: "Total tool calls dispatched, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floyd_engine_tool_call_duration_seconds",
			Help:    "Duration of a single tool call via the MCP Client Manager.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		ReconnectAttempts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "floyd_engine_mcp_reconnect_attempts",
			Help: "Most recently observed MCP reconnect attempt count across all connections.",
		}),
	}
}

func (m *Metrics) observeTurn(outcome, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) observeToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// SetReconnectAttempts records the current sum of reconnect attempt counts
// across all MCP server connections.
func (m *Metrics) SetReconnectAttempts(n float64) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Set(n)
}
