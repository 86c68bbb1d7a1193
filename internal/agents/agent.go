// Package agents implements the format-specialized analyzers. Each agent is
// a pure analysis function over raw content: it produces a structured
// analysis plus zero or more proposed actions, and degrades gracefully on
// malformed input instead of erroring out of the pipeline. The only
// suspension point is the JSON agent's baseline read against the store.
package agents

import (
	"context"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

// Decision is the output of one agent invocation.
type Decision struct {
	AgentName       string           `json:"agent_name"`
	Analysis        interface{}      `json:"analysis"`
	ProposedActions []action.Request `json:"proposed_actions"`
	Reasoning       string           `json:"reasoning"`
}

// Agent analyzes content of one format. Implementations never return an
// error for malformed content — structure problems degrade to best-effort
// analysis recorded in the Decision.
type Agent interface {
	Name() string
	Analyze(ctx context.Context, sessionID string, content []byte, cls classify.Result) (*Decision, error)
}

// FieldBaseline is the rolling historical statistic for one numeric field,
// served by the session store.
type FieldBaseline struct {
	Count  int
	Mean   float64
	StdDev float64
}

// BaselineSource provides per-field historical baselines for statistical
// anomaly detection.
type BaselineSource interface {
	Baseline(ctx context.Context, field string) (FieldBaseline, error)
}

// Registry maps classified formats to their agents.
type Registry struct {
	agents map[classify.FormatType]Agent
}

// NewRegistry builds the format → agent dispatch table.
func NewRegistry(email, jsonAgent, pdf Agent) *Registry {
	return &Registry{agents: map[classify.FormatType]Agent{
		classify.FormatEmail: email,
		classify.FormatJSON:  jsonAgent,
		classify.FormatPDF:   pdf,
	}}
}

// ForFormat returns the agent for a format, or nil for unknown formats
// (an unknown-format session completes with classification only).
func (r *Registry) ForFormat(f classify.FormatType) Agent {
	return r.agents[f]
}
