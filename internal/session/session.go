// Package session provides the durable session/audit store backing the
// pipeline: one SQLite database holding session records with TTL
// expiry, process-wide counters, and the per-field sample windows that
// feed statistical anomaly baselines. Counters and baselines outlive
// individual sessions.
package session

import (
	"time"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/agents"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProcessingSession is the complete unit-of-work record for one input:
// the raw content, its classification, the agent decision, and the
// actions that ran.
type ProcessingSession struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	RawContent     []byte           `json:"raw_content,omitempty"`
	ContentHint    string           `json:"content_hint,omitempty"`
	Classification *classify.Result `json:"classification"`
	Decision       *agents.Decision `json:"decision,omitempty"`
	Actions        []action.Result  `json:"actions_triggered,omitempty"`
	FinalStatus    Status           `json:"final_status"`
	Error          string           `json:"error,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}
