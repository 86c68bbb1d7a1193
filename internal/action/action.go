// Package action defines the closed set of follow-up actions the pipeline
// can trigger and the Router that executes them with bounded retry and
// at-least-once delivery semantics. Dispatch is a tagged variant over the
// six action kinds — never open-ended string dispatch.
package action

import "fmt"

// Type enumerates the follow-up action kinds. The set is closed: the Router
// rejects anything else as a non-retryable failure.
type Type string

const (
	TypeEscalate        Type = "ESCALATE"
	TypeLogAndClose     Type = "LOG_AND_CLOSE"
	TypeFlagAnomaly     Type = "FLAG_ANOMALY"
	TypeComplianceAlert Type = "COMPLIANCE_ALERT"
	TypeRiskAlert       Type = "RISK_ALERT"
	TypeCreateTicket    Type = "CREATE_TICKET"
)

// Valid reports whether t is one of the six known action kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeEscalate, TypeLogAndClose, TypeFlagAnomaly, TypeComplianceAlert, TypeRiskAlert, TypeCreateTicket:
		return true
	}
	return false
}

// Priority orders action execution within a batch.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank maps priorities to sortable weights; higher executes first.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// Request is one proposed follow-up action.
type Request struct {
	Type           Type                   `json:"action_type"`
	Priority       Priority               `json:"priority"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// NewRequest builds a Request with a deterministic idempotency key derived
// from the session id, the action type, and the proposal sequence index.
// Re-deriving the same triple always yields the same key, which is what
// makes whole-unit retries safe downstream.
func NewRequest(sessionID string, seq int, t Type, p Priority, payload map[string]interface{}) Request {
	return Request{
		Type:           t,
		Priority:       p,
		Payload:        payload,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", sessionID, t, seq),
	}
}

// Status is the terminal state of one executed action.
type Status string

const (
	// StatusSucceeded means an attempt completed normally.
	StatusSucceeded Status = "succeeded"
	// StatusFailed is reserved for non-retryable errors (malformed payload,
	// unknown action type) that skip retry entirely.
	StatusFailed Status = "failed"
	// StatusExhausted means every allowed attempt failed transiently.
	StatusExhausted Status = "exhausted"
)

// Result records the outcome of one accepted Request. The Router emits a
// Result for every Request it accepts — actions are never silently dropped.
type Result struct {
	Request         Request                `json:"request"`
	Status          Status                 `json:"status"`
	Attempts        int                    `json:"attempts"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
	Error           string                 `json:"error,omitempty"`
	Response        map[string]interface{} `json:"response,omitempty"`
}
