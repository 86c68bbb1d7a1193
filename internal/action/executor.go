package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Executor performs a single attempt of an action against a downstream
// system. An attempt error is retryable unless it wraps ErrPermanent.
type Executor interface {
	Execute(ctx context.Context, req Request) (map[string]interface{}, error)
}

// ErrPermanent marks an attempt failure as non-retryable. The Router turns
// it into StatusFailed without consuming further attempts.
var ErrPermanent = errors.New("permanent action failure")

// FaultFunc lets tests and load drills inject attempt failures. A non-nil
// return fails that attempt; hooks that need per-attempt behavior keep
// their own counters.
type FaultFunc func(req Request) error

// SimulatedExecutor emulates the downstream CRM/alerting/ticketing systems.
// Each action kind produces a synthetic receipt after a short simulated I/O
// delay. Real deployments swap in an Executor backed by actual APIs.
type SimulatedExecutor struct {
	delay time.Duration
	fault FaultFunc
}

// SimulatedOption configures a SimulatedExecutor.
type SimulatedOption func(*SimulatedExecutor)

// WithDelay sets the simulated per-call I/O delay (default 10ms).
func WithDelay(d time.Duration) SimulatedOption {
	return func(e *SimulatedExecutor) { e.delay = d }
}

// WithFault installs a fault-injection hook.
func WithFault(f FaultFunc) SimulatedOption {
	return func(e *SimulatedExecutor) { e.fault = f }
}

// NewSimulatedExecutor creates the default downstream simulator.
func NewSimulatedExecutor(opts ...SimulatedOption) *SimulatedExecutor {
	e := &SimulatedExecutor{delay: 10 * time.Millisecond}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute performs one simulated downstream call. The executor is
// deliberately stateless; retry accounting lives in the Router.
func (e *SimulatedExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload for %s", ErrPermanent, req.Type)
	}

	if e.fault != nil {
		if err := e.fault(req); err != nil {
			return nil, err
		}
	}

	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	receipt := map[string]interface{}{
		"status_code": 201,
	}

	switch req.Type {
	case TypeEscalate:
		receipt["endpoint"] = "/crm/escalate"
		receipt["ticket_id"] = uuid.New().String()
		receipt["assigned_to"] = "escalation_team"
	case TypeLogAndClose:
		receipt["endpoint"] = "/logs/close"
		receipt["log_id"] = uuid.New().String()
		receipt["state"] = "closed"
	case TypeFlagAnomaly:
		receipt["endpoint"] = "/alerts/anomaly"
		receipt["alert_id"] = uuid.New().String()
		receipt["requires_review"] = true
	case TypeComplianceAlert:
		receipt["endpoint"] = "/compliance/alert"
		receipt["alert_id"] = uuid.New().String()
		receipt["requires_legal_review"] = true
	case TypeRiskAlert:
		receipt["endpoint"] = "/risk/alert"
		receipt["alert_id"] = uuid.New().String()
		receipt["requires_investigation"] = true
	case TypeCreateTicket:
		receipt["endpoint"] = "/tickets/create"
		receipt["ticket_id"] = uuid.New().String()
		receipt["state"] = "open"
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrPermanent, req.Type)
	}

	log.Debug().
		Str("action_type", string(req.Type)).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("simulated_downstream_call")

	return receipt, nil
}
