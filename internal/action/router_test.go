package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingExecutor fails the first failN calls per idempotency key, then
// succeeds. Used to exercise the retry state machine.
type countingExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	failN int
}

func newCountingExecutor(failN int) *countingExecutor {
	return &countingExecutor{calls: make(map[string]int), failN: failN}
}

func (e *countingExecutor) Execute(_ context.Context, req Request) (map[string]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[req.IdempotencyKey]++
	if e.calls[req.IdempotencyKey] <= e.failN {
		return nil, fmt.Errorf("simulated transient failure %d", e.calls[req.IdempotencyKey])
	}
	return map[string]interface{}{"ok": true}, nil
}

func (e *countingExecutor) callCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[key]
}

func fastRouter(exec Executor, maxAttempts int) *Router {
	r := NewRouter(exec, RouterConfig{
		MaxAttempts:   maxAttempts,
		BackoffBase:   time.Millisecond,
		BackoffCap:    4 * time.Millisecond,
		ActionTimeout: time.Second,
	})
	return r
}

func TestRouter_SucceedsFirstAttempt(t *testing.T) {
	r := fastRouter(newCountingExecutor(0), 3)
	req := NewRequest("s1", 0, TypeLogAndClose, PriorityLow, map[string]interface{}{"note": "ok"})

	results := r.Execute(context.Background(), []Request{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSucceeded, results[0].Status)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Empty(t, results[0].Error)
}

func TestRouter_RetriesThenSucceeds(t *testing.T) {
	exec := newCountingExecutor(2)
	r := fastRouter(exec, 3)
	req := NewRequest("s1", 0, TypeEscalate, PriorityHigh, map[string]interface{}{"reason": "angry"})

	results := r.Execute(context.Background(), []Request{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSucceeded, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestRouter_ExhaustsAfterMaxAttempts(t *testing.T) {
	exec := newCountingExecutor(100)
	r := fastRouter(exec, 3)
	req := NewRequest("s1", 0, TypeFlagAnomaly, PriorityCritical, map[string]interface{}{"score": 0.9})

	results := r.Execute(context.Background(), []Request{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusExhausted, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Contains(t, results[0].Error, "transient")
}

func TestRouter_ExhaustionDoesNotBlockSiblings(t *testing.T) {
	// First action always fails; second always succeeds.
	exec := NewSimulatedExecutor(WithDelay(time.Millisecond), WithFault(func(req Request) error {
		if req.Type == TypeRiskAlert {
			return errors.New("downstream unavailable")
		}
		return nil
	}))
	r := fastRouter(exec, 2)

	reqs := []Request{
		NewRequest("s1", 0, TypeRiskAlert, PriorityCritical, map[string]interface{}{"x": 1}),
		NewRequest("s1", 1, TypeLogAndClose, PriorityLow, map[string]interface{}{"x": 2}),
	}

	results := r.Execute(context.Background(), reqs)
	require.Len(t, results, 2)
	assert.Equal(t, StatusExhausted, results[0].Status)
	assert.Equal(t, StatusSucceeded, results[1].Status)
}

func TestRouter_PriorityOrderStable(t *testing.T) {
	r := fastRouter(newCountingExecutor(0), 1)

	reqs := []Request{
		NewRequest("s1", 0, TypeLogAndClose, PriorityLow, map[string]interface{}{}),
		NewRequest("s1", 1, TypeComplianceAlert, PriorityCritical, map[string]interface{}{}),
		NewRequest("s1", 2, TypeEscalate, PriorityHigh, map[string]interface{}{}),
		NewRequest("s1", 3, TypeRiskAlert, PriorityCritical, map[string]interface{}{}),
	}

	results := r.Execute(context.Background(), reqs)
	require.Len(t, results, 4)

	// critical first (proposal order preserved between the two criticals),
	// then high, then low.
	assert.Equal(t, TypeComplianceAlert, results[0].Request.Type)
	assert.Equal(t, TypeRiskAlert, results[1].Request.Type)
	assert.Equal(t, TypeEscalate, results[2].Request.Type)
	assert.Equal(t, TypeLogAndClose, results[3].Request.Type)
}

func TestRouter_IdempotencyReturnsFirstResult(t *testing.T) {
	exec := newCountingExecutor(0)
	r := fastRouter(exec, 3)
	req := NewRequest("s1", 0, TypeCreateTicket, PriorityMedium, map[string]interface{}{"title": "t"})

	first := r.Execute(context.Background(), []Request{req})
	second := r.Execute(context.Background(), []Request{req})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0], second[0], "second call must return the first result")
	assert.Equal(t, 1, exec.callCount(req.IdempotencyKey), "side effect applied exactly once")
}

func TestRouter_ExhaustedNotCached(t *testing.T) {
	exec := newCountingExecutor(2)
	r := fastRouter(exec, 2)
	req := NewRequest("s1", 0, TypeEscalate, PriorityHigh, map[string]interface{}{"a": 1})

	first := r.Execute(context.Background(), []Request{req})
	require.Equal(t, StatusExhausted, first[0].Status)

	// A whole-unit retry gets a fresh delivery chance and now succeeds.
	second := r.Execute(context.Background(), []Request{req})
	assert.Equal(t, StatusSucceeded, second[0].Status)
}

func TestRouter_NilPayloadFailsWithoutRetry(t *testing.T) {
	r := fastRouter(NewSimulatedExecutor(WithDelay(time.Millisecond)), 3)
	req := NewRequest("s1", 0, TypeEscalate, PriorityHigh, nil)

	results := r.Execute(context.Background(), []Request{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, 1, results[0].Attempts, "permanent errors skip retry")
}

func TestRouter_UnknownTypeFails(t *testing.T) {
	r := fastRouter(newCountingExecutor(0), 3)
	req := Request{Type: "REBOOT_UNIVERSE", Priority: PriorityLow, Payload: map[string]interface{}{}, IdempotencyKey: "k"}

	results := r.Execute(context.Background(), []Request{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
}

func TestRouter_CanceledContextMarksRemainingExhausted(t *testing.T) {
	r := fastRouter(newCountingExecutor(0), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := []Request{
		NewRequest("s1", 0, TypeLogAndClose, PriorityLow, map[string]interface{}{}),
		NewRequest("s1", 1, TypeEscalate, PriorityHigh, map[string]interface{}{}),
	}

	results := r.Execute(ctx, reqs)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusExhausted, res.Status)
		assert.Contains(t, res.Error, "not started")
		assert.Zero(t, res.Attempts)
	}
}

func TestNewRequest_DeterministicKey(t *testing.T) {
	a := NewRequest("session-1", 2, TypeEscalate, PriorityHigh, nil)
	b := NewRequest("session-1", 2, TypeEscalate, PriorityHigh, nil)
	assert.Equal(t, a.IdempotencyKey, b.IdempotencyKey)
	assert.Equal(t, "session-1:ESCALATE:2", a.IdempotencyKey)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	r := NewRouter(newCountingExecutor(0), RouterConfig{
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  300 * time.Millisecond,
	})

	assert.Equal(t, 100*time.Millisecond, r.backoff(1))
	assert.Equal(t, 200*time.Millisecond, r.backoff(2))
	assert.Equal(t, 300*time.Millisecond, r.backoff(3), "capped")
	assert.Equal(t, 300*time.Millisecond, r.backoff(10), "stays capped")
}
