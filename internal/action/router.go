package action

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	flowotel "github.com/HarinGuptha/FlowBit-Harin/internal/otel"
)

var tracer = flowotel.Tracer("github.com/HarinGuptha/FlowBit-Harin/internal/action")

// attemptState is the per-action retry state machine. Terminal states map
// to Result.Status; the machine exists as inspectable state rather than
// hidden control flow so attempt count and timing are testable.
type attemptState int

const (
	statePending attemptState = iota
	stateAttempting
	stateRetrying
	stateDone
)

// RouterConfig tunes retry and timeout behavior.
type RouterConfig struct {
	MaxAttempts   int           // attempts per action before exhaustion (default 3)
	BackoffBase   time.Duration // first retry delay, doubles per attempt (default 100ms)
	BackoffCap    time.Duration // upper bound on a single delay (default 2s)
	ActionTimeout time.Duration // per-attempt deadline (default 5s)
}

func (c *RouterConfig) applyDefaults() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 2 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Second
	}
}

// Router executes proposed actions in priority order with bounded retry.
// One action's exhaustion never blocks its siblings.
type Router struct {
	exec Executor
	cfg  RouterConfig
	idem *idemCache

	// sleep is swappable so retry timing is testable without real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a Router over the given downstream executor.
func NewRouter(exec Executor, cfg RouterConfig) *Router {
	cfg.applyDefaults()
	return &Router{
		exec:  exec,
		cfg:   cfg,
		idem:  newIdemCache(),
		sleep: sleepCtx,
	}
}

// Execute runs the batch in priority order (critical > high > medium > low;
// proposal order preserved within a priority) and returns one Result per
// accepted Request, in execution order. When ctx expires mid-batch the
// remaining not-yet-started actions are recorded as exhausted with the
// context error — already-succeeded results are never rolled back.
func (r *Router) Execute(ctx context.Context, requests []Request) []Result {
	ctx, span := tracer.Start(ctx, "action.execute_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("action.batch_size", len(requests)))

	ordered := make([]Request, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.rank() > ordered[j].Priority.rank()
	})

	results := make([]Result, 0, len(ordered))
	for _, req := range ordered {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{
				Request: req,
				Status:  StatusExhausted,
				Error:   "not started: " + err.Error(),
			})
			continue
		}
		results = append(results, r.executeOne(ctx, req))
	}

	return results
}

// executeOne drives a single action through the retry state machine.
// Attempts are strictly sequential; two attempts of the same action never
// run concurrently.
func (r *Router) executeOne(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "action.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("action.type", string(req.Type)),
		attribute.String("action.priority", string(req.Priority)),
		attribute.String("action.idempotency_key", req.IdempotencyKey),
	)

	if cached, ok := r.idem.Get(req.IdempotencyKey); ok {
		span.SetAttributes(attribute.Bool("action.deduplicated", true))
		log.Debug().
			Str("idempotency_key", req.IdempotencyKey).
			Msg("action_deduplicated")
		return cached
	}

	start := time.Now()

	if !req.Type.Valid() {
		return r.finish(req, Result{
			Request:         req,
			Status:          StatusFailed,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
			Error:           "unknown action type " + string(req.Type),
		})
	}

	state := statePending
	var lastErr error

	attempt := 0
	for state != stateDone {
		attempt++
		state = stateAttempting

		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.ActionTimeout)
		resp, err := r.exec.Execute(attemptCtx, req)
		cancel()

		if err == nil {
			log.Info().
				Str("action_type", string(req.Type)).
				Int("attempts", attempt).
				Func(flowotel.LogTraceFields(ctx)).
				Msg("action_succeeded")
			return r.finish(req, Result{
				Request:         req,
				Status:          StatusSucceeded,
				Attempts:        attempt,
				ExecutionTimeMS: time.Since(start).Milliseconds(),
				Response:        resp,
			})
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) {
			log.Warn().Err(err).
				Str("action_type", string(req.Type)).
				Msg("action_failed_permanent")
			return r.finish(req, Result{
				Request:         req,
				Status:          StatusFailed,
				Attempts:        attempt,
				ExecutionTimeMS: time.Since(start).Milliseconds(),
				Error:           err.Error(),
			})
		}

		if attempt >= r.cfg.MaxAttempts {
			state = stateDone
			break
		}

		state = stateRetrying
		log.Warn().Err(err).
			Str("action_type", string(req.Type)).
			Int("attempt", attempt).
			Msg("action_retrying")

		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			// Session deadline hit while waiting: stop retrying, record
			// what we know.
			lastErr = err
			state = stateDone
		}
	}

	span.SetAttributes(attribute.Int("action.attempts", attempt))
	log.Error().Err(lastErr).
		Str("action_type", string(req.Type)).
		Int("attempts", attempt).
		Func(flowotel.LogTraceFields(ctx)).
		Msg("action_exhausted")

	// Exhausted results bypass the idempotency cache: no side effect was
	// applied, so a later whole-unit retry may attempt delivery again.
	return Result{
		Request:         req,
		Status:          StatusExhausted,
		Attempts:        attempt,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Error:           lastErr.Error(),
	}
}

// finish records a terminal result under its idempotency key and returns it.
// Requests without a key are never deduplicated.
func (r *Router) finish(req Request, res Result) Result {
	if req.IdempotencyKey != "" {
		r.idem.Put(req.IdempotencyKey, res)
	}
	return res
}

// backoff returns the delay before the next attempt: base doubled per
// completed attempt, capped.
func (r *Router) backoff(attempt int) time.Duration {
	d := r.cfg.BackoffBase << (attempt - 1)
	if d > r.cfg.BackoffCap || d <= 0 {
		d = r.cfg.BackoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
