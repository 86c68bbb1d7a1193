// Package pipeline wires the processing stages into the single process
// entry point: classify, dispatch to the format agent, route the
// proposed actions, finalize the session record. Stages within one
// session run strictly in order; sessions run concurrently up to a
// configured bound.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/agents"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	flowbitotel "github.com/HarinGuptha/FlowBit-Harin/internal/otel"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

var tracer = flowbitotel.Tracer("github.com/HarinGuptha/FlowBit-Harin/internal/pipeline")

// ErrStoreUnavailable wraps any session store failure that prevents the
// unit of work from being persisted. The caller must retry the whole
// input; nothing about the session survives.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Config tunes the orchestrator.
type Config struct {
	// SessionTimeout bounds one session end to end. Actions not yet
	// started when it fires are recorded as exhausted.
	SessionTimeout time.Duration

	// Concurrency bounds sessions in flight.
	Concurrency int64

	// RequiredActions lists action types whose exhaustion fails the
	// session. Exhaustion of any other type still completes it.
	RequiredActions []string
}

// Orchestrator is the process entry point shared by the CLI, the HTTP
// front-end, and scheduled triggers.
type Orchestrator struct {
	classifier *classify.Classifier
	registry   *agents.Registry
	router     *action.Router
	store      *session.Store
	sem        *semaphore.Weighted
	timeout    time.Duration
	required   map[action.Type]bool
}

// New builds an orchestrator over its collaborators.
func New(classifier *classify.Classifier, registry *agents.Registry, router *action.Router, store *session.Store, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 2 * time.Minute
	}
	required := map[action.Type]bool{}
	for _, t := range cfg.RequiredActions {
		required[action.Type(t)] = true
	}
	return &Orchestrator{
		classifier: classifier,
		registry:   registry,
		router:     router,
		store:      store,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		timeout:    cfg.SessionTimeout,
		required:   required,
	}
}

// Store exposes the session store for read-side collaborators.
func (o *Orchestrator) Store() *session.Store { return o.store }

// Process runs one input through the full pipeline and returns its
// session record. Stage-local problems (malformed content, exhausted
// actions) are recorded in the session; only store unavailability
// propagates as an error.
func (o *Orchestrator) Process(ctx context.Context, content []byte, hint classify.FormatType) (*session.ProcessingSession, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer o.sem.Release(1)

	id := uuid.New().String()
	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Int("content.bytes", len(content)),
		))
	defer span.End()

	cls := o.classifier.Classify(content, hint)
	span.SetAttributes(
		attribute.String("classification.format", string(cls.FormatType)),
		attribute.String("classification.intent", string(cls.BusinessIntent)),
	)

	sess := &session.ProcessingSession{
		ID:             id,
		CreatedAt:      time.Now().UTC(),
		RawContent:     content,
		ContentHint:    string(hint),
		Classification: &cls,
		FinalStatus:    session.StatusProcessing,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: creating session: %v", ErrStoreUnavailable, err)
	}
	o.count(ctx, "classifications_total")
	o.count(ctx, "format_"+string(cls.FormatType))
	o.count(ctx, "intent_"+string(cls.BusinessIntent))

	sessCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	agent := o.registry.ForFormat(cls.FormatType)
	if agent == nil {
		// No agent for unknown formats: classification-only session.
		return o.finalize(ctx, sess, session.StatusCompleted, "")
	}

	decision, err := agent.Analyze(sessCtx, id, content, cls)
	if err != nil {
		// The only agent error path is a baseline read against the store.
		o.finalizeBestEffort(ctx, sess.ID, session.StatusFailed, err.Error())
		return nil, fmt.Errorf("%w: analyzing content: %v", ErrStoreUnavailable, err)
	}
	if err := o.store.AppendDecision(ctx, id, decision); err != nil {
		return nil, fmt.Errorf("%w: recording decision: %v", ErrStoreUnavailable, err)
	}
	sess.Decision = decision
	o.recordSamples(ctx, decision)

	results := o.router.Execute(sessCtx, decision.ProposedActions)
	for _, res := range results {
		if err := o.store.AppendActionResult(ctx, id, res); err != nil {
			return nil, fmt.Errorf("%w: recording action result: %v", ErrStoreUnavailable, err)
		}
		sess.Actions = append(sess.Actions, res)
		o.count(ctx, "actions_"+string(res.Status))
	}

	status, errMsg := o.outcome(sessCtx, results)
	return o.finalize(ctx, sess, status, errMsg)
}

// outcome derives the terminal status: a fired session timeout or an
// unfinished required action fails the session, anything else completes
// it even with exhausted optional actions.
func (o *Orchestrator) outcome(sessCtx context.Context, results []action.Result) (session.Status, string) {
	var problems []string
	failed := false
	if sessCtx.Err() != nil {
		failed = true
		problems = append(problems, "session timeout: "+sessCtx.Err().Error())
	}
	for _, res := range results {
		if res.Status == action.StatusSucceeded {
			continue
		}
		if o.required[res.Request.Type] {
			failed = true
			problems = append(problems, fmt.Sprintf("required action %s %s", res.Request.Type, res.Status))
		}
	}
	if !failed {
		return session.StatusCompleted, ""
	}
	return session.StatusFailed, strings.Join(problems, "; ")
}

func (o *Orchestrator) finalize(ctx context.Context, sess *session.ProcessingSession, status session.Status, errMsg string) (*session.ProcessingSession, error) {
	applied, err := o.store.FinalizeSession(ctx, sess.ID, status, errMsg)
	if err != nil {
		return nil, fmt.Errorf("%w: finalizing session: %v", ErrStoreUnavailable, err)
	}
	if applied {
		o.count(ctx, "sessions_"+string(status))
	}
	done := time.Now().UTC()
	sess.FinalStatus = status
	sess.Error = errMsg
	sess.CompletedAt = &done

	log.Info().Str("session_id", sess.ID).
		Str("format", string(sess.Classification.FormatType)).
		Str("intent", string(sess.Classification.BusinessIntent)).
		Str("final_status", string(status)).
		Int("actions", len(sess.Actions)).
		Msg("session_finalized")
	return sess, nil
}

func (o *Orchestrator) finalizeBestEffort(ctx context.Context, id string, status session.Status, errMsg string) {
	if _, err := o.store.FinalizeSession(ctx, id, status, errMsg); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("finalize_failed")
	}
}

// recordSamples feeds this session's numeric JSON fields into the
// rolling baselines after scoring, so a session never reads its own
// write. Sample write failures degrade statistics, not the session.
func (o *Orchestrator) recordSamples(ctx context.Context, decision *agents.Decision) {
	an, ok := decision.Analysis.(*agents.JSONAnalysis)
	if !ok {
		return
	}
	for field, value := range an.NumericFields {
		if err := o.store.RecordFieldSample(ctx, field, value); err != nil {
			log.Warn().Err(err).Str("field", field).Msg("field_sample_write_failed")
			return
		}
	}
}

// count bumps a statistics counter, best effort.
func (o *Orchestrator) count(ctx context.Context, name string) {
	if _, err := o.store.IncrementCounter(ctx, name); err != nil {
		log.Warn().Err(err).Str("counter", name).Msg("counter_increment_failed")
	}
}
