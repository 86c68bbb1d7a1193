package cmd

import (
	"fmt"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/agents"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
	"github.com/HarinGuptha/FlowBit-Harin/internal/pipeline"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
)

// app bundles the wired pipeline for commands that process content or
// read the store.
type app struct {
	cfg   *config.Config
	store *session.Store
	orch  *pipeline.Orchestrator
}

// buildApp wires classifier, agents, router, store, and orchestrator
// from the resolved config. The returned cleanup closes the store.
func buildApp(cfg *config.Config) (*app, func(), error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	var storeOpts []session.StoreOption
	if cfg.SigningKey != "" {
		signer, err := session.NewSigner(cfg.SigningKey)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving signing key: %w", err)
		}
		storeOpts = append(storeOpts, session.WithSigner(signer))
	}

	store, err := session.NewStore(cfg.SessionDBPath(), cfg.SessionTTL, cfg.BaselineWindow, storeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	classifier, err := classify.New(
		classify.WithConfidenceThreshold(cfg.ConfidenceThreshold),
		classify.WithLexiconFile(cfg.LexiconFile),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("building classifier: %w", err)
	}

	tones, err := agents.DefaultToneLexicon()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sigs, err := agents.DefaultSecuritySignatures()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	comp, err := agents.DefaultComplianceSets()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	registry := agents.NewRegistry(
		agents.NewEmailAgent(tones, cfg.IDPrefixes),
		agents.NewJSONAgent(sigs, store, cfg.DeviationMultiple, cfg.AnomalyCritical),
		agents.NewPDFAgent(comp, cfg.HighValueThreshold),
	)

	router := action.NewRouter(action.NewSimulatedExecutor(), action.RouterConfig{
		MaxAttempts:   cfg.RetryAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		ActionTimeout: cfg.ActionTimeout,
	})

	orch := pipeline.New(classifier, registry, router, store, pipeline.Config{
		SessionTimeout:  cfg.SessionTimeout,
		Concurrency:     int64(cfg.Concurrency),
		RequiredActions: cfg.RequiredActions,
	})

	return &app{cfg: cfg, store: store, orch: orch}, cleanup, nil
}
