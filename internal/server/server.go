// Package server exposes the pipeline over HTTP: content submission,
// session reads, aggregate statistics, and webhook triggers. It is a
// thin shell over the orchestrator and the session store's read side.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/otel"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
	"github.com/HarinGuptha/FlowBit-Harin/internal/trigger"
)

const defaultTimeout = 60 * time.Second

// Processor is the pipeline entry point the server submits content to.
type Processor interface {
	Process(ctx context.Context, content []byte, hint classify.FormatType) (*session.ProcessingSession, error)
}

// SessionReader is the store read surface the API exposes.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*session.ProcessingSession, error)
	ListRecent(ctx context.Context, limit int) ([]session.ProcessingSession, error)
	Counters(ctx context.Context) (map[string]int64, error)
}

// Config tunes the HTTP surface.
type Config struct {
	MaxInputKB   int // request body cap for /process
	GlobalRPM    int
	PerCallerRPM int
}

// Server holds the HTTP API dependencies.
type Server struct {
	router    *chi.Mux
	proc      Processor
	reader    SessionReader
	webhooks  *trigger.WebhookHandler
	limiter   *rateLimiter
	maxInput  int64
	startTime time.Time
}

// NewServer builds a Server over the orchestrator and store read side.
func NewServer(proc Processor, reader SessionReader, webhooks *trigger.WebhookHandler, cfg Config) *Server {
	if cfg.MaxInputKB <= 0 {
		cfg.MaxInputKB = 512
	}
	return &Server{
		router:    chi.NewRouter(),
		proc:      proc,
		reader:    reader,
		webhooks:  webhooks,
		limiter:   newRateLimiter(cfg.GlobalRPM, cfg.PerCallerRPM),
		maxInput:  int64(cfg.MaxInputKB) * 1024,
		startTime: time.Now(),
	}
}

// Routes returns the configured handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.middleware)

		r.Post("/v1/process", s.handleProcess)
		if s.webhooks != nil {
			r.Post("/v1/webhooks/{name}", s.webhooks.HandleWebhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/sessions", s.handleSessionsList)
			r.Get("/v1/sessions/{id}", s.handleSessionGet)
			r.Get("/v1/stats", s.handleStats)
		})
	})

	return r
}
