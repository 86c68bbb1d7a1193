package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
	"github.com/HarinGuptha/FlowBit-Harin/internal/server"
	"github.com/HarinGuptha/FlowBit-Harin/internal/trigger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with webhook endpoints and cron triggers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	app, cleanup, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	triggers := &trigger.Config{}
	if cfg.TriggersFile != "" {
		triggers, err = trigger.LoadConfig(cfg.TriggersFile)
		if err != nil {
			return fmt.Errorf("loading triggers: %w", err)
		}
	}

	scheduler := trigger.NewScheduler(app.orch, app.store)
	if err := scheduler.RegisterSchedules(triggers); err != nil {
		return fmt.Errorf("registering schedules: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	webhookHandler := trigger.NewWebhookHandler(app.orch, triggers)

	srv := server.NewServer(app.orch, app.store, webhookHandler, server.Config{
		MaxInputKB:   cfg.MaxInputKB,
		GlobalRPM:    cfg.GlobalRPM,
		PerCallerRPM: cfg.PerCallerRPM,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).
			Int("webhooks", len(triggers.Webhooks)).
			Int("schedules", scheduler.Entries()).
			Msg("server_started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
